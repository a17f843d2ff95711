// Package discord connects the bot to Discord text channels. Commands are
// read from plain messages ("/threshold 20 120"), the same syntax the
// other chat transports use.
package discord

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"

	"linkwatch/internal/transport"
	"linkwatch/internal/transport/channelid"
	logx "linkwatch/pkg/logx"
)

const (
	Name      = "discord"
	textLimit = 2000
)

type Config struct {
	Token string
}

type Adapter struct {
	log logx.Logger
	dg  *discordgo.Session

	out     atomic.Value // chan<- transport.Update
	runMu   sync.Mutex
	running bool
	dropped atomic.Uint64
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("discord token is empty")
	}
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	dg.Identify.Intents = discordgo.MakeIntent(discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent)

	if log.IsZero() {
		log = logx.Nop()
	}
	a := &Adapter{log: log.With(logx.String("comp", "discord")), dg: dg}
	var nilOut chan<- transport.Update
	a.out.Store(nilOut)

	dg.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		self := ""
		if s.State != nil && s.State.User != nil {
			self = s.State.User.ID
		}
		if up, ok := toUpdate(m, self); ok {
			a.push(up)
		}
	})
	dg.AddHandler(func(_ *discordgo.Session, _ *discordgo.Disconnect) {
		a.log.Warn("gateway disconnected")
	})
	dg.AddHandler(func(_ *discordgo.Session, _ *discordgo.Resumed) {
		a.log.Info("gateway resumed")
	})
	return a, nil
}

// toUpdate converts a gateway message. Bot messages (ours included) are skipped.
func toUpdate(m *discordgo.MessageCreate, self string) (transport.Update, bool) {
	if m == nil || m.Message == nil || m.Author == nil {
		return transport.Update{}, false
	}
	if m.Author.Bot || m.Author.ID == self {
		return transport.Update{}, false
	}
	text := strings.TrimSpace(m.Content)
	if text == "" {
		return transport.Update{}, false
	}
	return transport.Update{Message: &transport.Message{
		ID:         m.ID,
		Transport:  Name,
		ChatID:     channelid.DiscordPrefix + m.ChannelID,
		SenderID:   channelid.DiscordPrefix + m.Author.ID,
		SenderName: m.Author.Username,
		Text:       text,
		IsGroup:    m.GuildID != "",
	}}, true
}

func (a *Adapter) Name() string { return Name }

func (a *Adapter) push(up transport.Update) {
	out, _ := a.out.Load().(chan<- transport.Update)
	if out == nil {
		return
	}
	select {
	case out <- up:
	default:
		if n := a.dropped.Add(1); n%50 == 1 {
			a.log.Warn("incoming updates dropped (channel full)", logx.Uint64("count", n), logx.Int("chan_cap", cap(out)))
		}
	}
}

// Start opens the gateway. discordgo reconnects on its own afterwards.
func (a *Adapter) Start(ctx context.Context, out chan<- transport.Update) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.running {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	a.out.Store(out)
	if err := a.dg.Open(); err != nil {
		var nilOut chan<- transport.Update
		a.out.Store(nilOut)
		return fmt.Errorf("discord open: %w", err)
	}
	a.running = true
	a.log.Info("gateway connected")
	return nil
}

func (a *Adapter) Stop(context.Context) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	var nilOut chan<- transport.Update
	a.out.Store(nilOut)
	if !a.running {
		return nil
	}
	a.running = false
	return a.dg.Close()
}

// SendText posts to a "discord:<channel>" id, splitting at the 2000
// character message limit.
func (a *Adapter) SendText(ctx context.Context, channelID, text string) error {
	id, ok := strings.CutPrefix(strings.TrimSpace(channelID), channelid.DiscordPrefix)
	if !ok || id == "" {
		return fmt.Errorf("discord: invalid channel id %q", channelID)
	}
	for _, chunk := range transport.SplitText(text, textLimit) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := a.dg.ChannelMessageSend(id, chunk, discordgo.WithContext(ctx)); err != nil {
			return err
		}
	}
	return nil
}
