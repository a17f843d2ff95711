package transport

import "context"

// Message is one inbound text message, normalized across chat platforms.
//
// ChatID is the channel id replies go to. It is already in the form
// Sender.SendText accepts (telegram: numeric string, discord: "discord:<id>").
type Message struct {
	ID         string
	Transport  string
	ChatID     string
	SenderID   string
	SenderName string
	Text       string
	IsGroup    bool
}

type Update struct {
	Message *Message
}

// Sender delivers text to a channel id.
type Sender interface {
	SendText(ctx context.Context, channelID, text string) error
}

// Adapter is one chat platform connection.
type Adapter interface {
	Name() string
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error
	Sender
}

// BotCommand represents a single bot command menu entry.
type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is an optional interface that adapters can implement
// to update platform-specific bot command menus (e.g. Telegram /menu list).
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}
