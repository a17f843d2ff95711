package transport

import (
	"context"
	"errors"
	"sync"
	"testing"
)

type recAdapter struct {
	name string

	mu      sync.Mutex
	sent    []string
	started bool
	menu    []BotCommand
}

func (r *recAdapter) Name() string { return r.name }

func (r *recAdapter) Start(context.Context, chan<- Update) error {
	r.mu.Lock()
	r.started = true
	r.mu.Unlock()
	return nil
}

func (r *recAdapter) Stop(context.Context) error { return nil }

func (r *recAdapter) SendText(_ context.Context, to, _ string) error {
	r.mu.Lock()
	r.sent = append(r.sent, to)
	r.mu.Unlock()
	return nil
}

type menuAdapter struct{ recAdapter }

func (m *menuAdapter) UpdateMenuCommands(_ context.Context, cmds []BotCommand) error {
	m.mu.Lock()
	m.menu = cmds
	m.mu.Unlock()
	return nil
}

func TestMuxRoutesByPrefix(t *testing.T) {
	t.Parallel()
	tg := &menuAdapter{recAdapter{name: "telegram"}}
	dc := &recAdapter{name: "discord"}
	m := NewMux()
	m.Handle("", tg)
	m.Handle("discord:", dc)

	ctx := context.Background()
	for _, id := range []string{"-1001", "discord:42", "6287715308060"} {
		if err := m.SendText(ctx, id, "halo"); err != nil {
			t.Fatalf("SendText(%q): %v", id, err)
		}
	}
	if len(tg.sent) != 2 || len(dc.sent) != 1 || dc.sent[0] != "discord:42" {
		t.Fatalf("telegram = %v, discord = %v", tg.sent, dc.sent)
	}

	if err := m.Start(ctx, make(chan Update, 1)); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !tg.started || !dc.started {
		t.Fatalf("adapters not started")
	}

	cmds := []BotCommand{{Command: "salam", Description: "status"}}
	if err := m.UpdateMenuCommands(ctx, cmds); err != nil {
		t.Fatalf("UpdateMenuCommands: %v", err)
	}
	if len(tg.menu) != 1 || tg.menu[0].Command != "salam" {
		t.Fatalf("menu = %+v", tg.menu)
	}
}

func TestMuxWithoutFallback(t *testing.T) {
	t.Parallel()
	m := NewMux()
	m.Handle("discord:", &recAdapter{name: "discord"})
	if err := m.SendText(context.Background(), "-1001", "halo"); !errors.Is(err, ErrNoAdapter) {
		t.Fatalf("err = %v, want ErrNoAdapter", err)
	}
}
