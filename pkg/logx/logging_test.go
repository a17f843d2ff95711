package logx

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

type captureSender struct {
	mu   sync.Mutex
	sent map[string][]string
}

func (c *captureSender) SendText(_ context.Context, channelID, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sent == nil {
		c.sent = map[string][]string{}
	}
	c.sent[channelID] = append(c.sent[channelID], text)
	return nil
}

func (c *captureSender) count(channelID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent[channelID])
}

func TestFormatChatJSON(t *testing.T) {
	t.Parallel()

	got := formatChatJSON([]byte(`{"level":"warn","message":"persist failed","record":"state","attempts":3,"time":"x"}` + "\n"))
	want := "[WARN] persist failed\n- attempts=3\n- record=state"
	if got != want {
		t.Fatalf("formatChatJSON()=%q want %q", got, want)
	}

	raw := formatChatJSON([]byte("  not json  "))
	if raw != "not json" {
		t.Fatalf("raw fallback=%q", raw)
	}
}

func TestChatSinkRespectsMinLevel(t *testing.T) {
	t.Parallel()

	snd := &captureSender{}
	svc, log := New(Config{
		Level:   "debug",
		Console: false,
		File:    FileConfig{Enabled: true, Path: filepath.Join(t.TempDir(), "logs", "bot.log")},
		Chat:    ChatConfig{Enabled: true, Channel: "ops", MinLevel: "warn", RatePerSec: 50},
	}, snd)
	t.Cleanup(func() { _ = svc.Close() })

	log.Info("routine")
	log.Error("store unavailable", String("record", "targets"))

	deadline := time.Now().Add(2 * time.Second)
	for snd.count("ops") < 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if n := snd.count("ops"); n != 1 {
		t.Fatalf("expected exactly one operator message, got %d", n)
	}
	snd.mu.Lock()
	msg := snd.sent["ops"][0]
	snd.mu.Unlock()
	if !strings.Contains(msg, "store unavailable") || !strings.Contains(msg, "record=targets") {
		t.Fatalf("unexpected operator message: %q", msg)
	}
}

func TestZeroLoggerIsNoop(t *testing.T) {
	t.Parallel()

	var l Logger
	if !l.IsZero() {
		t.Fatalf("zero logger should report IsZero")
	}
	l.Info("ignored")
	if l.With(String("k", "v")).IsZero() {
		t.Fatalf("With should produce a non-zero logger")
	}
}
