package sdnotify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	logx "linkwatch/pkg/logx"
)

func TestStatesSent(t *testing.T) {
	orig := notify
	t.Cleanup(func() { notify = orig })
	var got []string
	notify = func(_ bool, state string) (bool, error) {
		got = append(got, state)
		return true, nil
	}

	if !Ready(logx.Nop(), "polling 2 routers") || !Status(logx.Nop(), "cycle ok") || !Stopping(logx.Nop()) {
		t.Fatalf("expected sends to succeed")
	}
	want := "READY=1\nSTATUS=polling 2 routers|STATUS=cycle ok|STOPPING=1"
	if s := strings.Join(got, "|"); s != want {
		t.Fatalf("states = %q, want %q", s, want)
	}
}

func TestSendErrorIsReported(t *testing.T) {
	orig := notify
	t.Cleanup(func() { notify = orig })
	notify = func(bool, string) (bool, error) { return false, errors.New("socket gone") }
	if Stopping(logx.Nop()) {
		t.Fatalf("expected false on error")
	}
}

func TestWatchdogWithoutSystemd(t *testing.T) {
	t.Setenv("WATCHDOG_USEC", "")
	t.Setenv("WATCHDOG_PID", "")
	done := make(chan struct{})
	go func() {
		Watchdog(context.Background(), logx.Nop())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Watchdog should return when no watchdog is configured")
	}
}
