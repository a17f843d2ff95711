package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	logx "linkwatch/pkg/logx"
)

func openDrivers(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()
	out := map[string]Store{}
	for _, cfg := range []Config{
		{Driver: "file", Path: filepath.Join(dir, "files")},
		{Driver: "sqlite", Path: filepath.Join(dir, "db", "linkwatch.db")},
		{Driver: "memory"},
	} {
		st, err := Open(cfg, nopLog())
		if err != nil {
			t.Fatalf("Open(%s): %v", cfg.Driver, err)
		}
		t.Cleanup(func() { _ = st.Close() })
		out[cfg.Driver] = st
	}
	return out
}

func TestRecordRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	for name, st := range openDrivers(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := st.Get(ctx, "state"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("missing record err=%v want ErrNotFound", err)
			}
			if err := st.Put(ctx, "state", []byte(`{"v":1}`)); err != nil {
				t.Fatalf("Put: %v", err)
			}
			if err := st.Put(ctx, "state", []byte(`{"v":2}`)); err != nil {
				t.Fatalf("Put overwrite: %v", err)
			}
			b, err := st.Get(ctx, "state")
			if err != nil || string(b) != `{"v":2}` {
				t.Fatalf("Get=%q,%v", b, err)
			}
			if err := st.AppendAudit(ctx, AuditEntry{ActorID: "1", ChatID: "1", Action: "threshold.set", OK: true}); err != nil {
				t.Fatalf("AppendAudit: %v", err)
			}
		})
	}
}

func TestRejectsUnsafeNames(t *testing.T) {
	t.Parallel()

	for name, st := range openDrivers(t) {
		if err := st.Put(context.Background(), "../escape", []byte("x")); err == nil {
			t.Fatalf("%s: expected invalid name error", name)
		}
	}
}

func TestFileStoreLeavesNoTempFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	st, err := Open(Config{Driver: "file", Path: dir}, nopLog())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()
	for i := 0; i < 5; i++ {
		if err := st.Put(context.Background(), "targets", []byte(`{"entries":[]}`)); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Fatalf("leftover temp file %s", e.Name())
		}
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()

	if _, err := Open(Config{Driver: "etcd"}, nopLog()); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
	if _, err := Open(Config{Driver: "none"}, nopLog()); !errors.Is(err, ErrDisabled) {
		t.Fatalf("none driver err=%v", err)
	}
}

func nopLog() logx.Logger { return logx.Nop() }
