package monitor

import (
	"strings"
	"testing"
	"time"
)

func TestDuration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		minutes float64
		want    string
	}{
		{0.5, "< 1 menit"},
		{1, "1 menit"},
		{45, "45 menit"},
		{125, "2 jam 5 menit"},
		{1500, "1 hari 1 jam"},
	}
	for _, tt := range tests {
		if got := Duration(tt.minutes); got != tt.want {
			t.Fatalf("Duration(%v)=%q want %q", tt.minutes, got, tt.want)
		}
	}
}

func TestFormatterUnknownTime(t *testing.T) {
	t.Parallel()

	f := Formatter{Location: time.UTC, TZLabel: "WIB"}
	msg := f.IndividualDown(OfflineRecord{User: "budi"})
	if !strings.Contains(msg, "Down sejak: (waktu tidak diketahui)") {
		t.Fatalf("msg=%q", msg)
	}
	if strings.Contains(msg, "Durasi") {
		t.Fatalf("zero duration should be omitted: %q", msg)
	}
}

func TestFormatterUsesLocationAndLabels(t *testing.T) {
	t.Parallel()

	jkt := time.FixedZone("WIB", 7*3600)
	f := Formatter{
		Location: jkt,
		TZLabel:  "WIB",
		Labels:   map[string]string{"SALAM-UTAMA-METRO": "SALAM 1"},
	}
	g := Group{Router: "SALAM-UTAMA-METRO", Prefix: "BRN", Users: []OfflineRecord{
		{User: "BRN-01", Since: time.Date(2024, 5, 1, 1, 0, 0, 0, time.UTC)},
		{User: "BRN-02", Since: time.Date(2024, 5, 1, 2, 30, 0, 0, time.UTC)},
	}}
	msg := f.GroupedDown(g)
	for _, want := range []string{"💥 Link BRN Down", "Router: SALAM 1", "Jumlah: 2 user", "01/05/2024 09:30 WIB"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("missing %q in %q", want, msg)
		}
	}
}

func TestFormatterUpUsesNow(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	f := Formatter{Location: time.UTC, Now: func() time.Time { return now }}
	if msg := f.IndividualUp(OfflineRecord{User: "budi"}); !strings.Contains(msg, "Online kembali: 01/05/2024 12:00") {
		t.Fatalf("msg=%q", msg)
	}
}

func TestGroupCache(t *testing.T) {
	t.Parallel()

	c := NewGroupCache()
	c.Put(Down, Group{Prefix: "BRN", Users: []OfflineRecord{{User: "BRN-01"}}})
	c.Put(Down, Group{Prefix: "ABC"})
	c.Put(Up, Group{Prefix: "PGK"})

	if got := c.Prefixes(Down); len(got) != 2 || got[0] != "ABC" {
		t.Fatalf("prefixes=%v", got)
	}
	if _, ok := c.Get(Up, "brn"); ok {
		t.Fatalf("sides must be separate")
	}
	c.Put(Down, Group{Prefix: "BRN"})
	if g, _ := c.Get(Down, "BRN"); len(g.Users) != 0 {
		t.Fatalf("put must replace")
	}
}
