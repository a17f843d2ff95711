package transport

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitText(t *testing.T) {
	t.Parallel()

	line := strings.Repeat("x", 30) + "\n"
	cases := []struct {
		name   string
		in     string
		limit  int
		chunks int
	}{
		{"short", "halo", 10, 1},
		{"exact", strings.Repeat("a", 10), 10, 1},
		{"hard cut", strings.Repeat("a", 25), 10, 3},
		{"newline boundary", strings.Repeat(line, 10), 100, 4},
		{"multibyte", strings.Repeat("é", 25), 10, 3},
		{"no limit", strings.Repeat("a", 25), 0, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := SplitText(tc.in, tc.limit)
			if len(got) != tc.chunks {
				t.Fatalf("chunks = %d, want %d", len(got), tc.chunks)
			}
			total := 0
			for i, c := range got {
				if n := utf8.RuneCountInString(c); tc.limit > 0 && n > tc.limit {
					t.Fatalf("chunk %d has %d runes, limit %d", i, n, tc.limit)
				}
				total += len(strings.ReplaceAll(c, "\n", ""))
			}
			if want := len(strings.ReplaceAll(tc.in, "\n", "")); total != want {
				t.Fatalf("content lost: %d bytes of %d", total, want)
			}
		})
	}
}

func TestSplitTextPrefersNewlines(t *testing.T) {
	t.Parallel()
	in := strings.Repeat("a", 60) + "\n" + strings.Repeat("b", 60)
	got := SplitText(in, 100)
	if len(got) != 2 || got[0] != strings.Repeat("a", 60) || got[1] != strings.Repeat("b", 60) {
		t.Fatalf("got %q", got)
	}
}
