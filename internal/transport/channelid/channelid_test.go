package channelid

import "testing"

func TestNormalizePhone(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"6287715308060":     "87715308060",
		"087715308060":      "87715308060",
		"+62 877-1530-8060": "87715308060",
		"87715308060":       "87715308060",
		"":                  "",
		"abc":               "",
	}
	for in, want := range cases {
		if got := NormalizePhone(in); got != want {
			t.Fatalf("NormalizePhone(%q)=%q want %q", in, got, want)
		}
	}
}

func TestNormalizeRewritesLegacySuffix(t *testing.T) {
	t.Parallel()

	if got := Normalize(" 6287715308060@c.us "); got != "6287715308060@s.whatsapp.net" {
		t.Fatalf("Normalize=%q", got)
	}
	if got := Normalize("120363406015508176@g.us"); got != "120363406015508176@g.us" {
		t.Fatalf("group id changed: %q", got)
	}
}

func TestEqual(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b string
		want bool
	}{
		{"same", "-1001", "-1001", true},
		{"legacy suffix", "6287715308060@c.us", "6287715308060@s.whatsapp.net", true},
		{"phone fallback", "6287715308060@c.us", "087715308060@lid", true},
		{"groups verbatim", "120363@g.us", "120364@g.us", false},
		{"discord", "discord:42", "discord:42", true},
		{"discord differs", "discord:42", "discord:43", false},
		{"empty", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Equal(tt.a, tt.b); got != tt.want {
				t.Fatalf("Equal(%q,%q)=%v want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestPhone(t *testing.T) {
	t.Parallel()

	if got := Phone("6287715308060@c.us"); got != "87715308060" {
		t.Fatalf("Phone=%q", got)
	}
	if got := Phone("120363406015508176@g.us"); got != "" {
		t.Fatalf("group should have no phone, got %q", got)
	}
	if got := Phone("12345"); got != "" {
		t.Fatalf("bare telegram id should have no phone, got %q", got)
	}
}
