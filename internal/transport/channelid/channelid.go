// Package channelid normalizes chat identities so the same person or group
// compares equal across the spellings different clients report.
package channelid

import (
	"strings"
	"unicode"
)

const (
	legacyUserSuffix = "@c.us"
	userSuffix       = "@s.whatsapp.net"
	groupSuffix      = "@g.us"

	// DiscordPrefix marks channel ids served by the discord adapter.
	DiscordPrefix = "discord:"
)

// Normalize trims id and rewrites legacy provider suffixes.
func Normalize(id string) string {
	id = strings.TrimSpace(id)
	if strings.HasSuffix(id, legacyUserSuffix) {
		return strings.TrimSuffix(id, legacyUserSuffix) + userSuffix
	}
	return id
}

// ToSendID returns the id outbound sends should use.
func ToSendID(id string) string { return Normalize(id) }

// IsGroup reports whether id names a group channel. Group ids only match verbatim.
func IsGroup(id string) bool {
	id = strings.TrimSpace(id)
	return strings.HasSuffix(id, groupSuffix) || strings.HasPrefix(id, "-")
}

// Phone returns the phone digits of a user id ("62877...@c.us" -> "877..."),
// or "" when id does not carry a phone number.
func Phone(id string) string {
	id = strings.TrimSpace(id)
	if IsGroup(id) || strings.HasPrefix(id, DiscordPrefix) {
		return ""
	}
	at := strings.IndexByte(id, '@')
	if at <= 0 {
		return ""
	}
	local := id[:at]
	for _, r := range local {
		if r < '0' || r > '9' {
			return ""
		}
	}
	return NormalizePhone(local)
}

// NormalizePhone keeps digits only and strips one leading country code 62 or trunk 0.
func NormalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if unicode.IsDigit(r) && r < 128 {
			b.WriteRune(r)
		}
	}
	d := b.String()
	switch {
	case strings.HasPrefix(d, "62"):
		d = d[2:]
	case strings.HasPrefix(d, "0"):
		d = d[1:]
	}
	return d
}

// Equal compares two ids after normalization, falling back to phone digits.
func Equal(a, b string) bool {
	na, nb := Normalize(a), Normalize(b)
	if na == "" || nb == "" {
		return false
	}
	if na == nb {
		return true
	}
	pa, pb := Phone(na), Phone(nb)
	return pa != "" && pa == pb
}
