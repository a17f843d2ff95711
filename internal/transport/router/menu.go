package router

import (
	"sort"
	"strings"
	"unicode"

	"linkwatch/internal/transport"
)

// sanitizeCommand converts a route into a menu-safe command name.
// Telegram command names are restricted to [a-z0-9_]{1,32}.
func sanitizeCommand(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(s))
	lastUnderscore := false
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			lastUnderscore = false
			continue
		}
		// Common separators become underscores.
		if r == '_' || r == '-' || unicode.IsSpace(r) || r == '/' {
			if b.Len() > 0 && !lastUnderscore {
				b.WriteRune('_')
				lastUnderscore = true
			}
			continue
		}
	}

	out := strings.Trim(b.String(), "_")
	if len(out) > 32 {
		out = strings.TrimRight(out[:32], "_")
	}
	if out == "" {
		return ""
	}
	if out[0] >= '0' && out[0] <= '9' {
		return ""
	}
	return out
}

// buildMenuCommands lists top-level commands only. Sub-routes are reached
// by typing arguments, which menus cannot express.
func buildMenuCommands(root *cmdNode, cmds []Command) []transport.BotCommand {
	desc := map[string]string{}
	for _, c := range cmds {
		route := splitRoute(c.Route)
		if len(route) != 1 {
			continue
		}
		d := strings.ReplaceAll(strings.TrimSpace(c.Description), "\n", " ")
		if len(d) > 256 {
			d = d[:256]
		}
		desc[route[0]] = d
	}

	out := make([]transport.BotCommand, 0, len(root.children))
	for _, name := range root.childNames() {
		cmd := sanitizeCommand(name)
		if cmd == "" {
			continue
		}
		d := desc[name]
		if d == "" {
			d = cmd
		}
		out = append(out, transport.BotCommand{Command: cmd, Description: d})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Command < out[j].Command })
	if len(out) > 100 {
		out = out[:100]
	}
	return out
}
