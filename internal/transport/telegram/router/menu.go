package router

import (
	"strings"
	"unicode/utf8"

	kit "remindbot/internal/transport"
)

const (
	maxMenuEntries = 100
	maxMenuName    = 32
	maxMenuDesc    = 256
)

// menuName maps s onto Telegram's command alphabet [a-z0-9_]{1,32}.
// Separators collapse into one underscore and a leading digit gets a
// "cmd_" prefix. It returns "" when nothing usable is left.
func menuName(s string) string {
	var b strings.Builder
	sep := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if sep && b.Len() > 0 {
				b.WriteByte('_')
			}
			sep = false
			b.WriteRune(r)
		case r == '_', r == '-', r == ' ', r == '/', r == '\t':
			sep = true
		}
	}
	out := b.String()
	if out == "" {
		return ""
	}
	if out[0] >= '0' && out[0] <= '9' {
		out = "cmd_" + out
	}
	if len(out) > maxMenuName {
		out = strings.TrimRight(out[:maxMenuName], "_")
	}
	return out
}

// menu lists one entry per command, in registration order. Aliases stay
// out of the menu.
func (t *table) menu() []kit.BotCommand {
	out := make([]kit.BotCommand, 0, len(t.cmds))
	seen := map[string]bool{}
	for _, c := range t.cmds {
		name := menuName(c.Name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true

		desc := strings.Join(strings.Fields(c.Description), " ")
		if desc == "" {
			desc = name
		}
		if c.Access == AccessOwnerOnly {
			desc = "🔒 " + desc
		}
		if utf8.RuneCountInString(desc) > maxMenuDesc {
			desc = string([]rune(desc)[:maxMenuDesc])
		}
		out = append(out, kit.BotCommand{Command: name, Description: desc})
		if len(out) == maxMenuEntries {
			break
		}
	}
	return out
}
