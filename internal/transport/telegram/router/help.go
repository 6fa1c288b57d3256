package router

import (
	"strings"
)

// help renders plain-text help: the command list, or the usage of one
// command when name matches a name or alias.
func (t *table) help(name string) string {
	var b strings.Builder
	if name = commandWord(strings.TrimSpace(name)); name != "" {
		c, ok := t.lookup(name)
		if !ok {
			return replyUnknown
		}
		b.WriteString("/" + c.Name)
		if c.Description != "" {
			b.WriteString(" - " + c.Description)
		}
		if c.Usage != "" {
			b.WriteString("\nUsage: " + c.Usage)
		}
		if len(c.Aliases) > 0 {
			b.WriteString("\nAliases: /" + strings.Join(c.Aliases, ", /"))
		}
		if c.Access == AccessOwnerOnly {
			b.WriteString("\nOwner only.")
		}
		return b.String()
	}

	b.WriteString("Commands:")
	for _, c := range t.cmds {
		b.WriteString("\n/" + c.Name)
		if c.Description != "" {
			b.WriteString(" - " + c.Description)
		}
		if c.Access == AccessOwnerOnly {
			b.WriteString(" (owner)")
		}
	}
	b.WriteString("\n\nSend /help <command> for usage.")
	return b.String()
}
