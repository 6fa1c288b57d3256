package reminders

import (
	"strings"
	"unicode"
)

// createFlags are the options /create_reminder understands. Anything else
// that looks like a flag is part of the message.
var createFlags = map[string]bool{"times": true, "days": true, "tz": true}

type createArgs struct {
	Channel string
	Time    string
	Message string
	Flags   map[string]string
}

type token struct {
	text       string
	start, end int
}

// splitTokens splits s on whitespace and keeps byte offsets so the message
// can be cut from the original text with its spacing intact.
func splitTokens(s string) []token {
	var out []token
	start := -1
	for i, r := range s {
		if unicode.IsSpace(r) {
			if start >= 0 {
				out = append(out, token{text: s[start:i], start: start, end: i})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		out = append(out, token{text: s[start:], start: start, end: len(s)})
	}
	return out
}

func isNumeric(s string) bool {
	s = strings.TrimPrefix(s, "-")
	return s != "" && s[0] >= '0' && s[0] <= '9'
}

// knownFlag returns the flag name and inline value of tok ("--times=3").
func knownFlag(tok string) (name, value string, inline, ok bool) {
	if !strings.HasPrefix(tok, "--") {
		return "", "", false, false
	}
	name, value, inline = strings.Cut(tok[2:], "=")
	if !createFlags[name] {
		return "", "", false, false
	}
	return name, value, inline, true
}

// parseCreateText parses the full command text:
//
//	/create_reminder <channel|here> <HH:MM> <message...> [--times N] [--days 1,3] [--tz Zone]
//
// Flags may appear anywhere after the command word.
func parseCreateText(text string) createArgs {
	toks := splitTokens(text)
	out := createArgs{Flags: map[string]string{}}
	if len(toks) > 0 && strings.HasPrefix(toks[0].text, "/") {
		toks = toks[1:]
	}

	var msg []token
	positional := 0
	for i := 0; i < len(toks); i++ {
		t := toks[i]
		if name, value, inline, ok := knownFlag(t.text); ok {
			if !inline && i+1 < len(toks) {
				next := toks[i+1].text
				if !strings.HasPrefix(next, "-") || isNumeric(next) {
					value = next
					i++
				}
			}
			out.Flags[name] = value
			continue
		}
		switch positional {
		case 0:
			out.Channel = t.text
		case 1:
			out.Time = t.text
		default:
			msg = append(msg, t)
		}
		positional++
	}
	out.Message = joinSpans(text, msg)
	return out
}

// joinSpans rebuilds the message from text. Adjacent tokens keep the exact
// separator between them; a gap left by a removed flag becomes one space.
func joinSpans(text string, toks []token) string {
	if len(toks) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(toks[0].text)
	for i := 1; i < len(toks); i++ {
		gap := text[toks[i-1].end:toks[i].start]
		if strings.TrimSpace(gap) != "" {
			b.WriteByte(' ')
		} else {
			b.WriteString(gap)
		}
		b.WriteString(toks[i].text)
	}
	return b.String()
}
