package router

import (
	"strconv"
	"strings"
	"sync/atomic"
	"time"
	"unicode"

	"github.com/google/uuid"
)

var reqSeq atomic.Uint64

// newReqID is short and sortable within a process: base36 unix millis, a
// sequence number and four random hex digits.
func newReqID() string {
	var b strings.Builder
	b.WriteString(strconv.FormatInt(time.Now().UnixMilli(), 36))
	b.WriteByte('-')
	b.WriteString(strconv.FormatUint(reqSeq.Add(1), 36))
	b.WriteString(uuid.NewString()[:4])
	return b.String()
}

// tokenizeCommandLine splits a command line on whitespace. "..." groups
// words and a backslash takes the next rune literally. Single quotes are
// ordinary so apostrophes in free text survive.
//
//	/create_reminder here 09:30 "stand up" --times 2
func tokenizeCommandLine(s string) []string {
	var (
		toks    []string
		cur     strings.Builder
		quoted  bool
		escaped bool
	)
	for _, r := range s {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == '"':
			quoted = !quoted
		case !quoted && unicode.IsSpace(r):
			if cur.Len() > 0 {
				toks = append(toks, cur.String())
			}
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 {
		toks = append(toks, cur.String())
	}
	return toks
}

// isFlagToken reports whether s is a flag. Negative numbers and chat
// references such as "-100123" or "-100123:7" are values.
func isFlagToken(s string) bool {
	if len(s) < 2 || s[0] != '-' {
		return false
	}
	rest := strings.TrimLeft(s, "-")
	return rest == "" || rest[0] < '0' || rest[0] > '9' || strings.HasPrefix(s, "--")
}

// parseFlags separates positionals from flags:
//
//	--key=value  --key value  --switch
//	-k=value     -k value     -abc (switches a, b and c)
func parseFlags(args []string) (pos []string, flags map[string]string, bools map[string]bool) {
	flags, bools = map[string]string{}, map[string]bool{}
	for i := 0; i < len(args); i++ {
		tok := args[i]
		if !isFlagToken(tok) {
			pos = append(pos, tok)
			continue
		}
		long := strings.HasPrefix(tok, "--")
		key := strings.TrimLeft(tok, "-")
		if k, v, ok := strings.Cut(key, "="); ok {
			flags[k] = v
			continue
		}
		if !long && len(key) > 1 {
			for _, c := range key {
				bools[string(c)] = true
			}
			continue
		}
		if i+1 < len(args) && !isFlagToken(args[i+1]) {
			flags[key] = args[i+1]
			i++
			continue
		}
		bools[key] = true
	}
	return pos, flags, bools
}
