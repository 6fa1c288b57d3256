package delivery

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	kit "remindbot/internal/transport"
)

var ErrBadChannel = errors.New("delivery: invalid channel reference")

// ParseChannel parses "<chat_id>" or "<chat_id>:<thread_id>".
func ParseChannel(ref string) (kit.ChatTarget, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return kit.ChatTarget{}, fmt.Errorf("%w: empty", ErrBadChannel)
	}
	chatPart, threadPart, hasThread := strings.Cut(ref, ":")
	chatID, err := strconv.ParseInt(chatPart, 10, 64)
	if err != nil || chatID == 0 {
		return kit.ChatTarget{}, fmt.Errorf("%w: %q", ErrBadChannel, ref)
	}
	to := kit.ChatTarget{ChatID: chatID}
	if hasThread {
		tid, err := strconv.Atoi(threadPart)
		if err != nil || tid < 0 {
			return kit.ChatTarget{}, fmt.Errorf("%w: %q", ErrBadChannel, ref)
		}
		to.ThreadID = tid
	}
	return to, nil
}

// FormatChannel is the inverse of ParseChannel.
func FormatChannel(to kit.ChatTarget) string {
	s := strconv.FormatInt(to.ChatID, 10)
	if to.ThreadID > 0 {
		s += ":" + strconv.Itoa(to.ThreadID)
	}
	return s
}
