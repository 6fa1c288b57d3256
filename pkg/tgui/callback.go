package tgui

import (
	"errors"
	"fmt"
	"strings"
)

// maxCallbackData is Telegram's callback_data limit in bytes.
const maxCallbackData = 64

var ErrCallbackDataTooLong = errors.New("tgui: callback_data too long")

// Data joins module, action and an optional payload with ':' and checks the
// result fits in a callback button.
func Data(module, action, payload string) (string, error) {
	parts := []string{strings.TrimSpace(module), strings.TrimSpace(action)}
	if payload != "" {
		parts = append(parts, payload)
	}
	data := strings.Join(parts, ":")
	if len(data) > maxCallbackData {
		return "", fmt.Errorf("%w: %d bytes", ErrCallbackDataTooLong, len(data))
	}
	return data, nil
}
