package domain

import (
	"strings"
	"unicode"
)

const maxPlayerNameLen = 20

// allowed punctuation inside player names, beyond letters and digits
const namePunctuation = " .-_'!?"

// ValidatePlayerName enforces the display-name rules: non-empty after
// trimming, at most 20 runes, Unicode letters/numbers plus a small
// punctuation set.
func ValidatePlayerName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return ErrInvalidPlayerName
	}
	runes := []rune(trimmed)
	if len(runes) > maxPlayerNameLen {
		return ErrInvalidPlayerName
	}
	for _, r := range runes {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			continue
		}
		if strings.ContainsRune(namePunctuation, r) {
			continue
		}
		return ErrInvalidPlayerName
	}
	return nil
}
