package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestValidatePlayerName(t *testing.T) {
	valid := []string{
		"Alice",
		"Player 1",
		"J. Doe",
		"who_dis",
		"émilie",
		"数学エキスパート",
		"Why-not!?",
	}
	for _, name := range valid {
		if err := ValidatePlayerName(name); err != nil {
			t.Fatalf("%q should be valid: %v", name, err)
		}
	}

	invalid := []string{
		"",
		"   ",
		strings.Repeat("x", 21),
		"<script>",
		"semi;colon",
		"new\nline",
	}
	for _, name := range invalid {
		if err := ValidatePlayerName(name); !errors.Is(err, ErrInvalidPlayerName) {
			t.Fatalf("%q should be rejected, got %v", name, err)
		}
	}

	// Exactly 20 runes is fine, including multi-byte ones.
	if err := ValidatePlayerName(strings.Repeat("ü", 20)); err != nil {
		t.Fatalf("20-rune name should be valid: %v", err)
	}
}
