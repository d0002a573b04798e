package handlers

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

func parseIntDefault(s string, fallback int) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return fallback, true
	}

	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}

	return n, true
}

// canonical 36-char form only; uuid.Parse also takes urn and braced forms
func isUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}
