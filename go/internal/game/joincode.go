package game

import (
	"errors"
	"strings"

	"github.com/mcdev12/bingo/go/internal/bingo"
)

const joinCodeLength = 4

// GenerateJoinCode returns a random code of uppercase letters A-Z
func GenerateJoinCode(rand bingo.RandFunc) string {
	if rand == nil {
		rand = bingo.FastRand
	}
	code := make([]byte, joinCodeLength)
	for i := range code {
		code[i] = 'A' + byte(rand(26))
	}
	return string(code)
}

func ValidateJoinCode(code string) error {
	if len(code) != joinCodeLength {
		return errors.New("join code must be exactly 4 characters")
	}
	for _, ch := range strings.ToUpper(code) {
		if ch < 'A' || ch > 'Z' {
			return errors.New("join code must contain only letters A-Z")
		}
	}
	return nil
}

func NormalizeJoinCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
