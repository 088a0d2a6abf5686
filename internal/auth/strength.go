// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 InternHub Contributors

package auth

import (
	"crypto/rand"
	"math/big"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/samber/oops"
)

// Password policy limits.
const (
	MinPasswordLength = 8
	MaxPasswordLength = 128

	// MinTemporaryPasswordLength is the shortest generated temporary password.
	MinTemporaryPasswordLength = 12
)

// specialChars is the symbol class a password must draw from.
const specialChars = `!@#$%^&*(),.?":{}|<>`

// Strength problems reported by ValidateStrength.
const (
	ProblemRequired      = "password is required"
	ProblemTooShort      = "password must be at least 8 characters"
	ProblemTooLong       = "password cannot exceed 128 characters"
	ProblemNoUpper       = "password must include an uppercase letter"
	ProblemNoLower       = "password must include a lowercase letter"
	ProblemNoDigit       = "password must include a digit"
	ProblemNoSpecial     = `password must include a special character (!@#$%^&*(),.?":{}|<>)`
	ProblemCommon        = "password is too common"
	ProblemRepeatPattern = "password cannot contain repeating patterns (e.g. 1111, abcd, abab)"
)

var commonPasswords = map[string]struct{}{
	"123456": {}, "password": {}, "admin": {}, "qwerty": {}, "12345678": {},
	"abc123": {}, "password123": {}, "admin123": {}, "123456789": {},
	"qwerty123": {}, "letmein": {}, "monkey": {}, "dragon": {}, "welcome": {},
	"shadow": {}, "master": {}, "michael": {}, "superman": {}, "jennifer": {},
	"jordan": {}, "harley": {}, "hunter": {}, "fuckyou": {}, "trustno1": {},
	"passw0rd": {}, "1234567890": {}, "football": {}, "baseball": {},
}

// StrengthResult is the outcome of a password policy check.
type StrengthResult struct {
	Valid  bool
	Errors []string
	// Score is a 0-5 estimate, 5 being strongest.
	Score int
}

// ValidateStrength checks a candidate password against the password policy.
func ValidateStrength(password string) StrengthResult {
	if password == "" {
		return StrengthResult{Errors: []string{ProblemRequired}}
	}

	var problems []string
	n := utf8.RuneCountInString(password)
	if n < MinPasswordLength {
		problems = append(problems, ProblemTooShort)
	}
	if n > MaxPasswordLength {
		problems = append(problems, ProblemTooLong)
	}

	classes := classify(password)
	if !classes.upper {
		problems = append(problems, ProblemNoUpper)
	}
	if !classes.lower {
		problems = append(problems, ProblemNoLower)
	}
	if !classes.digit {
		problems = append(problems, ProblemNoDigit)
	}
	if !classes.special {
		problems = append(problems, ProblemNoSpecial)
	}
	if isCommonPassword(password) {
		problems = append(problems, ProblemCommon)
	}
	if hasRepeatingPattern(password) {
		problems = append(problems, ProblemRepeatPattern)
	}

	return StrengthResult{
		Valid:  len(problems) == 0,
		Errors: problems,
		Score:  strengthScore(password, classes),
	}
}

type charClasses struct {
	upper, lower, digit, special bool
	// counted is the number of runes in one of the ASCII classes or whitespace.
	counted int
	kinds   int
}

func classify(s string) charClasses {
	var c charClasses
	var space bool
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z':
			c.upper = true
		case r >= 'a' && r <= 'z':
			c.lower = true
		case r >= '0' && r <= '9':
			c.digit = true
		case strings.ContainsRune(specialChars, r):
			c.special = true
		case unicode.IsSpace(r):
			space = true
		default:
			continue
		}
		c.counted++
	}
	for _, ok := range []bool{c.upper, c.lower, c.digit, c.special, space} {
		if ok {
			c.kinds++
		}
	}
	return c
}

func isCommonPassword(s string) bool {
	_, ok := commonPasswords[strings.ToLower(s)]
	return ok
}

// hasRepeatingPattern detects runs of four identical characters, ascending
// runs of four code points, and strings built from a repeated prefix.
func hasRepeatingPattern(s string) bool {
	runes := []rune(s)

	same := 1
	for i := 1; i < len(runes); i++ {
		if runes[i] == runes[i-1] {
			same++
			if same >= 4 {
				return true
			}
		} else {
			same = 1
		}
	}

	for i := 0; i+3 < len(runes); i++ {
		if runes[i+1] == runes[i]+1 && runes[i+2] == runes[i+1]+1 && runes[i+3] == runes[i+2]+1 {
			return true
		}
	}

	for size := 2; size <= len(runes)/2; size++ {
		prefix := string(runes[:size])
		repeated := strings.Repeat(prefix, len(runes)/size)
		if strings.HasPrefix(s, repeated) {
			return true
		}
	}
	return false
}

func strengthScore(s string, c charClasses) int {
	n := utf8.RuneCountInString(s)
	score := 0
	if n >= 8 {
		score++
	}
	if n >= 12 {
		score++
	}
	for _, ok := range []bool{c.lower, c.upper, c.digit, c.special} {
		if ok {
			score++
		}
	}
	if isCommonPassword(s) {
		score = max(0, score-2)
	}
	if hasRepeatingPattern(s) {
		score = max(0, score-1)
	}
	if n >= 16 && c.kinds >= 3 && float64(c.counted)/float64(n) >= 0.7 {
		score++
	}
	return min(5, max(0, score))
}

// Alphabets used for temporary passwords.
const (
	tempLower   = "abcdefghijklmnopqrstuvwxyz"
	tempUpper   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	tempDigits  = "0123456789"
	tempSpecial = "!@#$%^&*()"
)

// GenerateTemporaryPassword returns a random password of at least
// MinTemporaryPasswordLength characters that satisfies ValidateStrength.
func GenerateTemporaryPassword(length int) (string, error) {
	if length < MinTemporaryPasswordLength {
		length = MinTemporaryPasswordLength
	}
	if length > MaxPasswordLength {
		length = MaxPasswordLength
	}

	all := tempLower + tempUpper + tempDigits + tempSpecial
	for {
		buf := make([]byte, 0, length)
		for _, set := range []string{tempLower, tempUpper, tempDigits, tempSpecial} {
			c, err := randomChar(set)
			if err != nil {
				return "", err
			}
			buf = append(buf, c)
		}
		for len(buf) < length {
			c, err := randomChar(all)
			if err != nil {
				return "", err
			}
			buf = append(buf, c)
		}
		if err := shuffle(buf); err != nil {
			return "", err
		}
		if candidate := string(buf); ValidateStrength(candidate).Valid {
			return candidate, nil
		}
	}
}

func randomIndex(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, oops.Code("AUTH_RANDOM_FAILED").With("operation", "crypto/rand.Int").Wrap(err)
	}
	return int(v.Int64()), nil
}

func randomChar(set string) (byte, error) {
	i, err := randomIndex(len(set))
	if err != nil {
		return 0, err
	}
	return set[i], nil
}

func shuffle(b []byte) error {
	for i := len(b) - 1; i > 0; i-- {
		j, err := randomIndex(i + 1)
		if err != nil {
			return err
		}
		b[i], b[j] = b[j], b[i]
	}
	return nil
}
