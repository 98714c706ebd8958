package auth

import (
	"regexp"
	"unicode/utf8"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidateEmail reports whether email looks like an address.
func ValidateEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// ValidatePassword returns one message per unmet password rule.
func ValidatePassword(password string) []string {
	var (
		msgs                   []string
		upper, lower, hasDigit bool
	)
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= '0' && r <= '9':
			hasDigit = true
		}
	}
	if utf8.RuneCountInString(password) < 8 {
		msgs = append(msgs, "La contraseña debe tener al menos 8 caracteres")
	}
	if !upper {
		msgs = append(msgs, "La contraseña debe contener al menos una letra mayúscula")
	}
	if !lower {
		msgs = append(msgs, "La contraseña debe contener al menos una letra minúscula")
	}
	if !hasDigit {
		msgs = append(msgs, "La contraseña debe contener al menos un número")
	}
	return msgs
}
