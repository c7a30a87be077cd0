package registration

import (
	"strings"
	"unicode/utf8"
)

// Requirement is one of the independent password-strength checks.
type Requirement string

const (
	ReqLength    Requirement = "length"
	ReqUppercase Requirement = "uppercase"
	ReqLowercase Requirement = "lowercase"
	ReqNumber    Requirement = "number"
	ReqSpecial   Requirement = "special"
)

// Requirements lists every requirement in display order.
var Requirements = []Requirement{ReqLength, ReqUppercase, ReqLowercase, ReqNumber, ReqSpecial}

// PasswordPolicy parameterises the strength check.
type PasswordPolicy struct {
	MinLength int
	Special   string
}

// Strength is the outcome of each requirement for one password value.
type Strength struct {
	Length    bool
	Uppercase bool
	Lowercase bool
	Number    bool
	Special   bool
}

// Met reports the outcome of a single requirement.
func (s Strength) Met(req Requirement) bool {
	switch req {
	case ReqLength:
		return s.Length
	case ReqUppercase:
		return s.Uppercase
	case ReqLowercase:
		return s.Lowercase
	case ReqNumber:
		return s.Number
	case ReqSpecial:
		return s.Special
	}
	return false
}

// OK reports whether every requirement holds.
func (s Strength) OK() bool {
	return s.Length && s.Uppercase && s.Lowercase && s.Number && s.Special
}

// CheckPassword evaluates every requirement against value. Letter and digit
// classes are ASCII, matching the character classes the rules are written in.
func CheckPassword(value string, policy PasswordPolicy) Strength {
	s := Strength{Length: utf8.RuneCountInString(value) >= policy.MinLength}
	for _, r := range value {
		switch {
		case r >= 'A' && r <= 'Z':
			s.Uppercase = true
		case r >= 'a' && r <= 'z':
			s.Lowercase = true
		case r >= '0' && r <= '9':
			s.Number = true
		}
		if strings.ContainsRune(policy.Special, r) {
			s.Special = true
		}
	}
	return s
}
