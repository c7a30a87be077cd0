package registration

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Rule is the check and message associated with one field.
//
// Exactly one of Pattern, Predicate or Strength is normally set. A rule
// with none of them accepts any non-empty value.
type Rule struct {
	Pattern   *regexp.Regexp
	Predicate func(value string, f *Field, p *Page) bool
	// Strength delegates the check to the password-strength requirements.
	Strength bool
	Message  string
}

// SuccessMode selects how the client shows the success indication.
type SuccessMode string

const (
	SuccessBanner SuccessMode = "banner"
	SuccessAlert  SuccessMode = "alert"
)

// Config is the complete rule set and timing for one registration form.
// Build it once and hand it to NewValidator / NewController; it is not
// mutated afterwards.
type Config struct {
	RequiredMessage string
	Rules           map[FieldName]Rule
	Password        PasswordPolicy

	SubmitLabel  string
	WorkingLabel string
	SuccessText  string
	SuccessMode  SuccessMode

	SubmitDelay   time.Duration
	RedirectDelay time.Duration
	LandingURL    string
}

// Default patterns.
var (
	namePattern         = regexp.MustCompile(`^[a-zA-Z]{2,30}$`)
	emailPattern        = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	phonePattern        = regexp.MustCompile(`^\+?[1-9]\d{0,15}$`)
	organizationPattern = regexp.MustCompile(`^[a-zA-Z0-9\s\-.]{2,100}$`)
)

// DefaultConfig returns the stock registration rules.
func DefaultConfig() Config {
	return Config{
		RequiredMessage: "This field is required",
		Rules: map[FieldName]Rule{
			FirstName: {
				Pattern: namePattern,
				Message: "First name must contain only letters (2-30 characters)",
			},
			LastName: {
				Pattern: namePattern,
				Message: "Last name must contain only letters (2-30 characters)",
			},
			Email: {
				Pattern: emailPattern,
				Message: "Please enter a valid email address",
			},
			Phone: {
				Pattern: phonePattern,
				Message: "Please enter a valid phone number",
			},
			Organization: {
				Pattern: organizationPattern,
				Message: "Organization name must be 2-100 characters",
			},
			OrganizationType: {
				Predicate: func(value string, _ *Field, _ *Page) bool { return value != "" },
				Message:   "Please select an organization type",
			},
			Password: {
				Strength: true,
				Message:  "Password must meet all requirements",
			},
			ConfirmPassword: {
				// The password side is compared as typed.
				Predicate: func(value string, _ *Field, p *Page) bool {
					pw, ok := p.Field(Password)
					return ok && value == pw.Value
				},
				Message: "Passwords do not match",
			},
			Terms: {
				Predicate: func(_ string, f *Field, _ *Page) bool { return f.Checked },
				Message:   "You must agree to the terms and conditions",
			},
		},
		Password: PasswordPolicy{
			MinLength: 8,
			Special:   "@$!%*?&",
		},
		SubmitLabel:   "Create Account",
		WorkingLabel:  "Creating Account...",
		SuccessText:   "Account created successfully! Redirecting...",
		SuccessMode:   SuccessBanner,
		SubmitDelay:   2 * time.Second,
		RedirectDelay: 2 * time.Second,
		LandingURL:    "/",
	}
}

// Message returns the failure message for a field, or the required
// message when the field has no rule.
func (c Config) Message(name FieldName) string {
	if r, ok := c.Rules[name]; ok && r.Message != "" {
		return r.Message
	}
	return c.RequiredMessage
}

// clone copies the rule map so overrides never touch the receiver's map.
func (c Config) clone() Config {
	out := c
	out.Rules = make(map[FieldName]Rule, len(c.Rules))
	for k, v := range c.Rules {
		out.Rules[k] = v
	}
	return out
}

// rulesFile is the on-disk shape of a rules override file.
type rulesFile struct {
	Messages map[string]string `yaml:"messages"`
	Patterns map[string]string `yaml:"patterns"`
	Password struct {
		MinLength int    `yaml:"min_length"`
		Special   string `yaml:"special"`
	} `yaml:"password"`
	Labels struct {
		Submit  string `yaml:"submit"`
		Working string `yaml:"working"`
		Success string `yaml:"success"`
	} `yaml:"labels"`
}

// ApplyOverrides reads a YAML rules document and returns a copy of c with
// the overrides applied. Only pattern rules can have their pattern replaced.
//
//	messages:
//	  required: "Required"
//	  phone: "Digits only, please"
//	patterns:
//	  phone: '^\+?[0-9]\d{0,15}$'
//	password:
//	  min_length: 10
func (c Config) ApplyOverrides(r io.Reader) (Config, error) {
	var doc rulesFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && err != io.EOF {
		return c, fmt.Errorf("decode rules: %w", err)
	}

	out := c.clone()
	for key, msg := range doc.Messages {
		msg = strings.TrimSpace(msg)
		if msg == "" {
			return c, fmt.Errorf("rules: empty message for %q", key)
		}
		if key == "required" {
			out.RequiredMessage = msg
			continue
		}
		rule, ok := out.Rules[FieldName(key)]
		if !ok {
			return c, fmt.Errorf("rules: message for unknown field %q", key)
		}
		rule.Message = msg
		out.Rules[FieldName(key)] = rule
	}

	for key, expr := range doc.Patterns {
		rule, ok := out.Rules[FieldName(key)]
		if !ok {
			return c, fmt.Errorf("rules: pattern for unknown field %q", key)
		}
		if rule.Pattern == nil {
			return c, fmt.Errorf("rules: field %q is not pattern based", key)
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return c, fmt.Errorf("rules: pattern for %q: %w", key, err)
		}
		rule.Pattern = re
		out.Rules[FieldName(key)] = rule
	}

	if doc.Password.MinLength < 0 {
		return c, fmt.Errorf("rules: password min_length must be >= 0")
	}
	if doc.Password.MinLength > 0 {
		out.Password.MinLength = doc.Password.MinLength
	}
	if doc.Password.Special != "" {
		out.Password.Special = doc.Password.Special
	}
	if doc.Labels.Submit != "" {
		out.SubmitLabel = doc.Labels.Submit
	}
	if doc.Labels.Working != "" {
		out.WorkingLabel = doc.Labels.Working
	}
	if doc.Labels.Success != "" {
		out.SuccessText = doc.Labels.Success
	}
	return out, nil
}

// LoadRulesFile applies the overrides in path on top of c.
func (c Config) LoadRulesFile(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return c, fmt.Errorf("open rules file: %w", err)
	}
	defer f.Close()
	return c.ApplyOverrides(f)
}
