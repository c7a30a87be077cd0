package registration

import (
	"strings"

	"go.uber.org/zap"
)

// Validator runs the configured rules against a Page and keeps the page's
// markers, error texts and requirement indicators in step with the last
// validation of each field.
//
// A Validator is not safe for concurrent use; Controller serialises access.
type Validator struct {
	cfg    Config
	page   *Page
	logger *zap.Logger

	// OnResult, when set, is called after every single-field validation.
	OnResult func(name FieldName, ok bool)
}

// NewValidator binds cfg to page.
func NewValidator(page *Page, cfg Config, logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{cfg: cfg, page: page, logger: logger}
}

// ValidateField validates the current value of one field and updates its
// marker and error text. Unknown fields fail without touching the page.
func (v *Validator) ValidateField(name FieldName) bool {
	f, ok := v.page.Field(name)
	if !ok {
		v.logger.Warn("validate: unknown field", zap.String("field", string(name)))
		return false
	}

	value := strings.TrimSpace(f.Value)
	v.page.clearField(f)

	if value == "" {
		if f.Required {
			v.page.failField(f, v.cfg.RequiredMessage)
			v.report(name, false)
			return false
		}
		// Optional and empty: passes, but nothing to mark valid.
		v.report(name, true)
		return true
	}

	if !v.check(f, value) {
		v.page.failField(f, v.cfg.Message(name))
		v.report(name, false)
		return false
	}
	f.Mark = MarkValid
	v.report(name, true)
	return true
}

func (v *Validator) check(f *Field, value string) bool {
	rule, ok := v.cfg.Rules[f.Name]
	if !ok {
		return true
	}
	switch {
	case rule.Strength:
		return v.ValidatePassword(value)
	case rule.Pattern != nil:
		return rule.Pattern.MatchString(value)
	case rule.Predicate != nil:
		return rule.Predicate(value, f, v.page)
	}
	return true
}

// ValidatePassword evaluates every strength requirement against value,
// updates each indicator on its own, and reports whether all of them hold.
func (v *Validator) ValidatePassword(value string) bool {
	s := CheckPassword(value, v.cfg.Password)
	v.page.setIndicators(s)
	return s.OK()
}

// ValidateForm validates every field in document order. It never stops at
// the first failure so all errors are shown together.
func (v *Validator) ValidateForm() bool {
	valid := true
	for _, f := range v.page.Fields() {
		if !v.ValidateField(f.Name) {
			valid = false
		}
	}
	return valid
}

// FirstError returns the first field in document order currently marked
// as an error.
func (v *Validator) FirstError() (FieldName, bool) {
	for _, f := range v.page.Fields() {
		if f.Mark == MarkError {
			return f.Name, true
		}
	}
	return "", false
}

// Progress is the share of fields currently marked valid, in percent,
// rounded half up.
func (v *Validator) Progress() int {
	fields := v.page.Fields()
	if len(fields) == 0 {
		return 0
	}
	n := 0
	for _, f := range fields {
		if f.Mark == MarkValid {
			n++
		}
	}
	return (n*200 + len(fields)) / (2 * len(fields))
}

func (v *Validator) report(name FieldName, ok bool) {
	if v.OnResult != nil {
		v.OnResult(name, ok)
	}
}
