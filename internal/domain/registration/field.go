package registration

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// FieldName identifies one control on the registration form.
type FieldName string

const (
	FirstName        FieldName = "firstName"
	LastName         FieldName = "lastName"
	Email            FieldName = "email"
	Phone            FieldName = "phone"
	Organization     FieldName = "organization"
	OrganizationType FieldName = "organizationType"
	Password         FieldName = "password"
	ConfirmPassword  FieldName = "confirmPassword"
	Terms            FieldName = "terms"
)

// Kind is the control type a field is rendered as.
type Kind string

const (
	KindText     Kind = "text"
	KindEmail    Kind = "email"
	KindTel      Kind = "tel"
	KindSelect   Kind = "select"
	KindPassword Kind = "password"
	KindCheckbox Kind = "checkbox"
)

// Mark is the validity marker carried by a field or a requirement indicator.
// Fields use MarkError and MarkValid; indicators use MarkValid and MarkInvalid.
type Mark string

const (
	MarkNone    Mark = ""
	MarkError   Mark = "error"
	MarkValid   Mark = "valid"
	MarkInvalid Mark = "invalid"
)

// CheckboxValue is the fixed value a checkbox control reports whether or
// not it is checked.
const CheckboxValue = "on"

// Option is one choice of a select control.
type Option struct {
	Value string
	Label string
}

// FieldSpec describes a control as it is laid out on the page.
type FieldSpec struct {
	Name        FieldName
	Label       string
	Kind        Kind
	Required    bool
	Placeholder string
	Options     []Option

	// ErrorSlot is the id of the element that displays this field's error.
	// Empty means the page has no slot for the field.
	ErrorSlot string
}

// Field is the live state of one control.
type Field struct {
	FieldSpec
	Value   string
	Checked bool
	Mark    Mark
}

// normalizeValue brings user input to NFC so visually identical values
// compare equal. Trimming is left to validation.
func normalizeValue(s string) string {
	if norm.NFC.IsNormalString(s) {
		return s
	}
	return norm.NFC.String(s)
}

// truthy reports whether a submitted checkbox value means "checked".
func truthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "0", "false", "off", "no":
		return false
	}
	return true
}
