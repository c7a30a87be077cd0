package registration

// Layout is the ordered set of controls on the form plus the element ids of
// the password-requirement indicators.
type Layout struct {
	Fields     []FieldSpec
	Indicators map[Requirement]string
}

// DefaultLayout is the registration form as served by the register feature.
func DefaultLayout() Layout {
	slot := func(n FieldName) string { return string(n) + "Error" }
	return Layout{
		Fields: []FieldSpec{
			{Name: FirstName, Label: "First Name", Kind: KindText, Required: true, ErrorSlot: slot(FirstName)},
			{Name: LastName, Label: "Last Name", Kind: KindText, Required: true, ErrorSlot: slot(LastName)},
			{Name: Email, Label: "Email Address", Kind: KindEmail, Required: true, ErrorSlot: slot(Email)},
			{Name: Phone, Label: "Phone Number", Kind: KindTel, Placeholder: "+15551234567", ErrorSlot: slot(Phone)},
			{Name: Organization, Label: "Organization", Kind: KindText, Required: true, ErrorSlot: slot(Organization)},
			{
				Name: OrganizationType, Label: "Organization Type", Kind: KindSelect, Required: true,
				ErrorSlot: slot(OrganizationType),
				Options: []Option{
					{Value: "", Label: "Select organization type"},
					{Value: "nonprofit", Label: "Non-profit"},
					{Value: "education", Label: "Education"},
					{Value: "government", Label: "Government"},
					{Value: "business", Label: "Business"},
					{Value: "other", Label: "Other"},
				},
			},
			{Name: Password, Label: "Password", Kind: KindPassword, Required: true, ErrorSlot: slot(Password)},
			{Name: ConfirmPassword, Label: "Confirm Password", Kind: KindPassword, Required: true, ErrorSlot: slot(ConfirmPassword)},
			{Name: Terms, Label: "I agree to the Terms and Conditions", Kind: KindCheckbox, Required: true, ErrorSlot: slot(Terms)},
		},
		Indicators: map[Requirement]string{
			ReqLength:    "lengthReq",
			ReqUppercase: "uppercaseReq",
			ReqLowercase: "lowercaseReq",
			ReqNumber:    "numberReq",
			ReqSpecial:   "specialReq",
		},
	}
}

// ErrorSlot is the element that displays a field's error text.
type ErrorSlot struct {
	ID   string
	Text string
}

// Indicator is one password-requirement element.
type Indicator struct {
	ID   string
	Mark Mark
}

// SubmitControl is the state of the submit button.
type SubmitControl struct {
	Disabled bool   `json:"disabled"`
	Label    string `json:"label"`
}

// Page is the document model of one registration form: its fields in
// document order, their error slots and the requirement indicators. The
// field to slot mapping is resolved once in NewPage.
type Page struct {
	ID string

	fields     []*Field
	byName     map[FieldName]*Field
	slots      map[FieldName]*ErrorSlot
	indicators map[Requirement]*Indicator

	Submit         SubmitControl
	SuccessVisible bool
	Focus          FieldName
	Location       string

	// Revision counts the changes made to the page. It only grows.
	Revision uint64
}

// NewPage builds a page from layout. submitLabel is the idle label of the
// submit control.
func NewPage(id string, layout Layout, submitLabel string) *Page {
	p := &Page{
		ID:         id,
		fields:     make([]*Field, 0, len(layout.Fields)),
		byName:     make(map[FieldName]*Field, len(layout.Fields)),
		slots:      make(map[FieldName]*ErrorSlot, len(layout.Fields)),
		indicators: make(map[Requirement]*Indicator, len(layout.Indicators)),
		Submit:     SubmitControl{Label: submitLabel},
	}
	for _, spec := range layout.Fields {
		if _, dup := p.byName[spec.Name]; dup {
			continue
		}
		f := &Field{FieldSpec: spec}
		if spec.Kind == KindCheckbox {
			f.Value = CheckboxValue
		}
		p.fields = append(p.fields, f)
		p.byName[spec.Name] = f
		if spec.ErrorSlot != "" {
			p.slots[spec.Name] = &ErrorSlot{ID: spec.ErrorSlot}
		}
	}
	for req, id := range layout.Indicators {
		if id != "" {
			p.indicators[req] = &Indicator{ID: id}
		}
	}
	return p
}

// Field returns the named field.
func (p *Page) Field(name FieldName) (*Field, bool) {
	f, ok := p.byName[name]
	return f, ok
}

// Fields returns the fields in document order.
func (p *Page) Fields() []*Field {
	return p.fields
}

// Slot returns the error slot of a field, or nil when the page has none.
func (p *Page) Slot(name FieldName) *ErrorSlot {
	return p.slots[name]
}

// Indicator returns the element for a requirement, or nil when absent.
func (p *Page) Indicator(req Requirement) *Indicator {
	return p.indicators[req]
}

// SetValue stores the raw value of a text, select or password control.
// For a checkbox it sets the checked state instead.
func (p *Page) SetValue(name FieldName, value string) error {
	f, ok := p.byName[name]
	if !ok {
		return ErrUnknownField
	}
	if f.Kind == KindCheckbox {
		f.Checked = truthy(value)
		return nil
	}
	f.Value = normalizeValue(value)
	return nil
}

// SetChecked sets the checked state of a checkbox.
func (p *Page) SetChecked(name FieldName, checked bool) error {
	f, ok := p.byName[name]
	if !ok {
		return ErrUnknownField
	}
	f.Checked = checked
	return nil
}

// clearField removes both markers and empties the error text.
func (p *Page) clearField(f *Field) {
	f.Mark = MarkNone
	if s := p.slots[f.Name]; s != nil {
		s.Text = ""
	}
}

func (p *Page) failField(f *Field, msg string) {
	f.Mark = MarkError
	if s := p.slots[f.Name]; s != nil {
		s.Text = msg
	}
}

func (p *Page) setIndicators(s Strength) {
	for _, req := range Requirements {
		ind := p.indicators[req]
		if ind == nil {
			continue
		}
		if s.Met(req) {
			ind.Mark = MarkValid
		} else {
			ind.Mark = MarkInvalid
		}
	}
}

// Reset clears every value, marker, error text and indicator and restores
// the submit control to submitLabel.
func (p *Page) Reset(submitLabel string) {
	for _, f := range p.fields {
		if f.Kind == KindCheckbox {
			f.Checked = false
		} else {
			f.Value = ""
		}
		p.clearField(f)
	}
	for _, ind := range p.indicators {
		ind.Mark = MarkNone
	}
	p.Submit = SubmitControl{Label: submitLabel}
	p.Focus = ""
}
