package registration

// FieldView is the rendered state of one field. Presentation attributes
// are only used by templates and are left out of the JSON form.
type FieldView struct {
	Name      FieldName `json:"name"`
	Value     string    `json:"value"`
	Checked   bool      `json:"checked,omitempty"`
	Mark      Mark      `json:"mark"`
	Error     string    `json:"error"`
	ErrorSlot string    `json:"errorSlot,omitempty"`

	Label       string   `json:"-"`
	Kind        Kind     `json:"-"`
	Required    bool     `json:"-"`
	Placeholder string   `json:"-"`
	Options     []Option `json:"-"`
}

// IndicatorView is the rendered state of one requirement indicator.
type IndicatorView struct {
	Requirement Requirement `json:"requirement"`
	ID          string      `json:"id"`
	Mark        Mark        `json:"mark"`
}

// SuccessView describes the success indication.
type SuccessView struct {
	Visible bool        `json:"visible"`
	Text    string      `json:"text"`
	Mode    SuccessMode `json:"mode"`
}

// View is a point-in-time copy of a page that can be rendered, sent to the
// client or persisted. Password values are never included. Of two views of
// the same page, the one with the higher Revision is the newer.
type View struct {
	ID         string          `json:"id"`
	Revision   uint64          `json:"revision"`
	Phase      Phase           `json:"phase"`
	Fields     []FieldView     `json:"fields"`
	Indicators []IndicatorView `json:"indicators"`
	Submit     SubmitControl   `json:"submit"`
	Success    SuccessView     `json:"success"`
	Focus      FieldName       `json:"focus,omitempty"`
	Location   string          `json:"location,omitempty"`
	Progress   int             `json:"progress"`
}

// Field returns the named field view, or a zero value when absent.
func (v View) Field(name string) FieldView {
	for _, f := range v.Fields {
		if string(f.Name) == name {
			return f
		}
	}
	return FieldView{}
}

// Indicator returns the view of a requirement indicator.
func (v View) Indicator(req string) IndicatorView {
	for _, ind := range v.Indicators {
		if string(ind.Requirement) == req {
			return ind
		}
	}
	return IndicatorView{Requirement: Requirement(req)}
}

func buildView(p *Page, phase Phase, cfg Config, progress int) View {
	v := View{
		ID:       p.ID,
		Revision: p.Revision,
		Phase:    phase,
		Fields:   make([]FieldView, 0, len(p.fields)),
		Submit:   p.Submit,
		Focus:    p.Focus,
		Location: p.Location,
		Progress: progress,
		Success: SuccessView{
			Visible: p.SuccessVisible,
			Text:    cfg.SuccessText,
			Mode:    cfg.SuccessMode,
		},
	}
	for _, f := range p.fields {
		fv := FieldView{
			Name:        f.Name,
			Value:       f.Value,
			Checked:     f.Checked,
			Mark:        f.Mark,
			Label:       f.Label,
			Kind:        f.Kind,
			Required:    f.Required,
			Placeholder: f.Placeholder,
			Options:     f.Options,
		}
		if f.Kind == KindPassword {
			fv.Value = ""
		}
		if s := p.slots[f.Name]; s != nil {
			fv.Error = s.Text
			fv.ErrorSlot = s.ID
		}
		v.Fields = append(v.Fields, fv)
	}
	for _, req := range Requirements {
		ind := p.indicators[req]
		if ind == nil {
			continue
		}
		v.Indicators = append(v.Indicators, IndicatorView{Requirement: req, ID: ind.ID, Mark: ind.Mark})
	}
	return v
}

// RestorePage rebuilds a page from a previously taken view. Password
// fields come back empty and unmarked because their values were never
// kept, and the requirement indicators start neutral.
func RestorePage(layout Layout, v View, submitLabel string) *Page {
	p := NewPage(v.ID, layout, submitLabel)
	p.Revision = v.Revision
	for _, fv := range v.Fields {
		f, ok := p.byName[fv.Name]
		if !ok || f.Kind == KindPassword {
			continue
		}
		if f.Kind == KindCheckbox {
			f.Checked = fv.Checked
		} else {
			f.Value = normalizeValue(fv.Value)
		}
		f.Mark = fv.Mark
		if s := p.slots[f.Name]; s != nil {
			s.Text = fv.Error
		}
	}
	return p
}
