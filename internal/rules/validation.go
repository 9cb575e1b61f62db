package rules

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ValidationRule is the in-memory descriptor of one field's constraints.
type ValidationRule struct {
	Field      string
	Checked    bool
	Required   bool
	MinLength  *int // nil means no constraint
	MaxLength  *int // nil means no constraint
	Allowed    Instruction
	Pattern    string
	CustomRule string
}

// NewValidationRule returns the most permissive active rule for a field.
func NewValidationRule(field string) ValidationRule {
	return ValidationRule{
		Field:   field,
		Checked: true,
		Allowed: Unconstrained{},
	}
}

// Mode returns the allowed-value mode currently in effect.
func (r ValidationRule) Mode() AllowedMode {
	if r.Allowed == nil {
		return ModeAny
	}
	return r.Allowed.Mode()
}

// SetMode switches the allowed-value mode. Changing mode clears the
// representation held for the previous mode.
func (r *ValidationRule) SetMode(mode AllowedMode) {
	if r.Allowed != nil && r.Allowed.Mode() == mode {
		return
	}
	r.Allowed = Empty(mode)
}

// Complete reports whether the rule's allowed-value source is fully specified.
func (r ValidationRule) Complete() bool {
	if r.Allowed == nil {
		return true
	}
	return Complete(r.Allowed)
}

// Wire values for the validation payload.
const (
	AllowedTypeList        = "list"
	AllowedTypeInstruction = "instruction"

	InstructionModeSheet  = "sheet"
	InstructionModeCustom = "custom"
)

// ValidationPayload is the wire form of a ValidationRule exchanged with the
// editor and written to the engine's rules file. AllowedSheet and
// AllowedColumn are omitted, not blank, when the lookup is incomplete.
type ValidationPayload struct {
	Field                  string   `json:"field" yaml:"field"`
	Checked                bool     `json:"checked" yaml:"checked"`
	Required               bool     `json:"required" yaml:"required"`
	MinLength              *int     `json:"minLength" yaml:"minLength"`
	MaxLength              *int     `json:"maxLength" yaml:"maxLength"`
	AllowedType            string   `json:"allowedType" yaml:"allowedType"`
	AllowedValues          []string `json:"allowedValues" yaml:"allowedValues"`
	AllowedInstruction     string   `json:"allowedInstruction" yaml:"allowedInstruction"`
	AllowedInstructionMode string   `json:"allowedInstructionMode" yaml:"allowedInstructionMode"`
	AllowedSheet           *string  `json:"allowedSheet,omitempty" yaml:"allowedSheet,omitempty"`
	AllowedColumn          *string  `json:"allowedColumn,omitempty" yaml:"allowedColumn,omitempty"`
	Pattern                string   `json:"pattern" yaml:"pattern"`
	CustomRule             string   `json:"customRule" yaml:"customRule"`
}

// Payload serializes the rule for the engine. It never fails; an incomplete
// sheet lookup is emitted without sheet and column.
func (r ValidationRule) Payload() ValidationPayload {
	p := ValidationPayload{
		Field:                  strings.TrimSpace(r.Field),
		Checked:                r.Checked,
		Required:               r.Required,
		MinLength:              nonNegative(r.MinLength),
		MaxLength:              nonNegative(r.MaxLength),
		AllowedType:            AllowedTypeInstruction,
		AllowedValues:          []string{},
		AllowedInstructionMode: InstructionModeCustom,
		Pattern:                strings.TrimSpace(r.Pattern),
		CustomRule:             strings.TrimSpace(r.CustomRule),
	}

	switch v := r.Allowed.(type) {
	case ValueList:
		p.AllowedType = AllowedTypeList
		p.AllowedValues = CleanValues(v.Values)
	case SheetLookup:
		p.AllowedInstructionMode = InstructionModeSheet
		if v.Complete() {
			sheet := strings.TrimSpace(v.Sheet)
			column := strings.TrimSpace(v.Column)
			p.AllowedSheet = &sheet
			p.AllowedColumn = &column
		}
	case FreeForm:
		p.AllowedInstruction = v.String()
	}

	return p
}

// Rule converts a wire payload back into a descriptor. Unknown or partial
// allowed-value settings degrade to Unconstrained. Custom instruction text is
// parsed the same way a cell would be, so "VALUE=a;b" comes back as a list.
func (p ValidationPayload) Rule() ValidationRule {
	r := ValidationRule{
		Field:      strings.TrimSpace(p.Field),
		Checked:    p.Checked,
		Required:   p.Required,
		MinLength:  nonNegative(p.MinLength),
		MaxLength:  nonNegative(p.MaxLength),
		Allowed:    Unconstrained{},
		Pattern:    strings.TrimSpace(p.Pattern),
		CustomRule: strings.TrimSpace(p.CustomRule),
	}

	switch strings.ToLower(p.AllowedType) {
	case AllowedTypeList:
		r.Allowed = ValueList{Values: CleanValues(p.AllowedValues)}
	case AllowedTypeInstruction:
		switch strings.ToLower(p.AllowedInstructionMode) {
		case InstructionModeSheet:
			r.Allowed = SheetLookup{Sheet: deref(p.AllowedSheet), Column: deref(p.AllowedColumn)}
		case InstructionModeCustom, "":
			r.Allowed = Parse(p.AllowedInstruction)
		}
	}

	return r
}

// ValidationPayloads serializes a rule set, skipping rules without a field name.
func ValidationPayloads(rules []ValidationRule) []ValidationPayload {
	out := make([]ValidationPayload, 0, len(rules))
	for _, r := range rules {
		if strings.TrimSpace(r.Field) == "" {
			continue
		}
		out = append(out, r.Payload())
	}
	return out
}

// DecodeValidationJSON parses an editor-supplied JSON array of validation
// payloads.
func DecodeValidationJSON(data []byte) ([]ValidationRule, error) {
	var payloads []ValidationPayload
	if err := json.Unmarshal(data, &payloads); err != nil {
		return nil, fmt.Errorf("decode validation rules: %w", err)
	}
	out := make([]ValidationRule, 0, len(payloads))
	for _, p := range payloads {
		out = append(out, p.Rule())
	}
	return out, nil
}

func nonNegative(v *int) *int {
	if v == nil || *v < 0 {
		return nil
	}
	n := *v
	return &n
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
