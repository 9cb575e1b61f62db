package rules

// instruction.go implements the allowed-value instruction language stored in
// spreadsheet cells.
//
// Grammar (prefixes are case-insensitive):
//
//	VALUE=a;b;c              explicit list of permissible values
//	SHEET=Lists!Country      lookup table: sheet + column
//	SHEET=Lists;COLUMN=Code  same, token form (COL= also accepted)
//	anything else            free-form instruction, kept verbatim
//	(empty)                  no constraint
//
// Parse always returns one of the four Instruction variants. String renders the
// canonical form, so Parse(i.String()) yields i again once whitespace has been
// normalized.

import "strings"

// Instruction prefixes understood by the engine.
const (
	PrefixValue  = "VALUE="
	PrefixSheet  = "SHEET="
	PrefixColumn = "COLUMN="
	PrefixCol    = "COL="
)

// AllowedMode describes how permissible values are sourced for a field.
type AllowedMode string

const (
	ModeAny   AllowedMode = "any"
	ModeList  AllowedMode = "list"
	ModeSheet AllowedMode = "sheet"
)

// Instruction is the closed set of allowed-value sources:
// Unconstrained, ValueList, SheetLookup and FreeForm.
type Instruction interface {
	// Mode reports which allowed-value representation the instruction populates.
	Mode() AllowedMode
	// String renders the canonical instruction text.
	String() string

	isInstruction()
}

// Unconstrained places no restriction on permissible values.
type Unconstrained struct{}

// ValueList restricts values to an explicit ordered list.
type ValueList struct {
	Values []string
}

// SheetLookup restricts values to a column of an auxiliary sheet.
type SheetLookup struct {
	Sheet  string
	Column string
}

// FreeForm is an opaque directive passed to the engine verbatim.
type FreeForm struct {
	Text string
}

func (Unconstrained) Mode() AllowedMode { return ModeAny }
func (ValueList) Mode() AllowedMode     { return ModeList }
func (SheetLookup) Mode() AllowedMode   { return ModeSheet }
func (FreeForm) Mode() AllowedMode      { return ModeAny }

func (Unconstrained) isInstruction() {}
func (ValueList) isInstruction()     {}
func (SheetLookup) isInstruction()   {}
func (FreeForm) isInstruction()      {}

func (Unconstrained) String() string { return "" }

func (v ValueList) String() string {
	return PrefixValue + strings.Join(CleanValues(v.Values), ";")
}

func (s SheetLookup) String() string {
	sheet := strings.TrimSpace(s.Sheet)
	column := strings.TrimSpace(s.Column)
	if column == "" {
		return PrefixSheet + sheet
	}
	return PrefixSheet + sheet + "!" + column
}

func (f FreeForm) String() string { return strings.TrimSpace(f.Text) }

// Complete reports whether the sheet reference names both a sheet and a column.
func (s SheetLookup) Complete() bool {
	return strings.TrimSpace(s.Sheet) != "" && strings.TrimSpace(s.Column) != ""
}

// Parse decodes a raw cell value into an Instruction. It never fails:
// unrecognized text becomes FreeForm and blank text becomes Unconstrained.
func Parse(raw string) Instruction {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Unconstrained{}
	}

	if rest, ok := cutPrefixFold(s, PrefixValue); ok {
		return ValueList{Values: splitValues(rest)}
	}

	if rest, ok := cutPrefixFold(s, PrefixSheet); ok {
		return parseSheetRef(rest)
	}

	return FreeForm{Text: s}
}

// parseSheetRef decodes the part after SHEET=. The "!" separator wins over the
// token form; in the token form the first token is the sheet name and the
// first COLUMN=/COL= token names the column.
func parseSheetRef(rest string) SheetLookup {
	if sheet, column, ok := strings.Cut(rest, "!"); ok {
		return SheetLookup{
			Sheet:  strings.TrimSpace(sheet),
			Column: strings.TrimSpace(column),
		}
	}

	tokens := strings.Split(rest, ";")
	ref := SheetLookup{Sheet: strings.TrimSpace(tokens[0])}
	for _, tok := range tokens[1:] {
		tok = strings.TrimSpace(tok)
		key, value, ok := strings.Cut(tok, "=")
		if !ok {
			continue
		}
		key = strings.ToUpper(strings.TrimSpace(key)) + "="
		if key == PrefixColumn || key == PrefixCol {
			ref.Column = strings.TrimSpace(value)
			break
		}
	}
	return ref
}

// CleanValues trims every value and drops the empty ones, preserving order
// and duplicates.
func CleanValues(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func splitValues(s string) []string {
	return CleanValues(strings.Split(s, ";"))
}

// cutPrefixFold is strings.CutPrefix with ASCII case folding on the prefix.
func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) < len(prefix) || !strings.EqualFold(s[:len(prefix)], prefix) {
		return s, false
	}
	return s[len(prefix):], true
}

// Complete reports whether an instruction carries everything the engine needs.
// Value lists are always complete; sheet lookups need sheet and column;
// free-form text must be non-blank.
func Complete(in Instruction) bool {
	switch v := in.(type) {
	case SheetLookup:
		return v.Complete()
	case FreeForm:
		return strings.TrimSpace(v.Text) != ""
	default:
		return true
	}
}

// Empty returns the blank instruction for a mode. Switching a rule to a new
// mode replaces its instruction with this value, which discards whatever the
// previous mode held.
func Empty(mode AllowedMode) Instruction {
	switch mode {
	case ModeList:
		return ValueList{Values: []string{}}
	case ModeSheet:
		return SheetLookup{}
	default:
		return Unconstrained{}
	}
}
