package rules

// derive.go builds an initial rule set from an uploaded workbook.
//
// An explicit rules sheet is authoritative: every row with a non-empty Field
// (or Target) becomes one descriptor, in row order, duplicates included. When
// the rules sheet is missing or yields nothing, the header row of the
// template sheet is used instead and every header becomes a permissive rule.

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Default sheet names looked up in uploaded workbooks.
const (
	DefaultValidationSheet = "ValidationRules"
	DefaultMappingSheet    = "MappingRules"
)

// SheetSource yields the raw cell grid of a workbook's sheets.
type SheetSource interface {
	SheetNames() []string
	Rows(sheet string) ([][]string, error)
}

// DeriveOptions selects the sheets used for derivation. Empty names fall back
// to the defaults: the kind's rules sheet, and the first other sheet as the
// template.
type DeriveOptions struct {
	RulesSheet    string
	TemplateSheet string
}

// truthy holds the accepted spellings of a checked boolean cell.
var truthy = map[string]bool{
	"true": true, "1": true, "yes": true, "oui": true, "y": true, "x": true,
}

// ParseTruthy interprets a spreadsheet boolean cell. Anything outside the
// truthy set, including blank, is false.
func ParseTruthy(s string) bool {
	return truthy[strings.ToLower(strings.TrimSpace(s))]
}

// ParseLength interprets a length cell. Blank or non-numeric text means no
// constraint (nil) rather than zero; negative values are ignored as well.
func ParseLength(s string) *int {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 {
			return nil
		}
		return &n
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	if err != nil || f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	n := int(f)
	return &n
}

// DeriveValidation returns one ValidationRule per field found in src.
func DeriveValidation(src SheetSource, opts DeriveOptions) ([]ValidationRule, error) {
	rulesSheet := orDefault(opts.RulesSheet, DefaultValidationSheet)

	records, err := namedRecords(src, rulesSheet)
	if err != nil {
		return nil, err
	}

	var out []ValidationRule
	for _, rec := range records {
		field := rec.get("field")
		if field == "" {
			continue
		}
		out = append(out, ValidationRule{
			Field:      field,
			Checked:    ParseTruthy(rec.get("checked")),
			Required:   ParseTruthy(rec.get("required")),
			MinLength:  ParseLength(rec.get("minlength", "min")),
			MaxLength:  ParseLength(rec.get("maxlength", "max")),
			Allowed:    Parse(rec.get("allowedvalues", "allowed", "values", "instruction")),
			Pattern:    rec.get("pattern", "regex"),
			CustomRule: rec.get("customrule", "custom"),
		})
	}
	if len(out) > 0 {
		return out, nil
	}

	fields, err := templateFields(src, rulesSheet, opts.TemplateSheet)
	if err != nil {
		return nil, err
	}
	for _, f := range fields {
		out = append(out, NewValidationRule(f))
	}
	return out, nil
}

// DeriveMapping returns one MappingRule per target found in src. Template
// headers become COPY rules for the same-named source column.
func DeriveMapping(src SheetSource, opts DeriveOptions) ([]MappingRule, error) {
	rulesSheet := orDefault(opts.RulesSheet, DefaultMappingSheet)

	records, err := namedRecords(src, rulesSheet)
	if err != nil {
		return nil, err
	}

	var out []MappingRule
	for _, rec := range records {
		target := rec.get("target", "column", "field")
		if target == "" {
			continue
		}
		out = append(out, ParseMapping(target, rec.get("rule", "instruction", "mapping")))
	}
	if len(out) > 0 {
		return out, nil
	}

	fields, err := templateFields(src, rulesSheet, opts.TemplateSheet)
	if err != nil {
		return nil, err
	}
	for _, f := range fields {
		out = append(out, MappingRule{Target: f, Kind: MapCopy, Arg: f})
	}
	return out, nil
}

// record is one data row keyed by normalized header.
type record map[string]string

func (r record) get(keys ...string) string {
	for _, k := range keys {
		if v, ok := r[k]; ok {
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		}
	}
	return ""
}

// namedRecords reads sheet with its first non-blank row as header. A missing
// sheet yields no records.
func namedRecords(src SheetSource, sheet string) ([]record, error) {
	name, ok := findSheet(src, sheet)
	if !ok {
		return nil, nil
	}
	rows, err := src.Rows(name)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", name, err)
	}

	headerAt := firstNonBlank(rows)
	if headerAt < 0 {
		return nil, nil
	}
	header := make([]string, len(rows[headerAt]))
	for i, h := range rows[headerAt] {
		header[i] = normalizeHeader(h)
	}

	var out []record
	for _, row := range rows[headerAt+1:] {
		rec := make(record, len(header))
		for i, key := range header {
			if key == "" || i >= len(row) {
				continue
			}
			if _, seen := rec[key]; !seen {
				rec[key] = row[i]
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

// templateFields returns the non-blank cells of the template sheet's first
// non-blank row.
func templateFields(src SheetSource, rulesSheet, templateSheet string) ([]string, error) {
	name, ok := pickTemplate(src, rulesSheet, templateSheet)
	if !ok {
		return nil, nil
	}
	rows, err := src.Rows(name)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", name, err)
	}

	at := firstNonBlank(rows)
	if at < 0 {
		return nil, nil
	}
	var fields []string
	for _, cell := range rows[at] {
		if cell = strings.TrimSpace(cell); cell != "" {
			fields = append(fields, cell)
		}
	}
	return fields, nil
}

func pickTemplate(src SheetSource, rulesSheet, templateSheet string) (string, bool) {
	if templateSheet != "" {
		return findSheet(src, templateSheet)
	}
	for _, name := range src.SheetNames() {
		if isRulesSheet(name, rulesSheet) {
			continue
		}
		return name, true
	}
	return "", false
}

func isRulesSheet(name, rulesSheet string) bool {
	return strings.EqualFold(name, rulesSheet) ||
		strings.EqualFold(name, DefaultValidationSheet) ||
		strings.EqualFold(name, DefaultMappingSheet)
}

func findSheet(src SheetSource, want string) (string, bool) {
	for _, name := range src.SheetNames() {
		if strings.EqualFold(strings.TrimSpace(name), strings.TrimSpace(want)) {
			return name, true
		}
	}
	return "", false
}

func firstNonBlank(rows [][]string) int {
	for i, row := range rows {
		for _, cell := range row {
			if strings.TrimSpace(cell) != "" {
				return i
			}
		}
	}
	return -1
}

// normalizeHeader lowercases and strips separators so "Min Length",
// "min_length" and "MinLength" all match.
func normalizeHeader(h string) string {
	return strings.NewReplacer(" ", "", "_", "", "-", "").Replace(strings.ToLower(strings.TrimSpace(h)))
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
