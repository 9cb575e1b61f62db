package rules

// mapping.go implements the column-generation instructions used by the
// mapping engine. Each output column (target) carries one instruction:
//
//	(empty)            engine default
//	COPY=Name          copy a source column
//	SHEET=Codes!Label  look the value up in another sheet
//	VALUE=EUR          fixed value
//	SEQ=INV-{0000}     numbering pattern
//	CONCAT=A & " " & B concatenation expression
//	EMPTY              leave the column blank
//	anything else      custom directive, verbatim

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Mapping instruction prefixes.
const (
	PrefixCopy   = "COPY="
	PrefixSeq    = "SEQ="
	PrefixConcat = "CONCAT="
	KeywordEmpty = "EMPTY"
)

// MappingKind identifies how a target column is produced.
type MappingKind string

const (
	MapDefault  MappingKind = "default"
	MapCopy     MappingKind = "copy"
	MapLookup   MappingKind = "lookup"
	MapFixed    MappingKind = "fixed"
	MapSequence MappingKind = "sequence"
	MapConcat   MappingKind = "concat"
	MapEmpty    MappingKind = "empty"
	MapCustom   MappingKind = "custom"
)

// MappingRule describes how one output column is generated.
type MappingRule struct {
	Target string
	Kind   MappingKind
	// Arg holds the copy source, fixed value, numbering pattern,
	// concatenation expression or custom text depending on Kind.
	Arg    string
	Lookup SheetLookup
}

// ParseMapping decodes a mapping instruction for target.
func ParseMapping(target, raw string) MappingRule {
	m := MappingRule{Target: strings.TrimSpace(target), Kind: MapDefault}
	s := strings.TrimSpace(raw)

	switch {
	case s == "":
	case strings.EqualFold(s, KeywordEmpty):
		m.Kind = MapEmpty
	case hasPrefixFold(s, PrefixValue):
		m.Kind, m.Arg = MapFixed, trimAfter(s, PrefixValue)
	case hasPrefixFold(s, PrefixSheet):
		m.Kind, m.Lookup = MapLookup, parseSheetRef(s[len(PrefixSheet):])
	case hasPrefixFold(s, PrefixCopy):
		m.Kind, m.Arg = MapCopy, trimAfter(s, PrefixCopy)
	case hasPrefixFold(s, PrefixSeq):
		m.Kind, m.Arg = MapSequence, trimAfter(s, PrefixSeq)
	case hasPrefixFold(s, PrefixConcat):
		m.Kind, m.Arg = MapConcat, trimAfter(s, PrefixConcat)
	default:
		m.Kind, m.Arg = MapCustom, s
	}
	return m
}

// Instruction renders the canonical instruction string.
func (m MappingRule) Instruction() string {
	arg := strings.TrimSpace(m.Arg)
	switch m.Kind {
	case MapCopy:
		return PrefixCopy + arg
	case MapLookup:
		return m.Lookup.String()
	case MapFixed:
		return PrefixValue + arg
	case MapSequence:
		return PrefixSeq + arg
	case MapConcat:
		return PrefixConcat + arg
	case MapEmpty:
		return KeywordEmpty
	case MapCustom:
		return arg
	default:
		return ""
	}
}

// Complete reports whether the instruction has every argument it needs.
func (m MappingRule) Complete() bool {
	switch m.Kind {
	case MapLookup:
		return m.Lookup.Complete()
	case MapCopy, MapFixed, MapSequence, MapConcat, MapCustom:
		return strings.TrimSpace(m.Arg) != ""
	default:
		return true
	}
}

// MappingPayload is one entry of the engine's mapping rules file.
type MappingPayload struct {
	Target string `json:"target" yaml:"target"`
	Rule   string `json:"rule" yaml:"rule"`
}

// MappingPayloads serializes a mapping rule set. Entries whose target is blank
// are dropped; the rest keep their relative order.
func MappingPayloads(rules []MappingRule) []MappingPayload {
	out := make([]MappingPayload, 0, len(rules))
	for _, m := range rules {
		target := strings.TrimSpace(m.Target)
		if target == "" {
			continue
		}
		out = append(out, MappingPayload{Target: target, Rule: m.Instruction()})
	}
	return out
}

// DecodeMappingJSON parses an editor-supplied JSON array of {target, rule}.
func DecodeMappingJSON(data []byte) ([]MappingRule, error) {
	var payloads []MappingPayload
	if err := json.Unmarshal(data, &payloads); err != nil {
		return nil, fmt.Errorf("decode mapping rules: %w", err)
	}
	out := make([]MappingRule, 0, len(payloads))
	for _, p := range payloads {
		out = append(out, ParseMapping(p.Target, p.Rule))
	}
	return out, nil
}

func hasPrefixFold(s, prefix string) bool {
	_, ok := cutPrefixFold(s, prefix)
	return ok
}

func trimAfter(s, prefix string) string {
	return strings.TrimSpace(s[len(prefix):])
}
