package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Instruction
	}{
		{name: "empty", raw: "", want: Unconstrained{}},
		{name: "whitespace only", raw: "   \t", want: Unconstrained{}},
		{name: "value list", raw: "VALUE=a;b;c", want: ValueList{Values: []string{"a", "b", "c"}}},
		{name: "value list lowercase prefix", raw: "value=Yes;No", want: ValueList{Values: []string{"Yes", "No"}}},
		{name: "value list trims and drops empties", raw: " VALUE= a ;; b ; ", want: ValueList{Values: []string{"a", "b"}}},
		{name: "value list empty", raw: "VALUE=", want: ValueList{Values: []string{}}},
		{name: "value list keeps duplicates", raw: "VALUE=x;x;y", want: ValueList{Values: []string{"x", "x", "y"}}},
		{name: "sheet bang form", raw: "SHEET=Lists!Country", want: SheetLookup{Sheet: "Lists", Column: "Country"}},
		{name: "sheet token form", raw: "SHEET=Lists;COLUMN=Country", want: SheetLookup{Sheet: "Lists", Column: "Country"}},
		{name: "sheet col alias", raw: "sheet=Lists;col=Code", want: SheetLookup{Sheet: "Lists", Column: "Code"}},
		{name: "sheet only", raw: "SHEET=Lists", want: SheetLookup{Sheet: "Lists"}},
		{name: "sheet first column token wins", raw: "SHEET=L;COL=a;COLUMN=b", want: SheetLookup{Sheet: "L", Column: "a"}},
		{name: "sheet column value after first equals", raw: "SHEET=L;COLUMN=a=b", want: SheetLookup{Sheet: "L", Column: "a=b"}},
		{name: "sheet ignores unknown tokens", raw: "SHEET=L;FOO=1;COLUMN=c", want: SheetLookup{Sheet: "L", Column: "c"}},
		{name: "sheet bang wins over tokens", raw: "SHEET=L!c;COLUMN=d", want: SheetLookup{Sheet: "L", Column: "c;COLUMN=d"}},
		{name: "sheet empty", raw: "SHEET=", want: SheetLookup{}},
		{name: "free form", raw: "  must be a valid IBAN ", want: FreeForm{Text: "must be a valid IBAN"}},
		{name: "free form not confused by prefix inside", raw: "check VALUE=1", want: FreeForm{Text: "check VALUE=1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Parse(tt.raw))
		})
	}
}

func TestParse_Modes(t *testing.T) {
	assert.Equal(t, ModeAny, Parse("").Mode())
	assert.Equal(t, ModeAny, Parse("custom text").Mode())
	assert.Equal(t, ModeList, Parse("VALUE=a").Mode())
	assert.Equal(t, ModeSheet, Parse("SHEET=a!b").Mode())
}

func TestRoundTrip_ValueList(t *testing.T) {
	inputs := [][]string{
		{"a"},
		{"a", "b", "c"},
		{"b", "a", "b"},
		{" padded ", "x"},
		{"Oui", "Non", "Peut-être"},
	}

	for _, values := range inputs {
		in := ValueList{Values: values}
		out := Parse(in.String())

		got, ok := out.(ValueList)
		require.True(t, ok, "expected ValueList, got %T", out)
		assert.Equal(t, CleanValues(values), got.Values)
	}
}

func TestRoundTrip_SheetLookup(t *testing.T) {
	pairs := []SheetLookup{
		{Sheet: "Lists", Column: "Country"},
		{Sheet: "Code Tables", Column: "ISO 3166"},
		{Sheet: "a", Column: "b"},
	}

	for _, p := range pairs {
		assert.Equal(t, p, Parse("SHEET="+p.Sheet+"!"+p.Column))
		assert.Equal(t, p, Parse("SHEET="+p.Sheet+";COLUMN="+p.Column))
		assert.Equal(t, p, Parse(p.String()))
	}
}

func TestRoundTrip_Idempotent(t *testing.T) {
	raws := []string{
		"",
		"VALUE= a ;;b",
		"SHEET=Lists;COL=Code",
		"SHEET=Lists",
		"free text ",
	}

	for _, raw := range raws {
		first := Parse(raw)
		second := Parse(first.String())
		assert.Equal(t, first, second, "raw=%q", raw)
	}
}

func TestComplete(t *testing.T) {
	tests := []struct {
		name string
		in   Instruction
		want bool
	}{
		{"list always complete", ValueList{}, true},
		{"empty list complete", ValueList{Values: []string{}}, true},
		{"unconstrained", Unconstrained{}, true},
		{"sheet and column", SheetLookup{Sheet: "L", Column: "C"}, true},
		{"sheet only", SheetLookup{Sheet: "L"}, false},
		{"column only", SheetLookup{Column: "C"}, false},
		{"blank after trim", SheetLookup{Sheet: " ", Column: "C"}, false},
		{"free form text", FreeForm{Text: "x"}, true},
		{"free form blank", FreeForm{Text: "  "}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Complete(tt.in))
		})
	}
}
