package workbook

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/RuleSheet/internal/rules"
)

// writeFixture builds a workbook with a data sheet and a rules sheet.
func writeFixture(t *testing.T, name string) string {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	require.NoError(t, f.SetSheetName("Sheet1", "Data"))
	require.NoError(t, f.SetSheetRow("Data", "A1", &[]any{"Name", "Status"}))
	require.NoError(t, f.SetSheetRow("Data", "A2", &[]any{"Alice", "open"}))

	_, err := f.NewSheet("ValidationRules")
	require.NoError(t, err)
	require.NoError(t, f.SetSheetRow("ValidationRules", "A1", &[]any{"Field", "Checked", "Required", "AllowedValues"}))
	require.NoError(t, f.SetSheetRow("ValidationRules", "A2", &[]any{"Name", "TRUE", "TRUE"}))
	require.NoError(t, f.SetSheetRow("ValidationRules", "A3", &[]any{"Status", "x", "", "VALUE=open;closed"}))

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, f.SaveAs(path))
	return path
}

func TestOpen_SheetsAndRows(t *testing.T) {
	wb, err := Open(writeFixture(t, "template.xlsx"))
	require.NoError(t, err)
	defer wb.Close()

	assert.Equal(t, []string{"Data", "ValidationRules"}, wb.SheetNames())

	rows, err := wb.Rows("Data")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Name", "Status"}, {"Alice", "open"}}, rows)
}

func TestOpen_MissingSheet(t *testing.T) {
	wb, err := Open(writeFixture(t, "template.xlsx"))
	require.NoError(t, err)
	defer wb.Close()

	_, err = wb.Rows("Nope")
	assert.Error(t, err)
}

func TestOpen_UnsupportedExtension(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "data.csv"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestOpen_CorruptContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.xlsx")
	require.NoError(t, os.WriteFile(path, []byte("not a zip"), 0o644))

	_, err := Open(path)
	assert.ErrorIs(t, err, ErrUnreadable)

	_, err = Read(strings.NewReader("not a zip"))
	assert.ErrorIs(t, err, ErrUnreadable)
}

func TestOpen_MissingFileIsNotUnreadable(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "absent.xlsx"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnreadable)
}

func TestRead_FeedsDerivation(t *testing.T) {
	f, err := os.Open(writeFixture(t, "template.xlsm"))
	require.NoError(t, err)
	defer f.Close()

	wb, err := Read(f)
	require.NoError(t, err)
	defer wb.Close()

	got, err := rules.DeriveValidation(wb, rules.DeriveOptions{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, rules.ValidationRule{Field: "Name", Checked: true, Required: true, Allowed: rules.Unconstrained{}}, got[0])
	assert.Equal(t, rules.ValueList{Values: []string{"open", "closed"}}, got[1].Allowed)
}

func TestSupported(t *testing.T) {
	assert.True(t, Supported("a.xlsx"))
	assert.True(t, Supported("A.XLSM"))
	assert.False(t, Supported("a.xls"))
	assert.False(t, Supported("a"))
}
