package templates

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorAlert_Escapes(t *testing.T) {
	var buf bytes.Buffer
	err := ErrorAlert(`Sheet <Data> "missing"`, "Fix & retry", "ENG003").Render(context.Background(), &buf)
	require.NoError(t, err)

	html := buf.String()
	assert.Contains(t, html, `role="alert"`)
	assert.Contains(t, html, "Sheet &lt;Data&gt; &#34;missing&#34;")
	assert.Contains(t, html, "Fix &amp; retry")
	assert.Contains(t, html, "Code: ENG003")
	assert.NotContains(t, html, "<Data>")
}

func TestErrorAlert_OptionalParts(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, ErrorAlert("boom", "", "").Render(context.Background(), &buf))
	assert.NotContains(t, buf.String(), "alert-action")
	assert.NotContains(t, buf.String(), "Code:")
}

func TestResultAlert(t *testing.T) {
	var buf bytes.Buffer
	err := ResultAlert("Validation completed", "/api/download/a%20b.xlsx", "a b.xlsx").Render(context.Background(), &buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `href="/api/download/a%20b.xlsx"`)
	assert.Contains(t, buf.String(), ">a b.xlsx</a>")
}
