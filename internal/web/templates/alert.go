// Package templates renders the HTML fragments returned to HTMX requests.
package templates

import (
	"context"
	"io"
	"strings"

	"github.com/a-h/templ"
)

// ErrorAlert renders a dismissible error box with the support code.
func ErrorAlert(message, action, code string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder
		b.WriteString(`<div class="alert alert-error" role="alert">`)
		b.WriteString(`<p class="alert-message">`)
		b.WriteString(templ.EscapeString(message))
		b.WriteString(`</p>`)
		if action != "" {
			b.WriteString(`<p class="alert-action">`)
			b.WriteString(templ.EscapeString(action))
			b.WriteString(`</p>`)
		}
		if code != "" {
			b.WriteString(`<p class="alert-code">Code: `)
			b.WriteString(templ.EscapeString(code))
			b.WriteString(`</p>`)
		}
		b.WriteString(`</div>`)
		_, err := io.WriteString(w, b.String())
		return err
	})
}

// ResultAlert renders the success message with a download link for the
// produced workbook.
func ResultAlert(message, downloadURL, fileName string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder
		b.WriteString(`<div class="alert alert-success" role="status">`)
		b.WriteString(`<p class="alert-message">`)
		b.WriteString(templ.EscapeString(message))
		b.WriteString(`</p><a class="download-link" href="`)
		b.WriteString(templ.EscapeString(downloadURL))
		b.WriteString(`" download>`)
		b.WriteString(templ.EscapeString(fileName))
		b.WriteString(`</a></div>`)
		_, err := io.WriteString(w, b.String())
		return err
	})
}
