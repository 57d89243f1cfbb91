// Package markdown turns assistant responses into HTML for the chat transcript.
package markdown

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var md = goldmark.New(
	goldmark.WithExtensions(
		extension.GFM,
		highlighting.NewHighlighting(
			highlighting.WithStyle("github"),
		),
	),
	goldmark.WithRendererOptions(
		html.WithHardWraps(),
	),
)

// Render converts src from Markdown to HTML. Raw HTML inside src is not passed through.
func Render(src string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("error converting markdown: %w", err)
	}
	return template.HTML(buf.String()), nil
}

// Plain escapes src and keeps its line breaks. It is used for user messages, which are never interpreted.
func Plain(src string) template.HTML {
	escaped := template.HTMLEscapeString(src)
	return template.HTML(strings.ReplaceAll(escaped, "\n", "<br>"))
}
