package report

import (
	"bytes"
	"fmt"
	"io"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

const htmlShell = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Menu Scan Report</title>
<style>
  body { font-family: -apple-system, "Segoe UI", Roboto, sans-serif; max-width: 860px; margin: 2rem auto; padding: 0 1rem; color: #1f2430; }
  table { border-collapse: collapse; width: 100%%; margin: 0.5rem 0 1.5rem; }
  th, td { border: 1px solid #d8dce6; padding: 0.4rem 0.7rem; text-align: left; }
  th { background: #f3f5fa; }
  h1 { border-bottom: 2px solid #d8dce6; padding-bottom: 0.3rem; }
  code { background: #f3f5fa; padding: 0.1rem 0.3rem; border-radius: 3px; }
  pre { background: #f3f5fa; padding: 0.8rem; overflow-x: auto; }
  hr { border: none; border-top: 1px solid #d8dce6; margin: 2rem 0; }
</style>
</head>
<body>
%s
</body>
</html>
`

// HTMLWriter outputs scan reports as a standalone HTML page. The report is
// built as Markdown first and converted with goldmark.
type HTMLWriter struct {
	baseWriter
}

// NewHTMLWriter creates an HTMLWriter that outputs to the given writer.
func NewHTMLWriter(output io.Writer) *HTMLWriter {
	return &HTMLWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the report as HTML.
func (w *HTMLWriter) Write(data *Data) (int, error) {
	var md bytes.Buffer
	if _, err := NewMarkdownWriter(&md).Write(data); err != nil {
		return 0, fmt.Errorf("failed to build report markdown: %w", err)
	}

	html, err := RenderHTML(md.Bytes())
	if err != nil {
		return 0, err
	}

	return w.output.Write(html)
}

// RenderHTML converts GitHub-flavored Markdown to a full HTML page.
func RenderHTML(source []byte) ([]byte, error) {
	var body bytes.Buffer
	converter := goldmark.New(goldmark.WithExtensions(extension.GFM))
	if err := converter.Convert(source, &body); err != nil {
		return nil, fmt.Errorf("failed to convert markdown: %w", err)
	}
	return []byte(fmt.Sprintf(htmlShell, body.String())), nil
}
