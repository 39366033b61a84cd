package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/ocr-menu-detector/backend/internal/lang"
	"github.com/ocr-menu-detector/backend/internal/models"
)

// Items below this confidence get called out in their own section.
const lowConfidence = 0.6

// MarkdownWriter outputs scan reports in Markdown format.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the full report in Markdown format.
func (w *MarkdownWriter) Write(data *Data) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, data)
	w.writeItems(md, data)
	w.writeLowConfidence(md, data)
	w.writeWarnings(md, data)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, data *Data) {
	md.H1("Menu Scan Report")
	md.PlainText("")

	langText := lang.Name(data.DetectedLanguage)
	if data.TargetLanguage != "" {
		langText += " → " + lang.Name(data.TargetLanguage)
	}

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"File", "`" + data.FileName + "`"},
			{"Scanned", data.ScannedAt.Format("2006-01-02 15:04:05 MST")},
			{"Language", langText},
			{"Engine", data.Engine},
			{"Pages", strconv.Itoa(data.PageCount)},
			{"Words Recognized", strconv.Itoa(data.WordCount)},
			{"Menu Items", strconv.Itoa(len(data.Items))},
			{"Mean Confidence", fmt.Sprintf("%.1f%%", data.MeanConfidence*100)},
			{"Duration", fmt.Sprintf("%dms", data.DurationMs)},
		},
	})
	md.PlainText("")

	if len(data.Items) > 0 {
		w.writeCategoryChart(md, data.Items)
	}
}

// writeCategoryChart writes a mermaid pie chart of items per category.
func (w *MarkdownWriter) writeCategoryChart(md *markdown.Markdown, items []models.MenuItem) {
	order, groups := groupByCategory(items)
	if len(order) < 2 {
		return
	}

	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Items per Category"),
		piechart.WithShowData(true),
	)
	for _, cat := range order {
		label := cat
		if label == "" {
			label = "Uncategorized"
		}
		chart.LabelAndIntValue(label, uint64(len(groups[cat])))
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func (w *MarkdownWriter) writeItems(md *markdown.Markdown, data *Data) {
	md.H2("Menu Items")
	md.PlainText("")

	if len(data.Items) == 0 {
		md.PlainText("No menu items were detected.")
		md.PlainText("")
		return
	}

	translated := data.TargetLanguage != ""
	order, groups := groupByCategory(data.Items)
	for _, cat := range order {
		header := cat
		if header == "" {
			header = "Uncategorized"
		}
		md.H3(header)
		md.PlainText("")
		w.writeItemTable(md, groups[cat], translated)
	}
}

func (w *MarkdownWriter) writeItemTable(md *markdown.Markdown, items []models.MenuItem, translated bool) {
	headers := []string{"Name", "Price", "Description"}
	if translated {
		headers = []string{"Name", "Translation", "Price", "Description"}
	}

	rows := make([][]string, len(items))
	for i, item := range items {
		price := item.Price
		if price == "" {
			price = "-"
		}
		desc := item.Description
		if desc == "" {
			desc = "-"
		}

		if translated {
			trans := item.TranslatedName
			if trans == "" {
				trans = "-"
			}
			rows[i] = []string{item.Name, trans, price, truncateString(desc, 60)}
		} else {
			rows[i] = []string{item.Name, price, truncateString(desc, 60)}
		}
	}

	md.Table(markdown.TableSet{
		Header: headers,
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeLowConfidence(md *markdown.Markdown, data *Data) {
	var shaky []models.MenuItem
	for _, item := range data.Items {
		if item.Confidence > 0 && item.Confidence < lowConfidence {
			shaky = append(shaky, item)
		}
	}
	if len(shaky) == 0 {
		return
	}

	md.H2("Low Confidence Items")
	md.PlainText("")
	md.Warningf("%d item(s) were recognized with low confidence and may contain OCR errors.", len(shaky))
	md.PlainText("")

	rows := make([][]string, len(shaky))
	for i, item := range shaky {
		rows[i] = []string{
			item.Name,
			fmt.Sprintf("%.1f%%", item.Confidence*100),
			truncateString(item.FullText, 60),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Name", "Confidence", "Raw Text"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeWarnings(md *markdown.Markdown, data *Data) {
	if len(data.Warnings) == 0 {
		return
	}

	md.H2("Warnings")
	md.PlainText("")
	md.BulletList(data.Warnings...)
	md.PlainText("")
}

func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainText("*Generated by OCR Menu Detector*")
}

// truncateString truncates a string to maxLen characters with ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
