package export

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"lampiran/api/internal/permit"
)

//go:embed templates/lampiran.html
var templateFS embed.FS

var lampiranTemplate = template.Must(template.New("lampiran.html").Funcs(template.FuncMap{
	"date":  permit.FormatDate,
	"lines": lines,
}).ParseFS(templateFS, "templates/lampiran.html"))

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// CategoryHeadings are the five section titles of Lampiran G.
var CategoryHeadings = [5]string{
	"KATEGORI 1: PENYEDIAAN KERTAS MESYUARAT TAMAT TEMPOH (PB/BGN)",
	"KATEGORI 2: ULASAN TEKNIKAL BELUM DIKEMUKAKAN TAMAT TEMPOH",
	"KATEGORI 3: PENYEDIAAN KERTAS MESYUARAT TAMAT TEMPOH (KEJ)",
	"KATEGORI 4: PENYEDIAAN KERTAS MESYUARAT TAMAT TEMPOH (LANDSKAP)",
	"KATEGORI 5: PENYEDIAAN KERTAS MESYUARAT TAMAT TEMPOH (PS/SB/CT / 124A/204D SERENTAK)",
}

type templateData struct {
	Document
	NotesHTML template.HTML
}

// RenderHTML renders doc as a standalone HTML page. Notes are markdown;
// raw HTML inside them is escaped.
func RenderHTML(doc Document) (string, error) {
	data := templateData{Document: doc}
	if data.Title == "" {
		data.Title = "LAMPIRAN G"
	}
	if strings.TrimSpace(doc.Notes) != "" {
		var notes bytes.Buffer
		if err := markdown.Convert([]byte(doc.Notes), &notes); err != nil {
			return "", fmt.Errorf("convert notes: %w", err)
		}
		data.NotesHTML = template.HTML(notes.String())
	}

	var buf bytes.Buffer
	if err := lampiranTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return buf.String(), nil
}

// lines escapes each line of s and joins them with <br>.
func lines(s string) template.HTML {
	parts := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, part := range parts {
		parts[i] = template.HTMLEscapeString(part)
	}
	return template.HTML(strings.Join(parts, "<br>"))
}
