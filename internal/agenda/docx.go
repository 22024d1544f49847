package agenda

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
)

var ErrNotDocx = errors.New("agenda: not a docx document")

const (
	documentPart = "word/document.xml"
	mediaDir     = "word/media/"
)

// Extract flattens a .docx agenda to newline-joined text: every non-empty
// paragraph, table-cell paragraphs included, in document order. When the
// result is shorter than minChars and ocr is non-nil, the embedded images are
// recognized and their text appended.
func Extract(ctx context.Context, docx []byte, ocr Recognizer, minChars int) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(docx), int64(len(docx)))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotDocx, err)
	}

	var body *zip.File
	var media []*zip.File
	for _, f := range zr.File {
		switch {
		case f.Name == documentPart:
			body = f
		case strings.HasPrefix(f.Name, mediaDir):
			media = append(media, f)
		}
	}
	if body == nil {
		return "", fmt.Errorf("%w: missing %s", ErrNotDocx, documentPart)
	}

	text, err := readPart(body)
	if err != nil {
		return "", err
	}
	if len([]rune(text)) >= minChars || ocr == nil || len(media) == 0 {
		return text, nil
	}

	sort.Slice(media, func(i, j int) bool { return media[i].Name < media[j].Name })
	chunks := []string{}
	if text != "" {
		chunks = append(chunks, text)
	}
	for _, f := range media {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		img, err := readAll(f)
		if err != nil {
			return "", err
		}
		recognized, err := ocr.Recognize(ctx, img)
		if err != nil {
			// Unreadable images are skipped.
			continue
		}
		if s := strings.TrimSpace(recognized); s != "" {
			chunks = append(chunks, s)
		}
	}
	return strings.Join(chunks, "\n"), nil
}

func readAll(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.Name, err)
	}
	return data, nil
}

func readPart(f *zip.File) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer rc.Close()
	return flatten(rc)
}

// flatten walks WordprocessingML and emits one line per non-empty paragraph.
func flatten(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var (
		lines  []string
		para   strings.Builder
		inText bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrNotDocx, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				para.WriteByte('\t')
			case "br", "cr":
				para.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if s := strings.TrimSpace(para.String()); s != "" {
					lines = append(lines, s)
				}
				para.Reset()
			}
		case xml.CharData:
			if inText {
				para.Write(t)
			}
		}
	}
	return strings.Join(lines, "\n"), nil
}
