package ingest

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
)

// ExtractPDF validates the file, then pulls its plain text and page count.
func ExtractPDF(path string) (string, int, error) {
	if err := pdfapi.ValidateFile(path, nil); err != nil {
		return "", 0, fmt.Errorf("not a valid PDF: %w", err)
	}

	pages, err := pdfapi.PageCountFile(path)
	if err != nil {
		return "", 0, fmt.Errorf("page count: %w", err)
	}

	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	body, err := reader.GetPlainText()
	if err != nil {
		return "", 0, fmt.Errorf("extract text: %w", err)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, body); err != nil {
		return "", 0, fmt.Errorf("read extracted text: %w", err)
	}

	text := strings.TrimSpace(buf.String())
	if text == "" {
		return "", 0, fmt.Errorf("no text extracted from %s", filepath.Base(path))
	}
	return text, pages, nil
}

// TitleFromPath turns "annual_report-2025.pdf" into "annual report 2025".
func TitleFromPath(path string) string {
	name := filepath.Base(path)
	if strings.HasSuffix(strings.ToLower(name), ".pdf") {
		name = name[:len(name)-4]
	}
	name = strings.ReplaceAll(name, "_", " ")
	name = strings.ReplaceAll(name, "-", " ")
	return strings.TrimSpace(name)
}
