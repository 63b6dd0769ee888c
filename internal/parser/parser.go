package parser

import (
	"archive/zip"
	"bytes"
	"fmt"
	"html"
	"io"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"

	"pdf-chat/internal/models"
)

// File is a single uploaded document held in memory
type File struct {
	Name string
	Data []byte
}

var (
	pdfMagic    = []byte("%PDF-")
	docxParaRe  = regexp.MustCompile(`</w:p>`)
	docxRunRe   = regexp.MustCompile(`(?s)<w:t(?:\s[^>]*)?>(.*?)</w:t>`)
	pptxRunRe   = regexp.MustCompile(`(?s)<a:t>(.*?)</a:t>`)
	pptxSlideRe = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)
)

// ExtractText returns the text of all files concatenated in upload order.
// A file that cannot be read aborts the whole extraction.
func ExtractText(files []File) (string, error) {
	if len(files) == 0 {
		return "", models.ErrNoDocuments
	}

	var text strings.Builder
	for _, f := range files {
		content, err := extractFile(f)
		if err != nil {
			return "", err
		}
		log.Debug().Str("file", f.Name).Int("chars", len(content)).Msg("Extracted text")
		text.WriteString(content)
	}
	return text.String(), nil
}

func extractFile(f File) (string, error) {
	ext := strings.ToLower(filepath.Ext(f.Name))
	switch ext {
	case ".pdf":
		return parsePDF(f)
	case ".docx":
		return parseDOCX(f)
	case ".xlsx":
		return parseXLSX(f)
	case ".pptx":
		return parsePPTX(f)
	case ".txt", ".md":
		return string(f.Data), nil
	}
	if bytes.HasPrefix(f.Data, pdfMagic) {
		return parsePDF(f)
	}
	return "", fmt.Errorf("%s: %w", f.Name, models.ErrUnsupportedFormat)
}

// parsePDF extracts the plain text of every page in order, one page per line
// group. Pages without a text layer contribute nothing.
func parsePDF(f File) (text string, err error) {
	// the pdf package panics on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = malformed(f.Name, fmt.Errorf("%v", r))
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(f.Data), int64(len(f.Data)))
	if err != nil {
		return "", malformed(f.Name, err)
	}

	var b strings.Builder
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			log.Warn().Err(err).Str("file", f.Name).Int("page", i).Msg("No extractable text on page")
			continue
		}
		b.WriteString(pageText)
		if pageText != "" && !strings.HasSuffix(pageText, "\n") {
			b.WriteString("\n")
		}
	}
	return b.String(), nil
}

func parseDOCX(f File) (string, error) {
	r, err := docx.ReadDocxFromMemory(bytes.NewReader(f.Data), int64(len(f.Data)))
	if err != nil {
		return "", malformed(f.Name, err)
	}
	defer r.Close()

	var b strings.Builder
	for _, para := range docxParaRe.Split(r.Editable().GetContent(), -1) {
		line := extractRuns(para, docxRunRe, "")
		if strings.TrimSpace(line) == "" {
			continue
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String(), nil
}

func parseXLSX(f File) (string, error) {
	book, err := excelize.OpenReader(bytes.NewReader(f.Data))
	if err != nil {
		return "", malformed(f.Name, err)
	}
	defer book.Close()

	var b strings.Builder
	for _, sheetName := range book.GetSheetList() {
		rows, err := book.GetRows(sheetName)
		if err != nil {
			log.Warn().Err(err).Str("sheet", sheetName).Msg("Skipping unreadable sheet")
			continue
		}
		b.WriteString(fmt.Sprintf("## Sheet: %s\n", sheetName))
		for _, row := range rows {
			b.WriteString(strings.Join(row, "\t"))
			b.WriteString("\n")
		}
	}
	return b.String(), nil
}

func parsePPTX(f File) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(f.Data), int64(len(f.Data)))
	if err != nil {
		return "", malformed(f.Name, err)
	}

	type slide struct {
		num  int
		file *zip.File
	}
	var slides []slide
	for _, file := range zr.File {
		if m := pptxSlideRe.FindStringSubmatch(file.Name); m != nil {
			n, _ := strconv.Atoi(m[1])
			slides = append(slides, slide{num: n, file: file})
		}
	}
	// zip order is not slide order
	sort.Slice(slides, func(i, j int) bool { return slides[i].num < slides[j].num })

	var b strings.Builder
	for _, s := range slides {
		rc, err := s.file.Open()
		if err != nil {
			return "", malformed(f.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return "", malformed(f.Name, err)
		}
		if line := extractRuns(string(data), pptxRunRe, " "); strings.TrimSpace(line) != "" {
			b.WriteString(strings.TrimSpace(line))
			b.WriteString("\n")
		}
	}
	return b.String(), nil
}

// extractRuns joins the text of all runs matched by re
func extractRuns(xmlContent string, re *regexp.Regexp, sep string) string {
	var parts []string
	for _, m := range re.FindAllStringSubmatch(xmlContent, -1) {
		parts = append(parts, html.UnescapeString(m[1]))
	}
	return strings.Join(parts, sep)
}

func malformed(name string, err error) error {
	return &models.Error{Kind: models.KindInput, Op: "extract " + name, Msg: "unreadable document", Err: err}
}
