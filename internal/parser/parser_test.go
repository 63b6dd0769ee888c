package parser

import (
	"archive/zip"
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"pdf-chat/internal/models"
	"pdf-chat/internal/testutil"
)

func TestExtractTextSinglePage(t *testing.T) {
	files := []File{{Name: "hello.pdf", Data: testutil.BuildPDF("Hello world. This is a test document.")}}

	text, err := ExtractText(files)
	require.NoError(t, err)
	assert.Contains(t, text, "Hello world. This is a test document.")
}

func TestExtractTextKeepsUploadOrder(t *testing.T) {
	files := []File{
		{Name: "a.pdf", Data: testutil.BuildPDF("first page", "second page")},
		{Name: "b.txt", Data: []byte("third document\n")},
	}

	text, err := ExtractText(files)
	require.NoError(t, err)

	first := indexOf(t, text, "first page")
	second := indexOf(t, text, "second page")
	third := indexOf(t, text, "third document")
	assert.Less(t, first, second)
	assert.Less(t, second, third)
}

func TestExtractTextSniffsPDFWithoutExtension(t *testing.T) {
	text, err := ExtractText([]File{{Name: "upload", Data: testutil.BuildPDF("sniffed")}})
	require.NoError(t, err)
	assert.Contains(t, text, "sniffed")
}

func TestExtractTextErrors(t *testing.T) {
	_, err := ExtractText(nil)
	assert.True(t, errors.Is(err, models.ErrNoDocuments))

	_, err = ExtractText([]File{{Name: "broken.pdf", Data: []byte("%PDF-1.4\nthis is not a pdf")}})
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.KindInput))
	assert.Contains(t, err.Error(), "broken.pdf")

	_, err = ExtractText([]File{{Name: "image.png", Data: []byte{0x89, 'P', 'N', 'G'}}})
	assert.True(t, errors.Is(err, models.ErrUnsupportedFormat))
	assert.True(t, models.IsKind(err, models.KindInput))
}

func TestExtractTextMalformedDocumentAbortsAll(t *testing.T) {
	files := []File{
		{Name: "good.pdf", Data: testutil.BuildPDF("good")},
		{Name: "bad.docx", Data: []byte("not a zip")},
	}
	text, err := ExtractText(files)
	assert.Error(t, err)
	assert.Empty(t, text)
}

func indexOf(t *testing.T, s, sub string) int {
	t.Helper()
	i := strings.Index(s, sub)
	require.NotEqual(t, -1, i, "%q not found in %q", sub, s)
	return i
}

type zipEntry struct {
	name, body string
}

// zipOf writes entries in the given order
func zipOf(t *testing.T, entries ...zipEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		w, err := zw.Create(e.name)
		require.NoError(t, err)
		_, err = w.Write([]byte(e.body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestExtractTextDOCX(t *testing.T) {
	doc := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		`<w:p><w:r><w:t>First paragraph</w:t></w:r></w:p>` +
		`<w:p></w:p>` +
		`<w:p><w:r><w:t xml:space="preserve">Second </w:t></w:r><w:r><w:t>paragraph &amp; more</w:t></w:r></w:p>` +
		`</w:body></w:document>`
	data := zipOf(t,
		zipEntry{"[Content_Types].xml", `<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"/>`},
		zipEntry{"word/document.xml", doc},
		zipEntry{"word/_rels/document.xml.rels", `<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"/>`},
	)

	text, err := ExtractText([]File{{Name: "notes.DOCX", Data: data}})
	require.NoError(t, err)
	assert.Equal(t, "First paragraph\nSecond paragraph & more\n", text)
}

func TestExtractTextXLSX(t *testing.T) {
	book := excelize.NewFile()
	defer book.Close()
	require.NoError(t, book.SetCellValue("Sheet1", "A1", "fruit"))
	require.NoError(t, book.SetCellValue("Sheet1", "B1", "qty"))
	require.NoError(t, book.SetCellValue("Sheet1", "A2", "apple"))
	require.NoError(t, book.SetCellValue("Sheet1", "B2", 3))
	_, err := book.NewSheet("Notes")
	require.NoError(t, err)
	require.NoError(t, book.SetCellValue("Notes", "A1", "second sheet"))
	buf, err := book.WriteToBuffer()
	require.NoError(t, err)

	text, err := ExtractText([]File{{Name: "stock.xlsx", Data: buf.Bytes()}})
	require.NoError(t, err)
	assert.Equal(t, "## Sheet: Sheet1\nfruit\tqty\napple\t3\n## Sheet: Notes\nsecond sheet\n", text)
}

func TestExtractTextPPTXSlideOrder(t *testing.T) {
	slide := func(runs ...string) string {
		var b strings.Builder
		b.WriteString(`<p:sld xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main" xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main"><p:cSld><p:spTree>`)
		for _, r := range runs {
			b.WriteString("<p:sp><p:txBody><a:p><a:r><a:t>" + r + "</a:t></a:r></a:p></p:txBody></p:sp>")
		}
		b.WriteString("</p:spTree></p:cSld></p:sld>")
		return b.String()
	}
	// zip order differs from slide order, and slide10 sorts before slide2 as text
	data := zipOf(t,
		zipEntry{"ppt/presentation.xml", "<p:presentation/>"},
		zipEntry{"ppt/slides/slide10.xml", slide("Tenth")},
		zipEntry{"ppt/slides/_rels/slide2.xml.rels", "<Relationships/>"},
		zipEntry{"ppt/slides/slide2.xml", slide("Second", "slide")},
		zipEntry{"ppt/slides/slide1.xml", slide("Title &amp; intro")},
	)

	text, err := ExtractText([]File{{Name: "deck.pptx", Data: data}})
	require.NoError(t, err)
	assert.Equal(t, "Title & intro\nSecond slide\nTenth\n", text)
}
