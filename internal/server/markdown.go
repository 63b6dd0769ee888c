package server

import (
	"bytes"
	"html/template"

	"github.com/rs/zerolog/log"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

type markdownRenderer struct {
	md goldmark.Markdown
}

// raw HTML in replies is not rendered (goldmark's default without html.WithUnsafe)
func newMarkdownRenderer() *markdownRenderer {
	return &markdownRenderer{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(
				html.WithHardWraps(),
			),
		),
	}
}

// HTML renders a model reply for the page, falling back to escaped text
func (r *markdownRenderer) HTML(text string) template.HTML {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(text), &buf); err != nil {
		log.Warn().Err(err).Msg("Failed to render markdown")
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String())
}
