package parser

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/textsplitter"

	"pdf-chat/internal/config"
	"pdf-chat/internal/models"
)

// Chunker splits document text into overlapping chunks on separator
// boundaries. Lengths are counted in characters, not bytes.
type Chunker struct {
	splitter textsplitter.RecursiveCharacter
}

// NewChunker builds a chunker from the rag config. Lines longer than the
// chunk size fall back to a character split so that no chunk exceeds it.
func NewChunker(cfg config.RAGConfig) (*Chunker, error) {
	if cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", cfg.ChunkSize)
	}
	overlap := cfg.Overlap()
	if overlap < 0 || overlap >= cfg.ChunkSize {
		return nil, fmt.Errorf("chunk overlap must be in [0, %d), got %d", cfg.ChunkSize, overlap)
	}
	separator := cfg.Separator
	if separator == "" {
		separator = models.DefaultSeparator
	}

	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(cfg.ChunkSize),
		textsplitter.WithChunkOverlap(overlap),
		textsplitter.WithSeparators([]string{separator, ""}),
		textsplitter.WithLenFunc(utf8.RuneCountInString),
	)
	return &Chunker{splitter: splitter}, nil
}

// Split returns the chunks of text in document order. Empty input yields no chunks.
func (c *Chunker) Split(text string) ([]models.Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	parts, err := c.splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("failed to split text: %w", err)
	}

	chunks := make([]models.Chunk, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		chunks = append(chunks, models.Chunk{
			Content: part,
			ChunkID: len(chunks) + 1,
		})
	}
	return chunks, nil
}
