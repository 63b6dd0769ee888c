package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/tmc/langchaingo/llms"

	"pdf-chat/internal/embedding"
)

var ErrNetwork = errors.New("dial tcp 10.0.0.1:443: connect: network is unreachable")

// Embedder is a hash embedder that can be switched into failing mode
type Embedder struct {
	*embedding.HashEmbedder

	mu   sync.Mutex
	fail bool
}

func NewEmbedder() *Embedder {
	return &Embedder{HashEmbedder: embedding.NewHashEmbedder(1024)}
}

func (e *Embedder) SetFail(fail bool) {
	e.mu.Lock()
	e.fail = fail
	e.mu.Unlock()
}

func (e *Embedder) failing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fail
}

func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if e.failing() {
		return nil, ErrNetwork
	}
	return e.HashEmbedder.EmbedDocuments(ctx, texts)
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if e.failing() {
		return nil, ErrNetwork
	}
	return e.HashEmbedder.EmbedQuery(ctx, text)
}

// Model is a chat model echoing the last user message, or failing on demand
type Model struct {
	mu    sync.Mutex
	fail  bool
	calls int
	// Block, when set, is received from before answering
	Block chan struct{}
}

func (m *Model) SetFail(fail bool) {
	m.mu.Lock()
	m.fail = fail
	m.mu.Unlock()
}

func (m *Model) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *Model) GenerateContent(ctx context.Context, msgs []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	if m.Block != nil {
		<-m.Block
	}
	m.mu.Lock()
	m.calls++
	fail := m.fail
	m.mu.Unlock()
	if fail {
		return nil, ErrNetwork
	}

	var last string
	if len(msgs) > 0 {
		for _, p := range msgs[len(msgs)-1].Parts {
			if tc, ok := p.(llms.TextContent); ok {
				last += tc.Text
			}
		}
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "answer to: " + last}}}, nil
}
