package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"pdf-chat/internal/chromemdb"
	"pdf-chat/internal/embedding"
	"pdf-chat/internal/helper"
	"pdf-chat/internal/llmservice"
	"pdf-chat/internal/models"
	"pdf-chat/internal/parser"
	"pdf-chat/internal/rag"
)

// State tells whether the session has an index to answer from
type State string

const (
	StateUninitialized State = "uninitialized"
	StateReady         State = "ready"
)

// Stage is the step a running Process or Ask is in
type Stage string

const (
	StageIdle       Stage = "idle"
	StageExtracting Stage = "extracting"
	StageChunking   Stage = "chunking"
	StageIndexing   Stage = "indexing"
	StageAnswering  Stage = "answering"
)

// Status is a snapshot of the session for display
type Status struct {
	State     State     `json:"state"`
	Stage     Stage     `json:"stage"`
	Busy      bool      `json:"busy"`
	Documents int       `json:"documents"`
	Chunks    int       `json:"chunks"`
	Messages  int       `json:"messages"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Options configure how a session builds and queries its index
type Options struct {
	Conversation rag.Options
	// ResetHistory clears the chat history whenever a new index is built
	ResetHistory bool
}

// Session is the state of the single user session: the conversation, which
// is nil until documents are processed, and progress information. Process
// and Ask are serialized; a call made while another one runs fails with
// models.ErrBusy instead of waiting.
type Session struct {
	chunker  *parser.Chunker
	embedder embeddings.Embedder
	model    llmservice.ChatModel
	opts     Options

	mu           sync.Mutex
	busy         bool
	stage        Stage
	conversation *rag.Conversation
	documents    int
	updatedAt    time.Time
}

// New creates an empty session; Ask fails until documents are processed
func New(chunker *parser.Chunker, embedder embeddings.Embedder, model llmservice.ChatModel, opts Options) *Session {
	return &Session{
		chunker:   chunker,
		embedder:  embedder,
		model:     model,
		opts:      opts,
		stage:     StageIdle,
		updatedAt: time.Now(),
	}
}

// Process extracts, chunks and indexes files and starts a new conversation
// over them. The previous conversation is kept if any step fails.
func (s *Session) Process(ctx context.Context, files []parser.File) (*chromemdb.Index, error) {
	if err := s.begin(StageExtracting); err != nil {
		return nil, err
	}
	defer s.end()

	start := time.Now()
	text, err := parser.ExtractText(files)
	if err != nil {
		return nil, err
	}

	s.setStage(StageChunking)
	chunks, err := s.chunker.Split(text)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, models.ErrNoChunks
	}

	s.setStage(StageIndexing)
	if s.opts.Conversation.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Conversation.Timeout)
		defer cancel()
	}
	chunkEmbeddings, err := embedding.GenerateEmbedding(ctx, s.embedder, chunks)
	if err != nil {
		return nil, err
	}
	index, err := chromemdb.NewIndex(ctx, s.embedder, chunkEmbeddings)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	var history []models.Message
	if s.conversation != nil && !s.opts.ResetHistory {
		history = s.conversation.History()
	}
	s.conversation = rag.NewConversation(index, s.model, s.opts.Conversation, history)
	s.documents = len(files)
	s.mu.Unlock()

	log.Info().
		Int("documents", len(files)).
		Int("chunks", len(chunks)).
		Int("history", len(history)).
		Dur("took", time.Since(start)).
		Msg("Processed documents")
	return index, nil
}

// Ask forwards question to the conversation and returns the reply with the
// updated history.
func (s *Session) Ask(ctx context.Context, question string) (string, []models.Message, error) {
	if err := s.begin(StageAnswering); err != nil {
		return "", s.History(), err
	}
	defer s.end()

	s.mu.Lock()
	conv := s.conversation
	s.mu.Unlock()
	if conv == nil {
		return "", nil, models.ErrNotReady
	}

	log.Info().Str("question", helper.Preview(question, 80)).Msg("Answering question")
	reply, err := conv.Ask(ctx, question)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to answer question")
		return "", conv.History(), err
	}
	return reply, conv.History(), nil
}

// History returns the chat history, nil before the first Process
func (s *Session) History() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conversation == nil {
		return nil
	}
	return s.conversation.History()
}

// Status is safe to call while Process or Ask runs
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		State:     StateUninitialized,
		Stage:     s.stage,
		Busy:      s.busy,
		Documents: s.documents,
		UpdatedAt: s.updatedAt,
	}
	if s.conversation != nil {
		st.State = StateReady
		st.Chunks = s.conversation.Index().Count()
		st.Messages = len(s.conversation.History())
	}
	return st
}

// Reset discards the index and the history, returning to the initial state
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return models.ErrBusy
	}
	s.conversation = nil
	s.documents = 0
	s.stage = StageIdle
	s.updatedAt = time.Now()
	log.Info().Msg("Session reset")
	return nil
}

func (s *Session) begin(stage Stage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return models.ErrBusy
	}
	s.busy = true
	s.stage = stage
	s.updatedAt = time.Now()
	return nil
}

func (s *Session) setStage(stage Stage) {
	s.mu.Lock()
	s.stage = stage
	s.updatedAt = time.Now()
	s.mu.Unlock()
	log.Debug().Str("stage", string(stage)).Msg("Processing")
}

func (s *Session) end() {
	s.mu.Lock()
	s.busy = false
	s.stage = StageIdle
	s.updatedAt = time.Now()
	s.mu.Unlock()
}
