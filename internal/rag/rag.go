package rag

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"

	"pdf-chat/internal/chromemdb"
	"pdf-chat/internal/config"
	"pdf-chat/internal/helper"
	"pdf-chat/internal/llmservice"
	"pdf-chat/internal/models"
)

// Options are the recognized settings of a conversation
type Options struct {
	TopK             int
	Model            string
	Temperature      *float64
	CondenseQuestion bool
	Timeout          time.Duration
}

// OptionsFromConfig collects the conversation settings spread over the config
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		TopK:             cfg.RAG.TopK,
		Model:            cfg.ChatLLM.Model,
		Temperature:      cfg.ChatLLM.Temperature,
		CondenseQuestion: cfg.RAG.Condense(),
		Timeout:          time.Duration(cfg.RAG.RequestTimeoutSecs) * time.Second,
	}
}

// Conversation answers questions over an index, keeping the chat history.
// The index is fixed for the lifetime of the conversation; the history only
// grows, one question/answer pair per successful Ask. History may be read
// while an Ask is in flight.
type Conversation struct {
	index *chromemdb.Index
	model llmservice.ChatModel
	opts  Options

	mu      sync.RWMutex
	history []models.Message
}

// NewConversation starts a conversation seeded with history, which may be nil
func NewConversation(index *chromemdb.Index, model llmservice.ChatModel, opts Options, history []models.Message) *Conversation {
	if opts.TopK <= 0 {
		opts.TopK = models.DefaultTopK
	}
	return &Conversation{
		index:   index,
		model:   model,
		opts:    opts,
		history: append([]models.Message(nil), history...),
	}
}

// Index returns the vector index the conversation retrieves from
func (c *Conversation) Index() *chromemdb.Index {
	return c.index
}

// History returns a copy of the chat history
func (c *Conversation) History() []models.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]models.Message(nil), c.history...)
}

// Ask retrieves the chunks relevant to question, sends them with the history
// to the model and records the exchange. On error the history is unchanged.
func (c *Conversation) Ask(ctx context.Context, question string) (string, error) {
	if c.index == nil {
		return "", models.ErrNotReady
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return "", models.ErrEmptyQuestion
	}
	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	history := c.History()
	standalone := question
	if c.opts.CondenseQuestion && len(history) > 0 {
		condensed, err := c.condense(ctx, history, question)
		if err != nil {
			return "", err
		}
		standalone = condensed
	}

	docs, err := c.index.QueryText(ctx, standalone, c.opts.TopK)
	if err != nil {
		return "", err
	}
	log.Debug().Str("query", helper.Preview(standalone, 80)).Int("sources", len(docs)).Msg("Retrieved context")

	reply, err := llmservice.GenerateContent(ctx, c.model, buildMessages(history, docs, question), c.callOptions()...)
	if err != nil {
		return "", models.ServiceError("generate answer", err)
	}

	c.mu.Lock()
	c.history = append(c.history,
		models.Message{Role: models.RoleUser, Content: question},
		models.Message{Role: models.RoleAssistant, Content: reply},
	)
	c.mu.Unlock()
	return reply, nil
}

// condense rewrites a follow-up question so it can be understood without the history
func (c *Conversation) condense(ctx context.Context, history []models.Message, question string) (string, error) {
	prompt := fmt.Sprintf(models.CondensePromptTemplate, formatHistory(history), question)
	msgs := []llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, prompt)}

	out, err := llmservice.GenerateContent(ctx, c.model, msgs, c.callOptions()...)
	if err != nil {
		return "", models.ServiceError("condense question", err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return question, nil
	}
	log.Debug().Str("question", helper.Preview(question, 80)).Str("standalone", helper.Preview(out, 80)).Msg("Condensed question")
	return out, nil
}

func buildMessages(history []models.Message, docs []models.SearchResult, question string) []llms.MessageContent {
	parts := make([]string, len(docs))
	for i, d := range docs {
		parts[i] = strings.TrimSpace(d.Chunk.Content)
	}
	system := fmt.Sprintf(models.AnswerPromptTemplate, strings.Join(parts, models.ContextSeparator))

	msgs := make([]llms.MessageContent, 0, len(history)+2)
	msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeSystem, system))
	for _, m := range history {
		msgs = append(msgs, llms.TextParts(messageType(m.Role), m.Content))
	}
	msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeHuman, question))
	return msgs
}

func (c *Conversation) callOptions() []llms.CallOption {
	var opts []llms.CallOption
	if c.opts.Model != "" {
		opts = append(opts, llms.WithModel(c.opts.Model))
	}
	if c.opts.Temperature != nil {
		opts = append(opts, llms.WithTemperature(*c.opts.Temperature))
	}
	return opts
}

func messageType(role models.Role) llms.ChatMessageType {
	if role == models.RoleAssistant {
		return llms.ChatMessageTypeAI
	}
	return llms.ChatMessageTypeHuman
}

func formatHistory(history []models.Message) string {
	var b strings.Builder
	for _, m := range history {
		if m.Role == models.RoleAssistant {
			b.WriteString("Assistant: ")
		} else {
			b.WriteString("Human: ")
		}
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return b.String()
}
