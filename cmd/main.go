package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alexflint/go-arg"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"pdf-chat/internal/config"
	"pdf-chat/internal/embedding"
	"pdf-chat/internal/llmservice"
	"pdf-chat/internal/parser"
	"pdf-chat/internal/rag"
	"pdf-chat/internal/server"
	"pdf-chat/internal/session"
)

const (
	programName = "pdf-chat"
	version     = "v0.1.0"
)

type args struct {
	Config string   `arg:"--config,-c" default:"./configs/config.yaml" help:"path to the YAML config file"`
	Addr   string   `arg:"--addr" help:"listen address, overrides server.addr"`
	Files  []string `arg:"--file,-f,separate" help:"process these documents and answer --query without starting the server"`
	Query  []string `arg:"--query,-q,separate" help:"question to ask about --file, may be repeated"`
}

func (args) Version() string {
	return fmt.Sprintf("%s %s", programName, version)
}

func (args) Description() string {
	return "Chat with your documents: upload PDFs, ask questions, get answers grounded in their text."
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Caller().Logger()

	var a args
	arg.MustParse(&a)

	// a missing .env is fine, credentials may come from the environment
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("Error loading .env")
	}

	cfg, err := config.LoadConfig(a.Config)
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading config")
	}
	if a.Addr != "" {
		cfg.Server.Addr = a.Addr
	}
	setLogLevel(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid config")
	}
	log.Debug().Interface("config", cfg).Msg("Loaded config")

	sess, err := newSession(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing session")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if len(a.Files) > 0 {
		if err := runOnce(ctx, sess, a.Files, a.Query); err != nil {
			log.Fatal().Err(err).Msg("Error answering")
		}
		return
	}

	srv, err := server.New(sess, cfg.Server)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing server")
	}
	if err := srv.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server stopped")
	}
}

func setLogLevel(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		log.Warn().Str("log_level", level).Msg("Unknown log level, using info")
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

func newSession(cfg *config.Config) (*session.Session, error) {
	embedder, err := embedding.NewEmbedder(&cfg.EmbedLLM)
	if err != nil {
		return nil, fmt.Errorf("embedder: %w", err)
	}
	model, err := llmservice.NewChatModel(&cfg.ChatLLM)
	if err != nil {
		return nil, fmt.Errorf("chat model: %w", err)
	}
	chunker, err := parser.NewChunker(cfg.RAG)
	if err != nil {
		return nil, fmt.Errorf("chunker: %w", err)
	}
	return session.New(chunker, embedder, model, session.Options{
		Conversation: rag.OptionsFromConfig(cfg),
		ResetHistory: cfg.RAG.ResetHistory(),
	}), nil
}

// runOnce processes files from disk and prints the answer to each query in turn
func runOnce(ctx context.Context, sess *session.Session, paths, queries []string) error {
	files := make([]parser.File, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		files = append(files, parser.File{Name: filepath.Base(p), Data: data})
	}

	index, err := sess.Process(ctx, files)
	if err != nil {
		return err
	}
	log.Info().Int("chunks", index.Count()).Msg("Documents ready")

	for _, q := range queries {
		reply, _, err := sess.Ask(ctx, q)
		if err != nil {
			return err
		}

		log.Info().Msg("Query: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
		fmt.Printf("%s\n\n", q)

		log.Info().Msg("Assistant: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
		fmt.Printf("%s\n\n", reply)
	}
	return nil
}
