package server

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"pdf-chat/internal/config"
	"pdf-chat/internal/session"
)

//go:embed templates/*.html
var templateFS embed.FS

type Server struct {
	session   *session.Session
	cfg       config.ServerConfig
	markdown  *markdownRenderer
	engine    *gin.Engine
	maxUpload int64
}

func New(s *session.Session, cfg config.ServerConfig) (*Server, error) {
	srv := &Server{
		session:   s,
		cfg:       cfg,
		markdown:  newMarkdownRenderer(),
		maxUpload: cfg.MaxUploadMB << 20,
	}

	tmpl, err := template.New("").
		Funcs(template.FuncMap{"markdown": srv.markdown.HTML}).
		ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	engine := gin.New()
	engine.Use(Logger, gin.Recovery())
	engine.MaxMultipartMemory = srv.maxUpload
	engine.SetHTMLTemplate(tmpl)
	srv.engine = engine
	srv.addRoutes()
	return srv, nil
}

func (srv *Server) addRoutes() {
	srv.engine.GET("/", srv.index)
	srv.engine.POST("/process", srv.process)
	srv.engine.POST("/ask", srv.ask)
	srv.engine.POST("/reset", srv.reset)

	api := srv.engine.Group("/api")
	{
		api.GET("/status", srv.status)
		api.GET("/history", srv.history)
	}
}

// Handler exposes the router, mainly for tests
func (srv *Server) Handler() http.Handler {
	return srv.engine
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (srv *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              srv.cfg.Addr,
		Handler:           srv.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.cfg.Addr).Msg("Listening")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
