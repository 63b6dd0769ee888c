package server

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"pdf-chat/internal/models"
	"pdf-chat/internal/parser"
	"pdf-chat/internal/session"
)

type askRequest struct {
	Question string `form:"question" json:"question"`
}

type processResponse struct {
	Documents int `json:"documents"`
	Chunks    int `json:"chunks"`
}

type askResponse struct {
	Reply   string           `json:"reply"`
	History []models.Message `json:"history"`
}

type pageData struct {
	Status  session.Status
	History []models.Message
	Notice  string
	Error   string
}

func (srv *Server) index(ctx *gin.Context) {
	ctx.HTML(http.StatusOK, "index.html", pageData{
		Status:  srv.session.Status(),
		History: srv.session.History(),
		Notice:  ctx.Query("notice"),
		Error:   ctx.Query("error"),
	})
}

func (srv *Server) process(ctx *gin.Context) {
	if srv.maxUpload > 0 {
		ctx.Request.Body = http.MaxBytesReader(ctx.Writer, ctx.Request.Body, srv.maxUpload)
	}

	files, err := readUploads(ctx)
	if err != nil {
		srv.fail(ctx, err)
		return
	}

	index, err := srv.session.Process(ctx.Request.Context(), files)
	if err != nil {
		srv.fail(ctx, err)
		return
	}

	if wantsJSON(ctx) {
		ctx.JSON(http.StatusOK, processResponse{Documents: len(files), Chunks: index.Count()})
		return
	}
	redirect(ctx, "notice", fmt.Sprintf("Processed %d document(s) into %d chunks", len(files), index.Count()))
}

func (srv *Server) ask(ctx *gin.Context) {
	var req askRequest
	if err := ctx.ShouldBind(&req); err != nil {
		srv.fail(ctx, models.InputError("read question", err))
		return
	}

	reply, history, err := srv.session.Ask(ctx.Request.Context(), req.Question)
	if err != nil {
		srv.fail(ctx, err)
		return
	}

	if wantsJSON(ctx) {
		ctx.JSON(http.StatusOK, askResponse{Reply: reply, History: history})
		return
	}
	redirect(ctx, "", "")
}

func (srv *Server) reset(ctx *gin.Context) {
	if err := srv.session.Reset(); err != nil {
		srv.fail(ctx, err)
		return
	}
	if wantsJSON(ctx) {
		ctx.JSON(http.StatusOK, srv.session.Status())
		return
	}
	redirect(ctx, "notice", "Session cleared")
}

func (srv *Server) status(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, srv.session.Status())
}

func (srv *Server) history(ctx *gin.Context) {
	history := srv.session.History()
	if history == nil {
		history = []models.Message{}
	}
	ctx.JSON(http.StatusOK, gin.H{"history": history})
}

// fail reports err as JSON or as a message on the page
func (srv *Server) fail(ctx *gin.Context, err error) {
	_ = ctx.Error(err)
	code := statusCode(err)
	if code >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", ctx.Request.URL.Path).Msg("Request failed")
	}
	if wantsJSON(ctx) {
		ctx.AbortWithStatusJSON(code, gin.H{"error": err.Error(), "kind": models.KindOf(err).String()})
		return
	}
	redirect(ctx, "error", err.Error())
}

func statusCode(err error) int {
	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		return http.StatusRequestEntityTooLarge
	}
	switch models.KindOf(err) {
	case models.KindInput:
		return http.StatusBadRequest
	case models.KindState:
		return http.StatusConflict
	case models.KindService:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func readUploads(ctx *gin.Context) ([]parser.File, error) {
	form, err := ctx.MultipartForm()
	if err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return nil, err
		}
		if errors.Is(err, http.ErrNotMultipart) || errors.Is(err, http.ErrMissingBoundary) {
			return nil, models.ErrNoDocuments
		}
		return nil, models.InputError("read upload", err)
	}

	headers := form.File["files"]
	files := make([]parser.File, 0, len(headers))
	for _, h := range headers {
		data, err := readUpload(h)
		if err != nil {
			return nil, models.InputError("read "+h.Filename, err)
		}
		files = append(files, parser.File{Name: h.Filename, Data: data})
	}
	return files, nil
}

func readUpload(h *multipart.FileHeader) ([]byte, error) {
	f, err := h.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func wantsJSON(ctx *gin.Context) bool {
	return strings.Contains(ctx.GetHeader("Accept"), gin.MIMEJSON)
}

func redirect(ctx *gin.Context, key, msg string) {
	target := "/"
	if msg != "" {
		target += "?" + url.Values{key: {msg}}.Encode()
	}
	ctx.Redirect(http.StatusSeeOther, target)
	ctx.Abort()
}
