package server

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"pdf-chat/internal/config"
	"pdf-chat/internal/models"
	"pdf-chat/internal/parser"
	"pdf-chat/internal/rag"
	"pdf-chat/internal/session"
	"pdf-chat/internal/testutil"
)

type ServerTestSuite struct {
	suite.Suite
	model    *testutil.Model
	embedder *testutil.Embedder
	handler  http.Handler
}

func (s *ServerTestSuite) SetupSuite() {
	gin.SetMode(gin.TestMode)
}

func (s *ServerTestSuite) SetupTest() {
	chunker, err := parser.NewChunker(config.Default().RAG)
	s.Require().NoError(err)
	s.model = &testutil.Model{}
	s.embedder = testutil.NewEmbedder()
	sess := session.New(chunker, s.embedder, s.model, session.Options{
		Conversation: rag.Options{TopK: 4},
		ResetHistory: true,
	})
	srv, err := New(sess, config.ServerConfig{Addr: ":0", MaxUploadMB: 1})
	s.Require().NoError(err)
	s.handler = srv.Handler()
}

func (s *ServerTestSuite) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	return w
}

func uploadRequest(t *testing.T, files map[string][]byte, asJSON bool) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for name, data := range files {
		fw, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/process", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if asJSON {
		req.Header.Set("Accept", "application/json")
	}
	return req
}

func newAskRequest(question string, asJSON bool) *http.Request {
	form := url.Values{"question": {question}}
	req := httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if asJSON {
		req.Header.Set("Accept", "application/json")
	}
	return req
}

func (s *ServerTestSuite) process() {
	w := s.do(uploadRequest(s.T(), map[string][]byte{
		"hello.pdf": testutil.BuildPDF("Hello world. This is a test document."),
	}, true))
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
}

func (s *ServerTestSuite) TestIndexPage() {
	w := s.do(httptest.NewRequest(http.MethodGet, "/?error=boom", nil))
	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), "Upload documents to start")
	s.Contains(w.Body.String(), "boom")
}

func (s *ServerTestSuite) TestProcessJSON() {
	w := s.do(uploadRequest(s.T(), map[string][]byte{
		"hello.pdf": testutil.BuildPDF("Hello world. This is a test document."),
	}, true))
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	var resp processResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	s.Equal(processResponse{Documents: 1, Chunks: 1}, resp)
}

func (s *ServerTestSuite) TestProcessRedirects() {
	w := s.do(uploadRequest(s.T(), map[string][]byte{"notes.txt": []byte("some notes")}, false))
	s.Equal(http.StatusSeeOther, w.Code)
	s.Contains(w.Header().Get("Location"), "notice=")
}

func (s *ServerTestSuite) TestProcessErrors() {
	w := s.do(uploadRequest(s.T(), map[string][]byte{}, true))
	s.Equal(http.StatusBadRequest, w.Code)

	w = s.do(uploadRequest(s.T(), map[string][]byte{"image.png": {0x89, 'P', 'N', 'G'}}, true))
	s.Equal(http.StatusBadRequest, w.Code)
	s.Contains(w.Body.String(), "unsupported file format")

	s.embedder.SetFail(true)
	w = s.do(uploadRequest(s.T(), map[string][]byte{"notes.txt": []byte("some notes")}, true))
	s.Equal(http.StatusBadGateway, w.Code)

	w = s.do(uploadRequest(s.T(), map[string][]byte{"big.txt": bytes.Repeat([]byte("a"), 2<<20)}, true))
	s.Equal(http.StatusRequestEntityTooLarge, w.Code)
}

func (s *ServerTestSuite) TestAskBeforeProcess() {
	w := s.do(newAskRequest("What is X?", true))
	s.Equal(http.StatusConflict, w.Code)
	s.Contains(w.Body.String(), models.ErrNotReady.Msg)

	w = s.do(newAskRequest("What is X?", false))
	s.Equal(http.StatusSeeOther, w.Code)
	s.Contains(w.Header().Get("Location"), "error=")
}

func (s *ServerTestSuite) TestAskJSON() {
	s.process()

	w := s.do(newAskRequest("What is X?", true))
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	var resp askResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	s.Equal("answer to: What is X?", resp.Reply)
	s.Len(resp.History, 2)

	w = s.do(newAskRequest("   ", true))
	s.Equal(http.StatusBadRequest, w.Code)

	s.model.SetFail(true)
	w = s.do(newAskRequest("And Y?", true))
	s.Equal(http.StatusBadGateway, w.Code)

	w = s.do(httptest.NewRequest(http.MethodGet, "/api/history", nil))
	var hist struct {
		History []models.Message `json:"history"`
	}
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &hist))
	s.Len(hist.History, 2)
}

func (s *ServerTestSuite) TestTranscriptRendersMarkdown() {
	s.process()
	s.Equal(http.StatusSeeOther, s.do(newAskRequest("**bold** question", false)).Code)

	w := s.do(httptest.NewRequest(http.MethodGet, "/", nil))
	s.Contains(w.Body.String(), "<strong>bold</strong>")
	s.Contains(w.Body.String(), "**bold** question")
}

func (s *ServerTestSuite) TestStatusAndReset() {
	s.process()

	w := s.do(httptest.NewRequest(http.MethodGet, "/api/status", nil))
	var st session.Status
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &st))
	s.Equal(session.StateReady, st.State)
	s.Equal(1, st.Chunks)

	req := httptest.NewRequest(http.MethodPost, "/reset", nil)
	req.Header.Set("Accept", "application/json")
	w = s.do(req)
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &st))
	s.Equal(session.StateUninitialized, st.State)

	w = s.do(httptest.NewRequest(http.MethodGet, "/api/history", nil))
	s.JSONEq(`{"history": []}`, w.Body.String())
}

func TestServerTestSuite(t *testing.T) {
	suite.Run(t, new(ServerTestSuite))
}

func TestStatusCode(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusCode(models.ErrNoDocuments))
	assert.Equal(t, http.StatusConflict, statusCode(models.ErrBusy))
	assert.Equal(t, http.StatusBadGateway, statusCode(models.ServiceError("embed", assert.AnError)))
	assert.Equal(t, http.StatusInternalServerError, statusCode(assert.AnError))
}
