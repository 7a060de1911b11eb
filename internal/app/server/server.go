package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/asfc/doc-chat/internal/core/answer"
	"github.com/asfc/doc-chat/internal/core/history"
)

// defaultSession はセッションIDが指定されなかった場合の既定値
const defaultSession = "default"

// Server はチャットAPIを提供するHTTPサーバ
type Server struct {
	engine   *gin.Engine
	answers  *answer.Service
	history  *history.Service // 履歴が使えない構成では nil
	degraded bool
	logger   *slog.Logger
}

// Option は Server のオプション設定
type Option func(*Server)

// WithHistory は会話履歴の保存・参照を有効にする
func WithHistory(h *history.Service) Option {
	return func(s *Server) {
		s.history = h
	}
}

// WithDegraded はヘルスチェックへデータベース劣化状態を反映する
func WithDegraded(degraded bool) Option {
	return func(s *Server) {
		s.degraded = degraded
	}
}

// WithLogger は Server にロガーを設定する
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New は新しい Server を作成する
func New(answers *answer.Service, opts ...Option) *Server {
	s := &Server{
		answers: answers,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	api := engine.Group("/api")
	api.GET("/health", s.handleHealth)
	api.POST("/chat", s.handleChat)
	api.GET("/chat/history", s.handleHistory)

	s.engine = engine
	return s
}

// Handler はテストや埋め込み用途のために http.Handler を公開する
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run はHTTPサーバを起動し、contextのキャンセルで graceful shutdown する
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: s.engine,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	s.logger.Info("HTTP server started", "addr", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

type chatRequest struct {
	Question  string `json:"question" binding:"required"`
	SessionID string `json:"session_id"`
}

type chatResponse struct {
	Response  string `json:"response"`
	SessionID string `json:"session_id"`
}

type turnResponse struct {
	Question  string    `json:"question"`
	Response  string    `json:"response"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Server) handleChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "question is required"})
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = defaultSession
	}

	response := s.answers.Answer(c.Request.Context(), req.Question)

	// 履歴の保存失敗は応答を妨げない
	if s.history != nil {
		if _, err := s.history.SaveTurn(c.Request.Context(), sessionID, req.Question, response); err != nil {
			s.logger.Warn("failed to save conversation turn", "error", err)
		}
	}

	c.JSON(http.StatusOK, chatResponse{Response: response, SessionID: sessionID})
}

func (s *Server) handleHistory(c *gin.Context) {
	if s.history == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "history is unavailable"})
		return
	}

	sessionID := c.Query("session_id")
	if sessionID == "" {
		sessionID = defaultSession
	}

	turns, err := s.history.ListBySession(c.Request.Context(), sessionID)
	if err != nil {
		s.logger.Error("failed to list conversation history", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
		return
	}

	out := make([]turnResponse, 0, len(turns))
	for _, turn := range turns {
		out = append(out, turnResponse{
			Question:  turn.Question,
			Response:  turn.Response,
			CreatedAt: turn.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "turns": out})
}

func (s *Server) handleHealth(c *gin.Context) {
	database := "connected"
	if s.degraded {
		database = "unavailable"
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "database": database})
}
