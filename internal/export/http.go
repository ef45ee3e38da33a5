package export

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"github.com/roach88/sportorg/internal/engine"
	"github.com/roach88/sportorg/internal/feed"
	"github.com/roach88/sportorg/internal/model"
)

const (
	shutdownTimeout = 5 * time.Second
	wsWriteWait     = 10 * time.Second
)

// Controller is the part of the engine the HTTP API drives.
type Controller interface {
	SetStatus(ctx context.Context, competitorID string, status model.Status, reason string) error
	ClearStatus(ctx context.Context, competitorID string) error
	ReviewItems(ctx context.Context) ([]model.ReviewItem, error)
}

var _ Controller = (*engine.Engine)(nil)

// Server is the results HTTP API.
type Server struct {
	router *gin.Engine
	feed   *feed.Feed
	ctl    Controller
	logger zerolog.Logger

	upgrader websocket.Upgrader
}

// NewServer builds the API over a feed and the engine behind it.
func NewServer(f *feed.Feed, ctl Controller, logger zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		router: gin.New(),
		feed:   f,
		ctl:    ctl,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	s.router.Use(gin.Recovery(), s.requestLog())

	s.router.GET("/health", s.health)
	s.router.GET("/classes", s.listClasses)
	s.router.GET("/classes/:id/results", s.classResults)
	s.router.GET("/classes/:id/live", s.classLive)
	s.router.POST("/competitors/:id/status", s.setStatus)
	s.router.DELETE("/competitors/:id/status", s.clearStatus)
	s.router.GET("/review", s.review)
	return s
}

// Handler returns the API with CORS applied.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(s.router)
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("http server starting")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error().Err(err).Msg("http server shutdown failed")
		return err
	}
	s.logger.Info().Msg("http server stopped")
	return nil
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Header("X-Request-ID", requestID)

		c.Next()

		s.logger.Debug().
			Str("request_id", requestID).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("request completed")
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "version": model.EngineVersion})
}

func (s *Server) listClasses(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"classes": s.feed.Classes()})
}

func (s *Server) classResults(c *gin.Context) {
	snap, ok := s.feed.Current(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no results for class"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

// classLive streams a class's snapshots over a websocket, starting with the
// current one. Snapshots are coalesced, so a slow client skips to the
// newest ranking.
func (s *Server) classLive(c *gin.Context) {
	classID := c.Param("id")
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn().Err(err).Str("class", classID).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	sub := s.feed.Subscribe(classID)
	defer sub.Close()

	// Reads only detect the client going away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	log := s.logger.With().Str("class", classID).Str("remote", c.Request.RemoteAddr).Logger()
	log.Debug().Msg("live client connected")
	for {
		snap, err := sub.Next(ctx)
		if err != nil {
			log.Debug().Err(err).Msg("live client gone")
			if errors.Is(err, feed.ErrClosed) {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "feed closed"),
					time.Now().Add(wsWriteWait))
			}
			return
		}
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(snap); err != nil {
			log.Debug().Err(err).Msg("live write failed")
			return
		}
	}
}

type statusRequest struct {
	Status string `json:"status" binding:"required"`
	Reason string `json:"reason" binding:"required"`
}

func (s *Server) setStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status and reason are required"})
		return
	}
	status, err := model.ParseStatus(req.Status)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id := c.Param("id")
	if err := s.ctl.SetStatus(c.Request.Context(), id, status, req.Reason); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"competitor_id": id, "status": status})
}

func (s *Server) clearStatus(c *gin.Context) {
	if err := s.ctl.ClearStatus(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) review(c *gin.Context) {
	items, err := s.ctl.ReviewItems(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	if items == nil {
		items = []model.ReviewItem{}
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// fail maps an engine error to a response.
func (s *Server) fail(c *gin.Context, err error) {
	code := engine.ErrorCode(err)
	status := http.StatusInternalServerError
	switch code {
	case engine.ErrCodeUnknownCompetitor:
		status = http.StatusNotFound
	case engine.ErrCodeInvalidTransition:
		status = http.StatusConflict
	case engine.ErrCodeInvalidCompetitor:
		status = http.StatusBadRequest
	}
	if errors.Is(err, engine.ErrStopped) {
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
	}
	c.JSON(status, gin.H{"error": err.Error(), "code": code})
}
