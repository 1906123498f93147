// Package httpapi serves the scored accounts read-only over HTTP.
package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/ThorfinnThor/radar/internal/export"
	"github.com/ThorfinnThor/radar/internal/pipeline"
	"github.com/ThorfinnThor/radar/internal/platform/logger"
	"github.com/ThorfinnThor/radar/internal/rank"
	"github.com/ThorfinnThor/radar/internal/signal"
	"github.com/ThorfinnThor/radar/internal/store"
)

const (
	CodeValidation = "validation"
	CodeNotFound   = "not_found"
	CodeInternal   = "internal"

	defaultLimit = 40
	maxLimit     = 500
)

type Server struct {
	store  *store.Store
	scorer *pipeline.Scorer
	log    *logger.Logger
}

// NewServer returns the API handler. Rankings are computed from stored state
// on each request and never written back.
func NewServer(st *store.Store, scorer *pipeline.Scorer, log *logger.Logger) http.Handler {
	s := &Server{store: st, scorer: scorer, log: log}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("radar-api"))
	router.Use(s.requestLog())

	router.GET("/healthz", s.handleHealth)
	api := router.Group("/api")
	{
		api.GET("/accounts", s.handleAccounts)
		api.GET("/accounts/:name", s.handleAccount)
	}
	return router
}

func respondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, gin.H{
		"ok": false,
		"error": gin.H{
			"code":    code,
			"message": msg,
		},
	})
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

func parseLimit(value string) (int, error) {
	if strings.TrimSpace(value) == "" {
		return defaultLimit, nil
	}
	v, err := strconv.Atoi(value)
	if err != nil || v <= 0 {
		return 0, errors.New("limit must be a positive integer")
	}
	if v > maxLimit {
		v = maxLimit
	}
	return v, nil
}

func (s *Server) handleHealth(c *gin.Context) {
	if err := s.store.Ping(c.Request.Context()); err != nil {
		respondError(c, http.StatusServiceUnavailable, CodeInternal, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) handleAccounts(c *gin.Context) {
	limit, err := parseLimit(c.Query("limit"))
	if err != nil {
		respondError(c, http.StatusBadRequest, CodeValidation, err)
		return
	}
	watchlistOnly := false
	if raw := c.Query("watchlist"); raw != "" {
		if watchlistOnly, err = strconv.ParseBool(raw); err != nil {
			respondError(c, http.StatusBadRequest, CodeValidation, errors.New("watchlist must be true or false"))
			return
		}
	}

	rows, err := s.scorer.Rows(c.Request.Context(), false)
	if err != nil {
		s.log.Error("ranking failed", "error", err)
		respondError(c, http.StatusInternalServerError, CodeInternal, err)
		return
	}
	total := len(rows)
	if watchlistOnly {
		rows = rank.Watchlist(rows)
	}
	ranked := export.WithRanks(rows)
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	c.JSON(http.StatusOK, gin.H{
		"ok":       true,
		"total":    total,
		"accounts": ranked,
	})
}

func (s *Server) handleAccount(c *gin.Context) {
	ctx := c.Request.Context()
	name := strings.TrimSpace(c.Param("name"))
	var types []signal.Type
	if raw := c.Query("type"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			t := signal.Type(strings.TrimSpace(part))
			if !t.Valid() {
				respondError(c, http.StatusBadRequest, CodeValidation, errors.New("unknown signal type "+strconv.Quote(string(t))))
				return
			}
			types = append(types, t)
		}
	}

	acc, err := s.store.AccountByName(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		respondError(c, http.StatusNotFound, CodeNotFound, errors.New("account "+strconv.Quote(name)+" not found"))
		return
	}
	if err != nil {
		respondError(c, http.StatusInternalServerError, CodeInternal, err)
		return
	}
	row, _, err := s.scorer.Row(ctx, acc)
	if err != nil {
		respondError(c, http.StatusInternalServerError, CodeInternal, err)
		return
	}
	studies, err := s.store.StudiesForAccount(ctx, acc.ID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, CodeInternal, err)
		return
	}
	signals, err := s.store.SignalsForAccount(ctx, acc.ID, types...)
	if err != nil {
		respondError(c, http.StatusInternalServerError, CodeInternal, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ok":      true,
		"account": acc,
		"ranking": row,
		"studies": studies,
		"signals": signals,
	})
}
