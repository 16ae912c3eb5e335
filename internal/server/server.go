// Package server exposes the monitoring dashboard and the vendor portal over
// HTTP. Every request loads the sheet fresh; no table state is shared.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"supply_tracker/internal/normalize"
	"supply_tracker/internal/sheets"
	"supply_tracker/internal/supply"
	"supply_tracker/internal/writeback"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const requestIDHeader = "X-Request-ID"

// Authenticator checks vendor logins.
type Authenticator interface {
	Usernames() []string
	Authenticate(username, password string) bool
}

// SaveNotifier is told about every committed portal save.
type SaveNotifier interface {
	NotifySave(ctx context.Context, vendor string, edits int)
}

type Config struct {
	JWTSecret    []byte
	TokenTTL     time.Duration
	AllowOrigins []string
}

// Server holds the collaborators shared by all handlers.
type Server struct {
	store     sheets.Store
	accounts  Authenticator
	committer *writeback.Committer
	notifier  SaveNotifier
	cfg       Config
	now       func() time.Time
}

func New(store sheets.Store, accounts Authenticator, committer *writeback.Committer, notifier SaveNotifier, cfg Config) *Server {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 8 * time.Hour
	}
	return &Server{
		store:     store,
		accounts:  accounts,
		committer: committer,
		notifier:  notifier,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestID(), accessLog())
	r.Use(cors.New(corsConfig(s.cfg.AllowOrigins)))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	api.GET("/monitoring", s.getMonitoring)
	api.GET("/monitoring/export", s.exportMonitoring)

	portal := api.Group("/portal")
	portal.GET("/vendors", s.listVendors)
	portal.POST("/login", s.login)

	orders := portal.Group("/orders", s.requireVendor())
	orders.GET("", s.getOrders)
	orders.PUT("", s.saveOrders)

	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.DefaultConfig()
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	cfg.AllowHeaders = append(cfg.AllowHeaders, "Authorization", requestIDHeader)
	cfg.ExposeHeaders = []string{requestIDHeader, "Content-Disposition"}
	return cfg
}

// load fetches and normalizes the full table. A failed fetch degrades to an
// empty table and a warning for the caller to show.
func (s *Server) load(c *gin.Context) (supply.Table, string) {
	header, records, err := s.store.FetchAll(c.Request.Context())
	if err != nil {
		log.Warn().
			Err(err).
			Str("request_id", c.GetString("request_id")).
			Msg("Sheet load failed, rendering empty table")
		return normalize.Normalize(nil, nil), supply.UserMessage(err)
	}
	return normalize.Normalize(header, records), ""
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		event := log.Info()
		if status >= http.StatusInternalServerError {
			event = log.Error()
		} else if status >= http.StatusBadRequest {
			event = log.Warn()
		}
		event.
			Str("request_id", c.GetString("request_id")).
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Msg("HTTP request")
	}
}

// statusFor maps pipeline errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, supply.ErrUnknownRow):
		return http.StatusBadRequest
	case errors.Is(err, supply.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, supply.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, supply.ErrConfiguration):
		return http.StatusInternalServerError
	case errors.Is(err, supply.ErrAuth), errors.Is(err, supply.ErrFetch), errors.Is(err, supply.ErrWrite), errors.Is(err, supply.ErrHeader):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(statusFor(err), gin.H{"error": supply.UserMessage(err)})
}
