// Package api hosts the resource access endpoint: a token-gated HTTP surface
// in front of the broker for fetching, replacing, and deleting blobs by rid.
package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/stagelink/server/internal/api/handlers"
	"github.com/stagelink/server/internal/api/middleware"
	"github.com/stagelink/server/internal/broker"
)

const shutdownDeadline = 10 * time.Second

// ErrUnexpected wraps listener failures reported over the error channel.
var ErrUnexpected = errors.New("unexpected resource endpoint error")

// Config configures the resource endpoint.
type Config struct {
	// Addr is the listen address.
	Addr string
	// ResourcePath is the URL path prefix resources are served under.
	ResourcePath string
	// Token gates every resource route. Empty leaves the endpoint open.
	Token string
}

// Server is the resource access endpoint.
type Server struct {
	log    zerolog.Logger
	engine *gin.Engine
	*http.Server
}

// NewServer builds the endpoint routes on a fresh gin engine.
func NewServer(cfg Config, b *broker.Broker, log zerolog.Logger) *Server {
	srv := &Server{
		log: log,
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.Logging(log))
	engine.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Length", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	h := handlers.NewResourceHandler(b, log)
	resources := engine.Group(cfg.ResourcePath, middleware.TokenAuth(cfg.Token))
	resources.GET("/:rid", h.Get)
	resources.PUT("/:rid", h.Put)
	resources.DELETE("/:rid", h.Delete)

	srv.engine = engine
	srv.Server = &http.Server{
		Addr:    cfg.Addr,
		Handler: engine,
	}
	return srv
}

// Engine exposes the underlying router for tests.
func (srv *Server) Engine() *gin.Engine {
	return srv.engine
}

// Run serves until ctx is cancelled, then shuts down gracefully within a
// bounded deadline.
func (srv *Server) Run(ctx context.Context, wg *sync.WaitGroup, errc chan<- error) {
	defer func() {
		srv.log.Debug().Msg("resource endpoint stopped")
		wg.Done()
	}()

	hErr := make(chan error)
	go func() {
		hErr <- srv.ListenAndServe()
	}()

	srv.log.Info().Str("addr", srv.Addr).Msg("resource endpoint started")

	select {
	case err := <-hErr:
		if !errors.Is(err, http.ErrServerClosed) {
			errc <- errors.Join(ErrUnexpected, err)
		}
	case <-ctx.Done():
		shCtx, shCancel := context.WithTimeout(context.Background(), shutdownDeadline)
		defer shCancel()
		if err := srv.Shutdown(shCtx); err != nil {
			srv.log.Error().Err(err).Msg("resource endpoint shutdown failed")
		}
	}
}
