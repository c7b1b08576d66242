// Package httpapi exposes a read-only introspection surface over the
// running pool/store/pipeline state, plus the one write action this
// product has: a manually triggered historical funding fetch.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/romanzzaa/crossfeed/internal/admin"
	"github.com/romanzzaa/crossfeed/internal/funding"
	"github.com/romanzzaa/crossfeed/internal/model"
	"github.com/romanzzaa/crossfeed/internal/pipeline"
	"github.com/romanzzaa/crossfeed/internal/store"
)

// Server wires the gin engine to the running process's collaborators.
type Server struct {
	engine  *gin.Engine
	store   *store.DataStore
	pools   *admin.GlobalPoolManager
	fetcher *funding.Fetcher
	pipe    *pipeline.Pipeline
	symbols []string
	logger  *slog.Logger
}

// New builds the HTTP surface. symbols is the set the manual funding
// trigger fetches against.
func New(st *store.DataStore, pools *admin.GlobalPoolManager, fetcher *funding.Fetcher, pipe *pipeline.Pipeline, symbols []string) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		engine:  gin.New(),
		store:   st,
		pools:   pools,
		fetcher: fetcher,
		pipe:    pipe,
		symbols: symbols,
		logger:  slog.Default().With("component", "httpapi"),
	}
	s.engine.Use(gin.Recovery())
	s.routes()
	return s
}

// Run starts the HTTP listener on addr (e.g. ":10000"); it blocks
// until the server stops or errors.
func (s *Server) Run(addr string) error {
	return s.engine.Run(addr)
}

func (s *Server) routes() {
	s.engine.GET("/health", s.handleHealth)
	api := s.engine.Group("/api")
	{
		api.GET("/funding/settlement/public", s.handleFundingPublic)
		api.GET("/funding/settlement/status", s.handleFundingStatus)
		api.POST("/funding/settlement/fetch", s.handleFundingFetch)
		api.GET("/debug/store", s.handleDebugStore)
		api.GET("/monitor/health", s.handleMonitorHealth)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"ready":   s.store.Ready(),
		"connections": gin.H{
			"binance": s.store.ConnectionStatus(model.ExchangeBinance),
			"okx":     s.store.ConnectionStatus(model.ExchangeOKX),
		},
	})
}

func (s *Server) handleFundingPublic(c *gin.Context) {
	snapshot := s.store.DebugSnapshot()
	records := make([]model.Observation, 0)
	for _, bySymbol := range snapshot.Market {
		for _, byType := range bySymbol {
			if obs, ok := byType[model.DataTypeFundingSettlement]; ok {
				records = append(records, obs)
			}
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"records": records,
		"taken":   snapshot.Taken,
	})
}

func (s *Server) handleFundingStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success":          true,
		"can_manual_fetch": s.fetcher.CanManuallyFetch(),
		"price_invalid_count": s.pipe.PriceInvalidCount(),
	})
}

func (s *Server) handleFundingFetch(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	if err := s.fetcher.TriggerManual(ctx, s.symbols); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleDebugStore(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"store":   s.store.DebugSnapshot(),
	})
}

func (s *Server) handleMonitorHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"pools":   s.pools.StatusReport(),
	})
}
