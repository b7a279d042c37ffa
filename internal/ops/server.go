// Package ops exposes the bot's operational HTTP surface: health, metrics,
// the daily risk summary and live quotes.
package ops

import (
	"context"
	"net/http"

	"github.com/bhtaylor94/apex/internal/pkg/logger"
	"github.com/bhtaylor94/apex/internal/risk"
	"github.com/bhtaylor94/apex/internal/stream"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server is the read-only ops endpoint. It never places or cancels orders;
// control stays with the trading loop and its config.
type Server struct {
	srv *http.Server
}

type Options struct {
	Port        string
	MetricsPath string
}

func NewServer(riskMgr *risk.Manager, quotes *stream.TickerStream, opts Options) *Server {
	if opts.MetricsPath == "" {
		opts.MetricsPath = "/metrics"
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "apex"})
	})

	r.GET(opts.MetricsPath, gin.WrapH(promhttp.Handler()))

	r.GET("/summary", func(c *gin.Context) {
		c.JSON(http.StatusOK, riskMgr.DailySummary())
	})

	r.GET("/quotes", func(c *gin.Context) {
		if quotes == nil {
			c.JSON(http.StatusOK, gin.H{})
			return
		}
		c.JSON(http.StatusOK, quotes.Quotes())
	})

	return &Server{
		srv: &http.Server{
			Addr:    ":" + opts.Port,
			Handler: r,
		},
	}
}

// Start serves until Shutdown. Run it in a goroutine.
func (s *Server) Start() {
	logger.Info("ops server started", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("ops server failed", "error", err)
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
