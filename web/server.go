// Package web serves the landing page, the click-notification webhook and
// the operational endpoints next to the bot's polling loop.
package web

import (
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

type Server struct {
	cfg    ServerConfig
	engine *gin.Engine
	client *http.Client
}

// ServerConfig is the slice of the app config the web server needs.
type ServerConfig struct {
	Port      string
	NotifyURL string
	StaticDir string
	Debug     bool
}

func NewServer(cfg ServerConfig) *Server {
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(requestLogger(), gin.Recovery())

	s := &Server{
		cfg:    cfg,
		engine: engine,
		client: &http.Client{Timeout: 10 * time.Second},
	}

	engine.POST("/notify-click", rateLimit(5, 10), s.notifyClick)
	engine.StaticFile("/megapack", filepath.Join(cfg.StaticDir, "megapack.html"))
	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) Run() error {
	log.Info().Str("port", s.cfg.Port).Msg("web server listening")
	return s.engine.Run(":" + s.cfg.Port)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("http request")
	}
}
