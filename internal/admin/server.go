// Package admin implements the embedded web interface for inspecting and
// controlling a running proxy: the token-gated routes mounted under the
// /_proxy path and served from the same listener as the forwarding
// pipeline.
package admin

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sofatutor/debugproxy/internal/config"
	"github.com/sofatutor/debugproxy/internal/logging"
	"github.com/sofatutor/debugproxy/internal/recorder"
)

// AssetProvider resolves an embedded UI asset by its path relative to the
// UI build output (e.g. "index.html", "assets/index-abc123.js"). It
// returns ok=false when the asset does not exist.
type AssetProvider interface {
	Asset(name string) (data []byte, ok bool)
}

// NoAssets is an AssetProvider that never finds anything; Server falls back
// to an inline placeholder page when it is used.
type NoAssets struct{}

// Asset implements AssetProvider.
func (NoAssets) Asset(string) ([]byte, bool) { return nil, false }

const fallbackUI = `<!DOCTYPE html><html><head><title>Debug Proxy</title></head>` +
	`<body><h1>Admin Interface</h1><p>page not found</p></body></html>`

// fallbackUIBody serves the inline placeholder if no index.html asset is
// registered with the server's AssetProvider.
func fallbackUIBody() []byte { return []byte(fallbackUI) }

// Server is the gin-based admin router. It is mounted as a sub-handler of
// the proxy engine rather than run on its own listener, so that the proxy
// and its control surface share one bound port.
type Server struct {
	engine   *gin.Engine
	config   *config.Store
	recorder *recorder.Recorder
	assets   AssetProvider
	logger   *zap.Logger
}

// NewServer builds the admin router. assets may be nil, in which case the
// server falls back to NoAssets.
func NewServer(cfg *config.Store, rec *recorder.Recorder, assets AssetProvider, logger *zap.Logger) *Server {
	if assets == nil {
		assets = NoAssets{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		engine:   engine,
		config:   cfg,
		recorder: rec,
		assets:   assets,
		logger:   logger,
	}
	s.setupRoutes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.engine.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	s.engine.Use(s.tokenGate)

	s.engine.GET("/_proxy", s.handleUI)
	s.engine.GET("/_proxy/", s.handleUI)
	s.engine.GET("/_proxy/api/config", s.handleGetConfig)
	s.engine.POST("/_proxy/api/config", s.handleUpdateConfig)
	s.engine.GET("/_proxy/api/logs", s.handleGetLogs)
	s.engine.DELETE("/_proxy/api/logs", s.handleClearLogs)
	s.engine.GET("/_proxy/assets/*asset", s.handleAsset)
	s.engine.NoRoute(func(c *gin.Context) {
		c.String(http.StatusNotFound, "Not Found")
	})
}

// tokenGate requires the query parameter token to match the current access
// token, except for static assets which must be reachable unauthenticated
// (the admin UI itself needs them before it can know the token).
func (s *Server) tokenGate(c *gin.Context) {
	if strings.HasPrefix(c.Request.URL.Path, "/_proxy/assets/") {
		c.Next()
		return
	}

	expected := s.config.AccessToken()
	provided := c.Query("token")
	if provided != expected {
		s.logger.Debug("admin token rejected",
			zap.String(logging.FieldPath, c.Request.URL.Path))
		c.String(http.StatusUnauthorized, "Unauthorized - Invalid or missing token")
		c.Abort()
		return
	}
	c.Next()
}

func (s *Server) handleUI(c *gin.Context) {
	body, ok := s.assets.Asset("index.html")
	if !ok {
		body = fallbackUIBody()
	}
	c.Data(http.StatusOK, "text/html", body)
}

func (s *Server) handleGetConfig(c *gin.Context) {
	snapshot := s.config.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"client_timeout_ms":   snapshot.ClientTimeout.Milliseconds(),
		"upstream_timeout_ms": snapshot.UpstreamTimeout.Milliseconds(),
		"max_history_size":    snapshot.MaxHistorySize,
		"max_body_size":       snapshot.MaxBodySize,
		"truncate_body_at":    snapshot.TruncateBodyAt,
	})
}

func (s *Server) handleUpdateConfig(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.String(http.StatusBadRequest, fmt.Sprintf("Invalid configuration: %v", err))
		return
	}

	var update config.Update
	if err := json.Unmarshal(body, &update); err != nil {
		c.String(http.StatusBadRequest, fmt.Sprintf("Invalid configuration: %v", err))
		return
	}

	s.config.Update(update.ApplyTo)

	if update.MaxHistorySize != nil {
		s.recorder.Resize(*update.MaxHistorySize)
	}

	c.String(http.StatusOK, "Configuration updated")
}

func (s *Server) handleGetLogs(c *gin.Context) {
	c.JSON(http.StatusOK, s.recorder.Snapshot())
}

func (s *Server) handleClearLogs(c *gin.Context) {
	s.recorder.Clear()
	c.String(http.StatusOK, "Logs cleared")
}

func (s *Server) handleAsset(c *gin.Context) {
	assetPath := strings.TrimPrefix(c.Request.URL.Path, "/_proxy/")
	if assetPath == "" {
		c.String(http.StatusNotFound, "Asset not found")
		return
	}

	data, ok := s.assets.Asset(assetPath)
	if !ok {
		s.logger.Debug("embedded asset not found", zap.String("asset", assetPath))
		c.String(http.StatusNotFound, "Asset not found")
		return
	}

	contentType := mime.TypeByExtension(path.Ext(assetPath))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Data(http.StatusOK, contentType, data)
}
