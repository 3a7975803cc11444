package gateway

import (
	"github.com/gin-gonic/gin"

	"github.com/clestiq/clestiq/pkg/credentials"
	"github.com/clestiq/clestiq/pkg/telemetry"
	"github.com/clestiq/clestiq/pkg/version"
)

// Server is the HTTP surface of the Gateway service.
type Server struct {
	handler *Handler
	creds   credentials.Store
	salt    string
	metrics *telemetry.Metrics
}

// NewServer creates the HTTP layer over the chat handler.
func NewServer(handler *Handler, creds credentials.Store, salt string, metrics *telemetry.Metrics) *Server {
	return &Server{handler: handler, creds: creds, salt: salt, metrics: metrics}
}

// Router builds the gin engine with the public routes. /chat is the only
// authenticated surface; /health and /metrics are open.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.SetTrustedProxies(nil)
	router.Use(gin.Recovery())

	router.POST("/chat", RequireAPIKey(s.creds, s.salt), s.handler.Chat)
	router.GET("/health", s.Health)
	if s.metrics != nil {
		router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}
	return router
}

// Health handles GET /health.
func (s *Server) Health(c *gin.Context) {
	c.JSON(200, gin.H{
		"status":  "ok",
		"service": "gateway",
		"version": version.Full(),
	})
}
