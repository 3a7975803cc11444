package sentinel

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/clestiq/clestiq/pkg/models"
	"github.com/clestiq/clestiq/pkg/version"
)

// Server is the HTTP surface of the Sentinel service.
type Server struct {
	svc *Service
}

// NewServer creates the HTTP layer over a pipeline service.
func NewServer(svc *Service) *Server {
	return &Server{svc: svc}
}

// Router builds the gin engine with the pipeline routes.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.SetTrustedProxies(nil)
	router.Use(gin.Recovery())

	router.POST("/chat", s.Chat)
	router.GET("/health", s.Health)
	return router
}

// Chat handles POST /chat from the Gateway.
func (s *Server) Chat(c *gin.Context) {
	var req models.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body", Detail: err.Error()})
		return
	}

	slog.Info("Chat request received",
		"client_ip", req.ClientIP,
		"model", req.Model,
		"moderation", req.Moderation)

	result, err := s.svc.Process(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, ErrUpstream) {
			slog.Error("Upstream dependency unavailable", "error", err)
			c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{Detail: "Upstream service unavailable"})
			return
		}
		slog.Error("Pipeline failed", "error", err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Detail: "Internal server error"})
		return
	}

	if result.Blocked {
		slog.Warn("Request blocked", "reason", result.BlockReason)
	} else {
		slog.Info("Request processed",
			"model", result.Metrics.ModelUsed,
			"tokens_saved", result.Metrics.TokensSaved)
	}

	c.JSON(http.StatusOK, result)
}

// Health handles GET /health.
func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "sentinel",
		"version": version.Full(),
	})
}
