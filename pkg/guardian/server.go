package guardian

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/clestiq/clestiq/pkg/models"
	"github.com/clestiq/clestiq/pkg/version"
)

// Server is the HTTP surface of the Guardian service.
type Server struct {
	svc *Service
}

// NewServer creates the HTTP layer over a validation service.
func NewServer(svc *Service) *Server {
	return &Server{svc: svc}
}

// Router builds the gin engine with the validation routes.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.SetTrustedProxies(nil)
	router.Use(gin.Recovery())

	router.POST("/validate", s.Validate)
	router.GET("/health", s.Health)
	return router
}

// Validate handles POST /validate.
func (s *Server) Validate(c *gin.Context) {
	var req models.ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body", Detail: err.Error()})
		return
	}

	slog.Info("Validation request received",
		"moderation_mode", req.ModerationMode,
		"output_format", req.OutputFormat)

	c.JSON(http.StatusOK, s.svc.Validate(c.Request.Context(), req))
}

// Health handles GET /health.
func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "guardian",
		"version": version.Full(),
	})
}
