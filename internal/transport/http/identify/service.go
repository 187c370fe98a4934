package identify

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"plantid-server-go/internal/domain/relay"
	"plantid-server-go/internal/platform/errors"
	"plantid-server-go/internal/platform/logging"
)

// Service exposes the identification relay over HTTP.
type Service struct {
	relay        *relay.Service
	maxBodyBytes int64
	logger       *logging.Logger
}

// NewService creates the HTTP adapter. maxBodyBytes <= 0 disables the limit.
func NewService(relaySvc *relay.Service, maxBodyBytes int64, logger *logging.Logger) (*Service, error) {
	if relaySvc == nil {
		return nil, errors.New(errors.KindConfig, "identify.new", "relay service is required")
	}
	return &Service{
		relay:        relaySvc,
		maxBodyBytes: maxBodyBytes,
		logger:       logger,
	}, nil
}

// Register mounts the relay on router. Every method is routed here so that
// non-POST requests get the relay's own 405.
func (s *Service) Register(ctx context.Context, router *gin.RouterGroup) error {
	router.Any("/identify", s.handle)
	s.logger.DebugTag("HTTP", "identify route registered under %s", router.BasePath())
	return nil
}

func (s *Service) handle(c *gin.Context) {
	var body io.Reader = c.Request.Body
	if s.maxBodyBytes > 0 && c.Request.Body != nil {
		body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxBodyBytes)
	}

	reply := s.relay.Handle(c.Request.Context(), c.Request.Method, body)
	c.Data(reply.Status, reply.ContentType, reply.Body)
}
