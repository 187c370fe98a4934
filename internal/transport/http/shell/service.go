package shell

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	domainshell "plantid-server-go/internal/domain/shell"
	"plantid-server-go/internal/platform/errors"
	"plantid-server-go/internal/platform/logging"
	httptransport "plantid-server-go/internal/transport/http"
)

// CacheHeader reports how the shell answered: hit, miss or bypass.
const CacheHeader = "X-Shell-Cache"

var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Connection",
	"Transfer-Encoding",
	"Upgrade",
	"Te",
	"Trailer",
	"Content-Length",
}

// Service puts the shell cache controller in front of every non-API request.
type Service struct {
	controller *domainshell.Controller
	origin     *url.URL
	files      []string
	bypass     []string
	logger     *logging.Logger
}

// NewService creates the shell HTTP adapter. Absolute-form requests are only
// honoured for the origin itself and for bypassHosts.
func NewService(controller *domainshell.Controller, origin string, files, bypassHosts []string, logger *logging.Logger) (*Service, error) {
	if controller == nil {
		return nil, errors.New(errors.KindConfig, "shell.http.new", "controller is required")
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return nil, errors.New(errors.KindConfig, "shell.http.new", fmt.Sprintf("origin %q must be an absolute URL", origin))
	}
	return &Service{
		controller: controller,
		origin:     u,
		files:      append([]string(nil), files...),
		bypass:     append([]string(nil), bypassHosts...),
		logger:     logger,
	}, nil
}

// Register mounts the status endpoint.
func (s *Service) Register(ctx context.Context, router *gin.RouterGroup) error {
	router.GET("/shell", s.handleStatus)
	return nil
}

type statusResponse struct {
	domainshell.Status
	Origin string   `json:"origin"`
	Files  []string `json:"files"`
}

func (s *Service) handleStatus(c *gin.Context) {
	httptransport.RespondSuccess(c, http.StatusOK, statusResponse{
		Status: s.controller.Status(),
		Origin: s.origin.String(),
		Files:  s.files,
	}, "")
}

// Intercept answers a request through the controller. Paths resolve against
// the origin; an absolute-form target for any other host than the origin or
// a bypass host is refused, so the server never acts as an open proxy.
func (s *Service) Intercept(c *gin.Context) {
	target, ok := s.target(c.Request)
	if !ok {
		s.logger.WarnTag("Shell", "refusing proxy request for %s", c.Request.URL.Host)
		c.String(http.StatusBadRequest, "Bad Request")
		return
	}

	header := c.Request.Header.Clone()
	for _, name := range hopHeaders {
		header.Del(name)
	}
	header.Del("Accept-Encoding")

	var body io.Reader
	if c.Request.Body != nil && c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
		body = c.Request.Body
	}

	resp, err := s.controller.Fetch(c.Request.Context(), &domainshell.Request{
		Method: c.Request.Method,
		URL:    target,
		Header: header,
		Body:   body,
	})
	if err != nil {
		s.logger.WarnTag("Shell", "fetch %s failed: %v", c.Request.URL.String(), err)
		c.String(http.StatusBadGateway, "Bad Gateway")
		return
	}

	for name, values := range resp.Header {
		c.Writer.Header()[name] = append([]string(nil), values...)
	}
	for _, name := range hopHeaders {
		c.Writer.Header().Del(name)
	}
	if resp.Source != "" {
		c.Header(CacheHeader, string(resp.Source))
	}

	status := resp.Status
	if status == 0 {
		status = http.StatusBadGateway
	}
	c.Status(status)
	if c.Request.Method != http.MethodHead {
		_, _ = c.Writer.Write(resp.Body)
	}
}

func (s *Service) target(r *http.Request) (*url.URL, bool) {
	if r.URL.IsAbs() {
		sameOrigin := strings.EqualFold(r.URL.Scheme, s.origin.Scheme) && strings.EqualFold(r.URL.Host, s.origin.Host)
		if !sameOrigin && !domainshell.MatchesHost(r.URL.Hostname(), s.bypass) {
			return nil, false
		}
		if !sameOrigin {
			u := *r.URL
			return &u, true
		}
	}
	return s.origin.ResolveReference(&url.URL{
		Path:     r.URL.Path,
		RawPath:  r.URL.RawPath,
		RawQuery: r.URL.RawQuery,
	}), true
}
