package relay

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"plantid-server-go/internal/domain/image"
	"plantid-server-go/internal/platform/logging"
	"plantid-server-go/internal/platform/observability"
)

// Downstream is the outbound Messages API call.
type Downstream interface {
	Identify(ctx context.Context, apiKey, mediaType, data string) (DownstreamResponse, error)
}

// ImageValidator optionally vets the image before it leaves the relay.
type ImageValidator interface {
	ValidateBase64(payload image.Payload) image.ValidationResult
}

// Options tunes request validation.
type Options struct {
	// KeyPrefix must prefix every API key. Empty accepts any non-empty key.
	KeyPrefix string
	Validator ImageValidator
	Logger    *logging.Logger
}

// Service validates identification requests and relays them downstream.
// It holds no per-request state.
type Service struct {
	downstream Downstream
	keyPrefix  string
	validator  ImageValidator
	logger     *logging.Logger
}

// NewService wires the relay to its downstream client.
func NewService(downstream Downstream, opts Options) *Service {
	return &Service{
		downstream: downstream,
		keyPrefix:  opts.KeyPrefix,
		validator:  opts.Validator,
		logger:     opts.Logger,
	}
}

// Handle runs the whole relay for one HTTP invocation. The body is not read
// unless method is POST.
func (s *Service) Handle(ctx context.Context, method string, body io.Reader) *Reply {
	if method != http.MethodPost {
		return methodNotAllowedReply()
	}
	return s.Relay(ctx, body)
}

// Relay decodes body and identifies it. Every failure is rendered as a reply.
func (s *Service) Relay(ctx context.Context, body io.Reader) *Reply {
	req, err := Decode(body)
	if err != nil {
		return s.fail(err)
	}
	reply, err := s.Identify(ctx, req)
	if err != nil {
		return s.fail(err)
	}
	return reply
}

// Decode parses an IdentificationRequest. Parse failures are internal errors.
func Decode(body io.Reader) (IdentificationRequest, error) {
	var req IdentificationRequest
	if body == nil {
		return req, internal(stdErrors.New("unexpected end of JSON input"))
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return req, internal(err)
	}
	if strings.TrimSpace(string(raw)) == "null" {
		return req, internal(stdErrors.New("request body must be a JSON object"))
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		return req, internal(err)
	}
	return req, nil
}

// Identify validates req and makes exactly one downstream call. The returned
// error is always a *Failure.
func (s *Service) Identify(ctx context.Context, req IdentificationRequest) (*Reply, error) {
	if req.APIKey == "" || !strings.HasPrefix(req.APIKey, s.keyPrefix) {
		return nil, unauthorized()
	}
	if req.ImageBase64 == "" || req.ImageMime == "" {
		return nil, missingImage()
	}
	if s.validator != nil {
		result := s.validator.ValidateBase64(image.Payload{Data: req.ImageBase64, MediaType: req.ImageMime})
		if !result.IsValid {
			s.logger.WarnTag("Relay", "image rejected: %v", result.Error)
			return nil, &Failure{Kind: KindBadRequest, Status: http.StatusBadRequest, Message: MessageMissingImage, Cause: result.Error}
		}
	}

	ctx, span := observability.StartSpan(ctx, "relay", "downstream")
	span.Set("media_type", req.ImageMime)
	start := time.Now()
	resp, err := s.downstream.Identify(ctx, req.APIKey, req.ImageMime, req.ImageBase64)
	if err != nil {
		span.End(err)
		return nil, internal(err)
	}
	span.SetStatus(resp.Status)
	span.End(nil)
	s.logger.InfoTag("Relay", "downstream status=%d duration=%s", resp.Status, time.Since(start))
	observability.RecordMetric(ctx, "relay.downstream", 1, map[string]string{"status": strconv.Itoa(resp.Status), "media_type": req.ImageMime})

	if !resp.OK() {
		message := ""
		if gjson.ValidBytes(resp.Body) {
			message = gjson.GetBytes(resp.Body, "error.message").String()
		}
		return nil, downstream(resp.Status, message)
	}

	if !gjson.ValidBytes(resp.Body) {
		var decoded any
		err := json.Unmarshal(resp.Body, &decoded)
		if err == nil {
			err = stdErrors.New("invalid JSON from downstream")
		}
		return nil, internal(err)
	}
	return jsonReply(http.StatusOK, resp.Body), nil
}

func (s *Service) fail(err error) *Reply {
	var failure *Failure
	if !stdErrors.As(err, &failure) {
		failure = internal(err)
	}
	if failure.Kind == KindInternal {
		s.logger.ErrorTag("Relay", "request failed: %v", failure.Cause)
	}
	return failure.Reply()
}
