package image

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"strings"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"plantid-server-go/internal/platform/config"
	"plantid-server-go/internal/platform/logging"
)

// Validator checks that an uploaded payload is a decodable image within limits.
type Validator struct {
	config config.ImageConfig
	logger *logging.Logger
}

// NewValidator constructs a validator with the given limits.
func NewValidator(cfg config.ImageConfig, logger *logging.Logger) *Validator {
	return &Validator{config: cfg, logger: logger}
}

var imageSignatures = map[string][]byte{
	"jpeg": {0xFF, 0xD8},
	"png":  {0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A},
	"gif":  {0x47, 0x49, 0x46, 0x38},
	"webp": {0x52, 0x49, 0x46, 0x46},
}

var suspiciousSignatures = [][]byte{
	{0x4D, 0x5A},
	{0x25, 0x50, 0x44, 0x46},
	{0x50, 0x4B, 0x03, 0x04},
	{0x1F, 0x8B, 0x08},
}

// FormatFromMediaType maps "image/jpeg" to "jpeg". Unknown types yield "".
func FormatFromMediaType(mediaType string) string {
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))
	if i := strings.IndexByte(mediaType, ';'); i >= 0 {
		mediaType = strings.TrimSpace(mediaType[:i])
	}
	format, ok := strings.CutPrefix(mediaType, "image/")
	if !ok {
		return ""
	}
	if format == "jpg" || format == "pjpeg" {
		return "jpeg"
	}
	return format
}

// ValidateBase64 decodes and validates payload.
func (v *Validator) ValidateBase64(payload Payload) ValidationResult {
	if payload.Data == "" {
		return ValidationResult{Error: fmt.Errorf("missing image payload")}
	}
	raw, err := base64.StdEncoding.DecodeString(payload.Data)
	if err != nil {
		return ValidationResult{
			Error:        fmt.Errorf("decode base64: %w", err),
			SecurityRisk: "invalid base64 encoding",
		}
	}
	return v.ValidateBytes(raw, FormatFromMediaType(payload.MediaType))
}

// ValidateBytes validates raw image bytes against the declared format.
func (v *Validator) ValidateBytes(raw []byte, declaredFormat string) ValidationResult {
	result := ValidationResult{Format: declaredFormat}

	if len(raw) == 0 {
		result.Error = fmt.Errorf("empty image payload")
		return result
	}
	if v.config.MaxFileSize > 0 && int64(len(raw)) > v.config.MaxFileSize {
		result.Error = fmt.Errorf("file size exceeds limit: %d bytes (max %d bytes)", len(raw), v.config.MaxFileSize)
		result.SecurityRisk = "file too large"
		v.logger.WarnTag("Relay", "oversized image: size=%d max_size=%d", len(raw), v.config.MaxFileSize)
		return result
	}
	if !v.isFormatAllowed(declaredFormat) {
		result.Error = fmt.Errorf("unsupported format: %s", declaredFormat)
		result.SecurityRisk = "unapproved format"
		return result
	}
	for _, signature := range suspiciousSignatures {
		if bytes.HasPrefix(raw, signature) {
			result.Error = fmt.Errorf("payload is not an image")
			result.SecurityRisk = "suspicious content"
			v.logger.WarnTag("Relay", "rejected payload with signature %x", signature)
			return result
		}
	}

	cfg, actualFormat, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		result.Error = fmt.Errorf("decode image config: %w", err)
		result.SecurityRisk = "corrupted image data"
		return result
	}
	if declaredFormat != "" && actualFormat != declaredFormat {
		result.Error = fmt.Errorf("declared %s but payload is %s", declaredFormat, actualFormat)
		result.SecurityRisk = "format mismatch"
		v.logger.WarnTag("Relay", "file signature mismatch: declared=%s actual_header=%x", declaredFormat, raw[:min(len(raw), 16)])
		return result
	}
	result.Format = actualFormat

	if (v.config.MaxWidth > 0 && cfg.Width > v.config.MaxWidth) || (v.config.MaxHeight > 0 && cfg.Height > v.config.MaxHeight) {
		result.Error = fmt.Errorf("dimensions exceed limit: %dx%d (max %dx%d)",
			cfg.Width, cfg.Height, v.config.MaxWidth, v.config.MaxHeight)
		result.SecurityRisk = "dimensions too large"
		return result
	}
	if total := int64(cfg.Width) * int64(cfg.Height); v.config.MaxPixels > 0 && total > v.config.MaxPixels {
		result.Error = fmt.Errorf("pixel count exceeds limit: %d (max %d)", total, v.config.MaxPixels)
		result.SecurityRisk = "pixel count too high"
		return result
	}

	result.IsValid = true
	result.Width = cfg.Width
	result.Height = cfg.Height
	result.FileSize = int64(len(raw))
	v.logger.DebugTag("Relay", "image validated: format=%s %dx%d size=%d", result.Format, result.Width, result.Height, result.FileSize)
	return result
}

// HasSignature reports whether raw starts with the magic bytes of format.
func HasSignature(raw []byte, format string) bool {
	signature, ok := imageSignatures[strings.ToLower(format)]
	if !ok {
		return false
	}
	return bytes.HasPrefix(raw, signature)
}

func (v *Validator) isFormatAllowed(format string) bool {
	if len(v.config.AllowedFormats) == 0 {
		return true
	}
	if format == "" {
		return false
	}
	for _, allowed := range v.config.AllowedFormats {
		if strings.EqualFold(allowed, format) {
			return true
		}
	}
	return false
}
