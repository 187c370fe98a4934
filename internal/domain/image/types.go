package image

// Payload is a base64 image as received by the relay.
type Payload struct {
	Data      string
	MediaType string
}

// ValidationResult captures the outcome of validation.
type ValidationResult struct {
	IsValid      bool
	Format       string
	Width        int
	Height       int
	FileSize     int64
	Error        error
	SecurityRisk string
}
