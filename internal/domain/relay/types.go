package relay

import (
	"encoding/json"
	"net/http"
)

// IdentificationRequest is the browser payload. It is never persisted.
type IdentificationRequest struct {
	ImageBase64 string `json:"imageBase64"`
	ImageMime   string `json:"imageMime"`
	APIKey      string `json:"apiKey"`
}

// Reply is the relay's HTTP answer.
type Reply struct {
	Status      int
	ContentType string
	Body        []byte
}

// errorBody is the JSON error envelope returned to the browser.
type errorBody struct {
	Error string `json:"error"`
}

func jsonReply(status int, body []byte) *Reply {
	return &Reply{Status: status, ContentType: "application/json", Body: body}
}

func errorReply(status int, message string) *Reply {
	body, err := json.Marshal(errorBody{Error: message})
	if err != nil {
		body = []byte(`{"error":"Server error"}`)
	}
	return jsonReply(status, body)
}

func methodNotAllowedReply() *Reply {
	return &Reply{
		Status:      http.StatusMethodNotAllowed,
		ContentType: "text/plain; charset=utf-8",
		Body:        []byte(MessageMethodNotAllowed),
	}
}

// messagesRequest is the downstream Messages API body.
type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	Messages  []message `json:"messages"`
}

type message struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type   string       `json:"type"`
	Source *imageSource `json:"source,omitempty"`
	Text   string       `json:"text,omitempty"`
}

type imageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}
