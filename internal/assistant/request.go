package assistant

import (
	"strings"
	"time"

	"github.com/google/uuid"

	product "github.com/angelmondragon/medfarma-backend/internal/products"
	pkgerrors "github.com/angelmondragon/medfarma-backend/pkg/errors"
)

// ChatRequest is the raw chat payload. Message stays untyped so a non-string value
// is reported as a validation error instead of a decode failure.
type ChatRequest struct {
	Message any          `json:"message"`
	Context *ChatContext `json:"context,omitempty"`
}

// ChatContext narrows the catalog and optionally adds client data.
type ChatContext struct {
	ProductID      string `json:"productoId,omitempty"`
	Category       string `json:"categoria,omitempty"`
	IncludeClients *bool  `json:"includeClients,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
}

// ChatResponse is returned for a successful exchange.
type ChatResponse struct {
	Response       string    `json:"response"`
	ConversationID string    `json:"conversation_id"`
	Timestamp      time.Time `json:"timestamp"`
}

// StatusView reports whether the assistant can serve requests.
type StatusView struct {
	Service string `json:"service"`
	Status  string `json:"status"`
	Model   string `json:"model"`
	Version string `json:"version"`
}

type chatInput struct {
	message        string
	scope          product.ContextScope
	includeClients bool
	conversationID string
}

func parseChatRequest(req ChatRequest) (chatInput, error) {
	raw, ok := req.Message.(string)
	if !ok {
		return chatInput{}, invalidMessage()
	}
	message := strings.TrimSpace(raw)
	if message == "" {
		return chatInput{}, invalidMessage()
	}

	in := chatInput{message: message}
	if req.Context == nil {
		return in, nil
	}

	c := req.Context
	if id := strings.TrimSpace(c.ProductID); id != "" {
		parsed, err := uuid.Parse(id)
		if err != nil {
			return chatInput{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid chat context").
				WithDetails(map[string]string{"productoId": "must be a valid uuid"})
		}
		in.scope.ProductID = &parsed
	}
	in.scope.Category = strings.TrimSpace(c.Category)
	in.includeClients = c.IncludeClients != nil && *c.IncludeClients
	in.conversationID = strings.TrimSpace(c.ConversationID)
	return in, nil
}

func invalidMessage() error {
	return pkgerrors.New(pkgerrors.CodeValidation, "invalid message").
		WithDetails(map[string]string{"message": "must be a non-empty string"})
}
