package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	product "github.com/angelmondragon/medfarma-backend/internal/products"
	"github.com/angelmondragon/medfarma-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/medfarma-backend/pkg/errors"
	"github.com/angelmondragon/medfarma-backend/pkg/logger"
	"github.com/angelmondragon/medfarma-backend/pkg/metrics"
)

const (
	serviceName       = "AI Chat Assistant"
	serviceVersion    = "1.0.0"
	statusConfigured  = "configured"
	statusMissingKey  = "missing_api_key"
	defaultProducts   = 50
	defaultClients    = 20
	defaultLogTimeout = 5 * time.Second
	historyLimit      = 20
	failureMessage    = "No pude procesar tu consulta. Por favor, intenta de nuevo."
)

// Service runs the sales assistant.
type Service interface {
	Chat(ctx context.Context, userID uuid.UUID, req ChatRequest) (*ChatResponse, error)
	History(ctx context.Context, userID uuid.UUID) ([]HistoryEntry, error)
	Status() StatusView
	SuggestedQuestions() []string
}

// HistoryEntry is one logged exchange.
type HistoryEntry struct {
	ID          uuid.UUID `json:"id"`
	UserMessage string    `json:"user_message"`
	Response    string    `json:"response"`
	CreatedAt   time.Time `json:"created_at"`
}

// Generator produces a completion for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Model() string
}

type productSource interface {
	ListActiveForContext(ctx context.Context, scope product.ContextScope, limit int) ([]models.Product, error)
}

type clientSource interface {
	ListApprovedClients(ctx context.Context, limit int) ([]models.User, error)
}

type conversationStore interface {
	Create(ctx context.Context, entry *models.ConversationLog) error
	RecentForUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.ConversationLog, error)
}

// ServiceParams groups the dependencies for the assistant.
type ServiceParams struct {
	Products      productSource
	Clients       clientSource
	Conversations conversationStore
	// Generator may be nil when no API key is configured; chats then fail with a dependency error.
	Generator   Generator
	Model       string
	MaxProducts int
	MaxClients  int
	LogTimeout  time.Duration
	Metrics     *metrics.AssistantMetrics
	Logger      *logger.Logger
}

type service struct {
	products      productSource
	clients       clientSource
	conversations conversationStore
	generator     Generator
	model         string
	maxProducts   int
	maxClients    int
	logTimeout    time.Duration
	metrics       *metrics.AssistantMetrics
	logg          *logger.Logger
	now           func() time.Time
	newID         func() uuid.UUID
	// logged is signalled after each detached conversation write; tests hook into it.
	logged func(error)
}

// NewService builds an assistant service backed by the provided stack.
func NewService(params ServiceParams) (Service, error) {
	if params.Products == nil {
		return nil, fmt.Errorf("product source required")
	}
	if params.Clients == nil {
		return nil, fmt.Errorf("client source required")
	}
	if params.Conversations == nil {
		return nil, fmt.Errorf("conversation store required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	maxProducts := params.MaxProducts
	if maxProducts <= 0 {
		maxProducts = defaultProducts
	}
	maxClients := params.MaxClients
	if maxClients <= 0 {
		maxClients = defaultClients
	}
	logTimeout := params.LogTimeout
	if logTimeout <= 0 {
		logTimeout = defaultLogTimeout
	}
	model := params.Model
	if params.Generator != nil && params.Generator.Model() != "" {
		model = params.Generator.Model()
	}
	return &service{
		products:      params.Products,
		clients:       params.Clients,
		conversations: params.Conversations,
		generator:     params.Generator,
		model:         model,
		maxProducts:   maxProducts,
		maxClients:    maxClients,
		logTimeout:    logTimeout,
		metrics:       params.Metrics,
		logg:          params.Logger,
		now:           time.Now,
		newID:         uuid.New,
	}, nil
}

func (s *service) Chat(ctx context.Context, userID uuid.UUID, req ChatRequest) (*ChatResponse, error) {
	in, err := parseChatRequest(req)
	if err != nil {
		s.metrics.IncResult(metrics.OutcomeInvalid)
		return nil, err
	}
	if s.generator == nil {
		s.metrics.IncResult(metrics.OutcomeDependency)
		s.logg.Warn(ctx, "assistant.not_configured")
		return nil, pkgerrors.New(pkgerrors.CodeDependency, failureMessage)
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"user_id":         userID.String(),
		"include_clients": in.includeClients,
	})

	products, err := s.products.ListActiveForContext(ctx, in.scope, s.maxProducts)
	if err != nil {
		s.metrics.IncResult(metrics.OutcomeDependency)
		s.logg.Error(ctx, "assistant.load_products_failed", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, failureMessage)
	}

	var clients []models.User
	if in.includeClients {
		clients, err = s.clients.ListApprovedClients(ctx, s.maxClients)
		if err != nil {
			s.metrics.IncResult(metrics.OutcomeDependency)
			s.logg.Error(ctx, "assistant.load_clients_failed", err)
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, failureMessage)
		}
	}
	s.metrics.ObserveContext(len(products), len(clients))

	prompt := BuildPrompt(BuildProductContext(products), BuildClientContext(clients), in.message)

	started := s.now()
	text, err := s.generator.Generate(ctx, prompt)
	s.metrics.ObserveGeneration(s.model, s.now().Sub(started))
	if err != nil {
		s.metrics.IncResult(metrics.OutcomeGeneration)
		s.logg.Error(ctx, "assistant.generation_failed", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeGenerationFailure, err, failureMessage)
	}

	conversationID := in.conversationID
	if conversationID == "" {
		conversationID = s.newID().String()
	}

	s.logConversation(ctx, userID, in.message, text, len(products), len(clients), conversationID)
	s.metrics.IncResult(metrics.OutcomeSuccess)

	return &ChatResponse{
		Response:       text,
		ConversationID: conversationID,
		Timestamp:      s.now().UTC(),
	}, nil
}

type conversationContext struct {
	ProductsCount  int    `json:"products_count"`
	ClientsCount   int    `json:"clients_count"`
	ConversationID string `json:"conversation_id"`
}

// logConversation writes the exchange on a detached goroutine. Failures are logged only.
func (s *service) logConversation(ctx context.Context, userID uuid.UUID, message, response string, products, clients int, conversationID string) {
	raw, err := json.Marshal(conversationContext{
		ProductsCount:  products,
		ClientsCount:   clients,
		ConversationID: conversationID,
	})
	if err != nil {
		s.logg.Error(ctx, "assistant.conversation_context_failed", err)
		return
	}
	entry := &models.ConversationLog{
		UserID:      userID,
		UserMessage: message,
		Response:    response,
		Context:     datatypes.JSON(raw),
	}

	detached := context.WithoutCancel(ctx)
	go func() {
		writeCtx, cancel := context.WithTimeout(detached, s.logTimeout)
		defer cancel()
		err := s.conversations.Create(writeCtx, entry)
		if err != nil {
			s.logg.Error(writeCtx, "assistant.conversation_log_failed", err)
		}
		if s.logged != nil {
			s.logged(err)
		}
	}()
}

func (s *service) History(ctx context.Context, userID uuid.UUID) ([]HistoryEntry, error) {
	rows, err := s.conversations.RecentForUser(ctx, userID, historyLimit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load conversation history")
	}
	out := make([]HistoryEntry, 0, len(rows))
	for _, row := range rows {
		out = append(out, HistoryEntry{
			ID:          row.ID,
			UserMessage: row.UserMessage,
			Response:    row.Response,
			CreatedAt:   row.CreatedAt,
		})
	}
	return out, nil
}

func (s *service) Status() StatusView {
	status := statusConfigured
	if s.generator == nil {
		status = statusMissingKey
	}
	return StatusView{
		Service: serviceName,
		Status:  status,
		Model:   s.model,
		Version: serviceVersion,
	}
}

func (s *service) SuggestedQuestions() []string {
	out := make([]string, len(SuggestedQuestions))
	copy(out, SuggestedQuestions)
	return out
}
