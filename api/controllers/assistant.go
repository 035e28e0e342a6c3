package controllers

import (
	"net/http"

	"github.com/angelmondragon/medfarma-backend/api/responses"
	"github.com/angelmondragon/medfarma-backend/api/validators"
	"github.com/angelmondragon/medfarma-backend/internal/assistant"
	pkgerrors "github.com/angelmondragon/medfarma-backend/pkg/errors"
	"github.com/angelmondragon/medfarma-backend/pkg/logger"
)

// AssistantChat answers a seller question against the live catalog.
func AssistantChat(svc assistant.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "assistant service unavailable"))
			return
		}

		userID, err := actorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req assistant.ChatRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp, err := svc.Chat(r.Context(), userID, req)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, resp)
	}
}

// AssistantStatus reports whether the generation backend is configured.
func AssistantStatus(svc assistant.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "assistant service unavailable"))
			return
		}
		responses.WriteSuccess(w, svc.Status())
	}
}

func AssistantSuggestions(svc assistant.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "assistant service unavailable"))
			return
		}
		responses.WriteSuccess(w, map[string][]string{"questions": svc.SuggestedQuestions()})
	}
}

func AssistantHistory(svc assistant.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "assistant service unavailable"))
			return
		}

		userID, err := actorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		entries, err := svc.History(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, entries)
	}
}
