package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/medfarma-backend/api/middleware"
	pkgerrors "github.com/angelmondragon/medfarma-backend/pkg/errors"
)

func actorID(r *http.Request) (uuid.UUID, error) {
	id, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	return id, nil
}
