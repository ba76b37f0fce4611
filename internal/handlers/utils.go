package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/userhub/apiserver/internal/services"
	"github.com/userhub/apiserver/internal/store"
	"github.com/userhub/apiserver/types"
)

type contextKey string

const contextActorKey contextKey = "actor"

// actorFromContext returns the authenticated user stored by RequireAuth.
func actorFromContext(ctx context.Context) (types.User, error) {
	actor, ok := ctx.Value(contextActorKey).(types.User)
	if !ok {
		return types.User{}, errors.New("missing actor")
	}
	return actor, nil
}

type ErrorResponse struct {
	Message string `json:"message"`
}

// ValidationErrorResponse is the 422 body: field names to message lists.
type ValidationErrorResponse struct {
	Errors map[string][]string `json:"errors"`
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Message: message})
}

// writeServiceError maps service and store errors onto the wire contract.
func writeServiceError(w http.ResponseWriter, err error) {
	var validation *services.ValidationError
	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusUnprocessableEntity, ValidationErrorResponse{Errors: validation.Errors})
	case errors.Is(err, services.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "Unauthenticated.")
	case errors.Is(err, services.ErrForbidden):
		writeError(w, http.StatusForbidden, "This action is unauthorized.")
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "Not found.")
	case errors.Is(err, store.ErrConflict):
		writeJSON(w, http.StatusUnprocessableEntity, ValidationErrorResponse{
			Errors: map[string][]string{"email": {"The email has already been taken."}},
		})
	default:
		writeError(w, http.StatusInternalServerError, "Server error.")
	}
}

func bearerToken(r *http.Request) (string, error) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}
