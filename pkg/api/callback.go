package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/openfroyo/catalogd/pkg/engine"
)

// Resolver applies executor callbacks. *engine.Processor implements it.
type Resolver interface {
	Resolve(ctx context.Context, cb *engine.Callback) error
}

// CallbackHandler receives executor callbacks.
//
// Malformed payloads are answered with 400. Integrity faults, such as a callback for a work
// item that no longer exists, are logged and acknowledged with 200 so the executor does not
// keep re-sending them.
type CallbackHandler struct {
	resolver Resolver
	validate *validator.Validate
	logger   zerolog.Logger
}

// NewCallbackHandler creates a callback handler.
func NewCallbackHandler(resolver Resolver, logger zerolog.Logger) *CallbackHandler {
	return &CallbackHandler{
		resolver: resolver,
		validate: validator.New(),
		logger:   logger,
	}
}

// CallbackResponse is the body of every callback answer.
type CallbackResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	Code   string `json:"code,omitempty"`
}

func (h *CallbackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var cb engine.Callback
	if err := json.NewDecoder(r.Body).Decode(&cb); err != nil {
		h.logger.Warn().Err(err).Msg("Malformed callback payload")
		writeJSON(w, http.StatusBadRequest, CallbackResponse{Status: "rejected", Error: "invalid callback body"})
		return
	}
	if err := h.validate.Struct(&cb); err != nil {
		h.logger.Warn().Err(err).Str("work_item_id", cb.RequestID).Msg("Invalid callback payload")
		writeJSON(w, http.StatusBadRequest, CallbackResponse{
			Status: "rejected",
			Error:  validationMessage(err),
			Code:   engine.ErrCodeValidation,
		})
		return
	}

	// Resolution dispatches the chain continuation, which must not be cut short when the
	// executor's callback request goes away.
	err := h.resolver.Resolve(context.WithoutCancel(r.Context()), &cb)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, CallbackResponse{Status: "ok"})

	case engine.IsIntegrity(err):
		// The processor already logged and counted the fault.
		writeJSON(w, http.StatusOK, CallbackResponse{
			Status: "ignored",
			Error:  err.Error(),
			Code:   engine.ErrorCode(err),
		})

	case engine.IsValidation(err):
		writeJSON(w, http.StatusBadRequest, CallbackResponse{
			Status: "rejected",
			Error:  err.Error(),
			Code:   engine.ErrorCode(err),
		})

	default:
		h.logger.Error().Err(err).Str("work_item_id", cb.RequestID).Msg("Failed to resolve callback")
		writeJSON(w, http.StatusInternalServerError, CallbackResponse{
			Status: "error",
			Error:  err.Error(),
			Code:   engine.ErrCodeInternal,
		})
	}
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return verrs[0].Field() + " failed on \"" + verrs[0].Tag() + "\""
	}
	return err.Error()
}
