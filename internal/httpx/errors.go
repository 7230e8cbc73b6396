package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pantypost/order-sync/internal/address"
	"github.com/pantypost/order-sync/internal/negotiation"
	"github.com/pantypost/order-sync/internal/orders"
	"github.com/pantypost/order-sync/internal/session"
	"github.com/pantypost/order-sync/internal/store"
)

type errorBody struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg})
}

// statusOf maps domain errors onto HTTP codes. Transport failures are the only
// retryable class.
func statusOf(err error) (int, bool) {
	var te *negotiation.TransitionError
	switch {
	case errors.Is(err, orders.ErrTransport):
		return http.StatusBadGateway, true
	case errors.Is(err, session.ErrInactive),
		errors.Is(err, address.ErrInvalidOrder),
		errors.Is(err, negotiation.ErrNotFound):
		return http.StatusNotFound, false
	case errors.Is(err, negotiation.ErrNotParticipant):
		return http.StatusForbidden, false
	case errors.Is(err, address.ErrIncompleteAddress),
		errors.Is(err, negotiation.ErrInvalidEdit),
		errors.Is(err, store.ErrNoValidOrders),
		errors.Is(err, session.ErrNoUser):
		return http.StatusUnprocessableEntity, false
	case errors.Is(err, negotiation.ErrNotYourTurn),
		errors.Is(err, negotiation.ErrTerminal),
		errors.Is(err, negotiation.ErrConflict),
		errors.Is(err, address.ErrNotPersisted),
		errors.Is(err, session.ErrClosed),
		errors.As(err, &te):
		return http.StatusConflict, false
	}
	return http.StatusInternalServerError, false
}

func writeError(w http.ResponseWriter, err error) {
	code, retry := statusOf(err)
	writeJSON(w, code, errorBody{Error: err.Error(), Retryable: retry})
}
