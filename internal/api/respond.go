package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/hackgods/therapy-clinic-scheduling/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

func statusForKind(kind apperr.Kind) int {
	switch kind {
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindValidation:
		return http.StatusUnprocessableEntity
	case apperr.KindGatewayDeclined:
		return http.StatusPaymentRequired
	default:
		return http.StatusServiceUnavailable
	}
}

// writeServiceError maps a service failure to its HTTP status. Store and
// infrastructure causes are logged, never echoed to the client.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := statusForKind(kind)

	if kind == apperr.KindPersistence {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, status, apperr.CodeOf(err), "temporary storage failure, please retry")
		return
	}

	details := err.Error()
	var ae *apperr.Error
	if errors.As(err, &ae) {
		details = ae.Message
	}
	writeError(w, status, apperr.CodeOf(err), details)
}
