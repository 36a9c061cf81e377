package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"trustgate/pkg/domain"
)

func NewRequestID() string { return "req_" + uuid.NewString() }

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func ReadJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func WriteError(w http.ResponseWriter, status int, code, message string, details any) {
	resp := map[string]any{
		"request_id": NewRequestID(),
		"error": map[string]any{
			"code": code, "message": message, "details": details,
		},
	}
	WriteJSON(w, status, resp)
}

// WriteDomainError maps the error taxonomy onto HTTP statuses. Unknown
// errors become a 500 with a generic message; internal detail stays out of
// the response body.
func WriteDomainError(w http.ResponseWriter, err error) {
	var inc *domain.ChecksIncompleteError
	if errors.As(err, &inc) {
		err = inc.Domain()
	}
	var derr *domain.Error
	if !errors.As(err, &derr) {
		WriteError(w, 500, "INTERNAL", "internal error", nil)
		return
	}
	status := 500
	switch derr.Kind {
	case domain.KindValidation:
		status = 400
	case domain.KindNotFound:
		status = 404
	case domain.KindStateConflict:
		status = 409
	case domain.KindExpired:
		status = 410
	case domain.KindPermissionDenied:
		status = 403
	case domain.KindRateLimited:
		status = 429
	}
	WriteError(w, status, derr.Code, derr.Message, derr.Details)
}
