package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"sampleflow/internal/adapters/exports"
	"sampleflow/internal/blob"
	"sampleflow/pkg/domain"
)

const maxBody = 1 << 20

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error      string             `json:"error"`
	Field      string             `json:"field,omitempty"`
	Violations []domain.Violation `json:"violations,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	body := errorBody{Error: err.Error()}
	var (
		validation domain.ValidationError
		guard      domain.GuardError
		notFound   domain.ErrNotFound
	)
	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &validation):
		status = http.StatusBadRequest
		body.Field = validation.Field
	case errors.As(err, &guard):
		status = http.StatusConflict
		body.Violations = guard.Result.Violations
	case errors.As(err, &notFound),
		errors.Is(err, exports.ErrNotFound),
		errors.Is(err, blob.ErrNotFound),
		errors.Is(err, errUnknownRoute):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrUndoEmpty):
		status = http.StatusConflict
	case errors.Is(err, exports.ErrQueueFull):
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, body)
}

var errUnknownRoute = errors.New("not found")

// decodeJSON reads one JSON object, rejecting unknown fields.
func decodeJSON(r io.Reader, v any) error {
	dec := json.NewDecoder(io.LimitReader(r, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return domain.ValidationError{Field: "body", Reason: fmt.Sprintf("malformed JSON: %v", err)}
	}
	return nil
}
