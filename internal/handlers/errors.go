package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"examhall/internal/service"
	"examhall/internal/validation"
)

const maxBodyBytes = 1 << 20

type dataEnvelope struct {
	Data interface{} `json:"data"`
}

type errorBody struct {
	Kind      service.Kind            `json:"kind"`
	Message   string                  `json:"message"`
	Fields    []validation.FieldError `json:"fields,omitempty"`
	Retryable bool                    `json:"retryable,omitempty"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

// statusForKind maps an error kind onto its HTTP status
func statusForKind(kind service.Kind) int {
	switch kind {
	case service.KindAuthRequired:
		return http.StatusUnauthorized
	case service.KindForbidden:
		return http.StatusForbidden
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindInvalidState, service.KindSessionFull, service.KindConflict:
		return http.StatusConflict
	case service.KindValidation:
		return http.StatusUnprocessableEntity
	case service.KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondWithData(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, status, dataEnvelope{Data: data})
}

// respondWithError writes err as an error envelope. Internal failures are
// logged with their cause; the cause never reaches the client.
func respondWithError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	se := service.AsError(err)
	status := statusForKind(se.Kind)

	if status == http.StatusInternalServerError {
		logger.Error(se.Message, "method", r.Method, "path", r.URL.Path, "error", err)
	}

	writeJSON(w, status, errorEnvelope{Error: errorBody{
		Kind:      se.Kind,
		Message:   se.Message,
		Fields:    se.Fields,
		Retryable: se.Retryable(),
	}})
}

// decodeJSON reads a single JSON value from the request body into v. An
// empty body leaves v unchanged; anything after the value is rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	err := dec.Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err == nil && dec.More() {
		err = errors.New("unexpected data after the JSON value")
	}
	if err != nil {
		var errs validation.Errors
		errs.Add("body", "invalid JSON body: %v", err)
		return &service.Error{Kind: service.KindValidation, Message: "invalid request body", Fields: errs}
	}
	return nil
}
