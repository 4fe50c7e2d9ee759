package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"

	"github.com/healingspace/healingspace/internal/apperrors"
	"github.com/healingspace/healingspace/internal/logger"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Error string `json:"error"`
}

// writeJSON writes payload with the given status code.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// errorWriter renders errors as {"error": "..."} with the status of their
// code. Internal errors keep their cause in the message.
func errorWriter(log *slog.Logger) func(http.ResponseWriter, *http.Request, error) {
	return func(w http.ResponseWriter, r *http.Request, err error) {
		code := apperrors.CodeOf(err)
		status := code.HTTPStatus()
		message := err.Error()

		var appErr *apperrors.AppError
		if errors.As(err, &appErr) && code != apperrors.CodeInternal {
			message = appErr.Message
		}

		if status >= http.StatusInternalServerError {
			log.ErrorContext(r.Context(), "Request failed", "path", r.URL.Path, "error", err,
				"request_id", logger.RequestIDFromContext(r.Context()))
		}
		writeJSON(w, status, errorBody{Error: message})
	}
}

// decodeJSON reads a JSON object body into dst.
func decodeJSON(r *http.Request, dst any) error {
	present, err := decodeOptionalJSON(r, dst)
	if err != nil {
		return err
	}
	if !present {
		return apperrors.InvalidArg("request body is required")
	}
	return nil
}

// decodeOptionalJSON reads a JSON object body into dst and reports whether
// one was sent. An absent or blank body is not an error, whatever the
// Content-Length says.
func decodeOptionalJSON(r *http.Request, dst any) (bool, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return false, nil
	}
	body := http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return false, apperrors.InvalidArg("request body is too large")
		}
		return false, apperrors.InvalidArg(fmt.Sprintf("invalid JSON body: %v", err))
	}
	return true, nil
}

// queryInt parses an optional integer query parameter, returning 0 when absent.
func queryInt(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.InvalidArg(fmt.Sprintf("%s must be an integer", name))
	}
	return v, nil
}

// queryBool parses an optional boolean query parameter.
func queryBool(r *http.Request, name string) (bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, apperrors.InvalidArg(fmt.Sprintf("%s must be true or false", name))
	}
	return v, nil
}

// pathID parses a positive integer path value.
func pathID(r *http.Request, name string) (int64, error) {
	v, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || v <= 0 {
		return 0, apperrors.InvalidArg(fmt.Sprintf("%s must be a positive integer", name))
	}
	return v, nil
}

// recoverPanic converts panics into 500 responses.
func recoverPanic(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if recovered := recover(); recovered != nil {
					log.ErrorContext(r.Context(), "Panic recovered",
						"method", r.Method,
						"path", r.URL.Path,
						"request_id", logger.RequestIDFromContext(r.Context()),
						"panic", recovered,
						"stack", string(debug.Stack()))
					writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal server error"})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
