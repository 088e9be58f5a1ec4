package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/MrEthical07/authkit"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Timestamp time.Time `json:"timestamp"`
	Status    int       `json:"status"`
	Path      string    `json:"path"`
	Errors    []string  `json:"errors"`
}

// StatusFor maps an engine error to an HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, authkit.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, authkit.ErrInvalidCredentials),
		errors.Is(err, authkit.ErrUnauthorized),
		errors.Is(err, authkit.ErrTokenExpired),
		errors.Is(err, authkit.ErrTokenMalformed),
		errors.Is(err, authkit.ErrTokenUnsupported),
		errors.Is(err, authkit.ErrTokenInvalid),
		errors.Is(err, authkit.ErrRefreshTokenNotFound),
		errors.Is(err, authkit.ErrRefreshTokenExpired):
		return http.StatusUnauthorized
	case errors.Is(err, authkit.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, authkit.ErrDuplicateUser):
		return http.StatusConflict
	case errors.Is(err, authkit.ErrExchangeFailed),
		errors.Is(err, authkit.ErrIdentityFetchFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// messagesFor returns the client-facing messages for err. Internal errors
// are not echoed.
func messagesFor(status int, err error) []string {
	var verr *authkit.ValidationError
	if errors.As(err, &verr) && len(verr.Problems) > 0 {
		return append([]string(nil), verr.Problems...)
	}
	switch {
	case status == http.StatusInternalServerError:
		return []string{"internal server error"}
	case errors.Is(err, authkit.ErrExchangeFailed):
		return []string{authkit.ErrExchangeFailed.Error()}
	case errors.Is(err, authkit.ErrIdentityFetchFailed):
		return []string{authkit.ErrIdentityFetchFailed.Error()}
	}
	return []string{err.Error()}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	switch status {
	case http.StatusInternalServerError:
		h.logger.Error("request failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	case http.StatusBadGateway:
		h.logger.Warn("identity provider call failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
	h.writeStatus(w, r, status, messagesFor(status, err)...)
}

func (h *Handler) writeStatus(w http.ResponseWriter, r *http.Request, status int, messages ...string) {
	writeJSON(w, status, ErrorBody{
		Timestamp: h.now().UTC(),
		Status:    status,
		Path:      r.URL.Path,
		Errors:    messages,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
