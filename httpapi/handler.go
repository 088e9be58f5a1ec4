package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MrEthical07/authkit"
	"github.com/MrEthical07/authkit/middleware"
	"github.com/go-chi/chi/v5"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 64 << 10

// AuthService is the engine surface the handlers use. [authkit.Engine]
// implements it.
type AuthService interface {
	Login(ctx context.Context, username, password string) (authkit.TokenPair, error)
	Refresh(ctx context.Context, username, refreshToken string) (authkit.TokenPair, error)
	OutboundLogin(ctx context.Context, code string) (authkit.TokenPair, error)
	Register(ctx context.Context, req authkit.RegisterRequest) (authkit.PublicUser, error)
	CheckUniqueEmail(ctx context.Context, email string) (bool, error)
	CheckUniqueUsername(ctx context.Context, username string) (bool, error)
	Validate(token string) (*authkit.AuthResult, error)
	Profile(ctx context.Context, token string) (authkit.PublicUser, error)
}

// Handler holds the HTTP handlers for the auth and user routes.
type Handler struct {
	service AuthService
	logger  *slog.Logger
	now     func() time.Time
}

// NewHandler creates a Handler. A nil logger discards.
func NewHandler(service AuthService, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{service: service, logger: logger, now: time.Now}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	Username     string `json:"username"`
	RefreshToken string `json:"refreshToken"`
}

// Login handles POST /auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}
	var problems []string
	if strings.TrimSpace(req.Username) == "" {
		problems = append(problems, "username is required")
	}
	if req.Password == "" {
		problems = append(problems, "password is required")
	}
	if len(problems) > 0 {
		h.writeStatus(w, r, http.StatusBadRequest, problems...)
		return
	}

	pair, err := h.service.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

// RefreshToken handles POST /auth/refresh-token.
func (h *Handler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Username == "" || req.RefreshToken == "" {
		h.writeStatus(w, r, http.StatusBadRequest, "username and refreshToken are required")
		return
	}

	pair, err := h.service.Refresh(r.Context(), req.Username, req.RefreshToken)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

// OutboundAuthentication handles POST /auth/outbound/authentication?code=.
func (h *Handler) OutboundAuthentication(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		h.writeStatus(w, r, http.StatusBadRequest, "code is required")
		return
	}

	pair, err := h.service.OutboundLogin(r.Context(), code)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

// Register handles POST /user/register.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req authkit.RegisterRequest
	if !h.decode(w, r, &req) {
		return
	}

	user, err := h.service.Register(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// CheckUniqueEmail handles GET /user/check-unique-email/{email}.
func (h *Handler) CheckUniqueEmail(w http.ResponseWriter, r *http.Request) {
	unique, err := h.service.CheckUniqueEmail(r.Context(), chi.URLParam(r, "email"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, unique)
}

// CheckUniqueUsername handles GET /user/check-unique-username/{username}.
func (h *Handler) CheckUniqueUsername(w http.ResponseWriter, r *http.Request) {
	unique, err := h.service.CheckUniqueUsername(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, unique)
}

// Profile handles GET /user/profile. It runs behind middleware.Guard.
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	token, ok := middleware.BearerTokenFromContext(r.Context())
	if !ok {
		h.writeError(w, r, authkit.ErrTokenInvalid)
		return
	}

	user, err := h.service.Profile(r.Context(), token)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// decode reads a JSON body into v and writes a 400 on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		msg := "request body must be valid JSON"
		if errors.Is(err, io.EOF) {
			msg = "request body is required"
		}
		h.writeStatus(w, r, http.StatusBadRequest, msg)
		return false
	}
	return true
}
