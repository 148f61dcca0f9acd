package devauth

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/jrsteele09/transcript-portal/authapi"
	"github.com/jrsteele09/transcript-portal/internal/errors"
	"github.com/rs/zerolog/log"
)

const (
	RouteIntrospect = "/auth/introspect"
	RouteMe         = "/auth/me"

	contentTypeJSON = "application/json; charset=utf-8"
	maxBodyBytes    = 1 << 16
)

// Handler serves the auth API routes.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Register adds the auth API routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST "+authapi.RouteLogin, h.Login())
	mux.HandleFunc("POST "+authapi.RouteLogout, h.Logout())
	mux.HandleFunc("GET "+RouteIntrospect, h.Introspect())
	mux.HandleFunc("GET "+RouteMe, h.Me())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeFailure(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, authapi.Envelope{Status: false, Message: message})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// Login handles POST /auth/login.
func (h *Handler) Login() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var creds authapi.Credentials
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&creds); err != nil {
			writeFailure(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		session, err := h.service.Login(creds.Email, creds.Password)
		switch {
		case err == nil:
		case errors.Is(err, errors.ErrInvalidRequest):
			writeFailure(w, http.StatusUnprocessableEntity, "Email and password are required")
			return
		case errors.Is(err, errors.ErrInvalidCredentials):
			writeFailure(w, http.StatusUnauthorized, "Invalid email or password")
			return
		case errors.Is(err, errors.ErrUserBlocked):
			writeFailure(w, http.StatusForbidden, "Your account has been blocked")
			return
		default:
			log.Error().Err(err).Msg("dev auth login failed")
			writeFailure(w, http.StatusInternalServerError, "Internal server error")
			return
		}

		writeJSON(w, http.StatusOK, authapi.LoginResponse{
			Status:  true,
			Message: "Login successful",
			Data:    &authapi.LoginData{User: session.User.Record(), Token: session.Token},
		})
	}
}

// Logout handles POST /auth/logout.
func (h *Handler) Logout() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		if raw == "" {
			writeFailure(w, http.StatusUnauthorized, "Missing bearer token")
			return
		}
		if err := h.service.Logout(raw); err != nil {
			log.Debug().Err(err).Msg("dev auth logout rejected")
			writeFailure(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}
		writeJSON(w, http.StatusOK, authapi.Envelope{Status: true, Message: "Logged out"})
	}
}

// Introspect handles GET /auth/introspect. An invalid token is reported as
// inactive, not as an error.
func (h *Handler) Introspect() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info, err := h.service.Introspect(bearerToken(r))
		if err != nil {
			log.Debug().Err(err).Msg("dev auth introspect")
		}
		writeJSON(w, http.StatusOK, info)
	}
}

// Me handles GET /auth/me.
func (h *Handler) Me() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := h.service.User(bearerToken(r))
		if err != nil {
			writeFailure(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": true, "data": user.Record()})
	}
}
