package authapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sven3270350/Home-Entergy-Test/internal/auth"
	"github.com/sven3270350/Home-Entergy-Test/internal/users"
	apperrors "github.com/sven3270350/Home-Entergy-Test/pkg/errors"
)

type Server struct {
	store     *users.Store
	tokens    *TokenService
	jwtSecret string
}

func New(store *users.Store, tokens *TokenService, jwtSecret string) *Server {
	return &Server{store: store, tokens: tokens, jwtSecret: jwtSecret}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	r.Post("/api/auth/register", s.handleRegister)
	r.Post("/api/auth/login", s.handleLogin)
	r.Post("/api/auth/refresh", s.handleRefresh)
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(s.jwtSecret))
		r.Get("/api/auth/me", s.handleMe)
	})
	return r
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

type userResponse struct {
	ID       int64  `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name,omitempty"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperrors.WriteError(w, apperrors.BadRequest("invalid request body"))
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		apperrors.WriteError(w, apperrors.BadRequest("email and password are required"))
		return
	}

	u, err := s.store.Create(r.Context(), req.Email, req.FullName, req.Password)
	if errors.Is(err, users.ErrEmailTaken) {
		apperrors.WriteError(w, apperrors.Conflict("email already registered"))
		return
	}
	if err != nil {
		slog.Error("user create failed", "error", err)
		apperrors.WriteError(w, apperrors.InternalServerError("failed to create user", err))
		return
	}
	writeJSON(w, http.StatusCreated, userResponse{ID: u.ID, Email: u.Email, FullName: u.FullName})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperrors.WriteError(w, apperrors.BadRequest("invalid request body"))
		return
	}

	u, err := s.store.Authenticate(r.Context(), strings.TrimSpace(req.Email), req.Password)
	if errors.Is(err, users.ErrInvalidCredentials) {
		apperrors.WriteError(w, apperrors.Unauthorized("incorrect email or password"))
		return
	}
	if err != nil {
		slog.Error("login failed", "error", err)
		apperrors.WriteError(w, apperrors.InternalServerError("failed to log in", err))
		return
	}

	s.writeTokens(w, r, u)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		apperrors.WriteError(w, apperrors.BadRequest("refresh_token is required"))
		return
	}

	email, err := s.tokens.RotateRefreshToken(r.Context(), req.RefreshToken)
	if errors.Is(err, ErrRefreshUnavailable) {
		apperrors.WriteError(w, apperrors.NewAppError(http.StatusServiceUnavailable, "refresh tokens not available", nil))
		return
	}
	if err != nil {
		apperrors.WriteError(w, apperrors.Unauthorized("invalid or expired refresh token"))
		return
	}

	u, err := s.store.GetByEmail(r.Context(), email)
	if err != nil {
		apperrors.WriteError(w, apperrors.Unauthorized("invalid or expired refresh token"))
		return
	}
	s.writeTokens(w, r, u)
}

func (s *Server) writeTokens(w http.ResponseWriter, r *http.Request, u *users.User) {
	access, err := s.tokens.IssueAccessToken(u)
	if err != nil {
		slog.Error("access token issue failed", "error", err)
		apperrors.WriteError(w, apperrors.InternalServerError("failed to issue token", err))
		return
	}
	resp := tokenResponse{AccessToken: access, TokenType: "bearer"}
	if refresh, err := s.tokens.IssueRefreshToken(r.Context(), u.Email); err == nil {
		resp.RefreshToken = refresh
	} else if !errors.Is(err, ErrRefreshUnavailable) {
		slog.Warn("refresh token issue failed", "error", err)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetClaims(r.Context())
	u, err := s.store.GetByEmail(r.Context(), claims.Subject)
	if err != nil {
		apperrors.WriteError(w, apperrors.NotFound("user not found"))
		return
	}
	writeJSON(w, http.StatusOK, userResponse{ID: u.ID, Email: u.Email, FullName: u.FullName})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
