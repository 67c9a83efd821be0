package assistant

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/sven3270350/Home-Entergy-Test/internal/auth"
	apperrors "github.com/sven3270350/Home-Entergy-Test/pkg/errors"
)

type Server struct {
	assistant *Assistant
	jwtSecret string
}

func NewServer(a *Assistant, jwtSecret string) *Server {
	return &Server{assistant: a, jwtSecret: jwtSecret}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", s.handleHealth)
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(s.jwtSecret))
		r.Post("/api/chat/query", s.handleQuery)
		r.Get("/api/chat/ws", s.handleWebSocket)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	available, _ := s.assistant.llm.Available(ctx)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "ok",
		"service":          "assistant-service",
		"model":            s.assistant.llm.Model(),
		"ollama_available": available,
	})
}

type queryRequest struct {
	Query string `json:"query"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Query) == "" {
		apperrors.WriteError(w, apperrors.BadRequest("query is required"))
		return
	}

	answer, err := s.assistant.ProcessQuery(r.Context(), bearerToken(r), req.Query)
	if err != nil {
		slog.Error("query processing failed", "error", err)
		apperrors.WriteError(w, apperrors.InternalServerError("failed to process query", err))
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type wsMessage struct {
	Type    string  `json:"type"`
	Content string  `json:"content,omitempty"`
	Answer  *Answer `json:"answer,omitempty"`
}

// handleWebSocket runs an interactive chat loop. Each "message" frame is
// answered with a "typing" frame followed by an "answer" or "error" frame.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	for {
		_, msgBytes, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Warn("websocket read failed", "error", err)
			}
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(msgBytes, &msg); err != nil || msg.Type != "message" {
			_ = conn.WriteJSON(wsMessage{Type: "error", Content: "invalid message format"})
			continue
		}
		if strings.TrimSpace(msg.Content) == "" {
			continue
		}

		_ = conn.WriteJSON(wsMessage{Type: "typing"})

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		answer, err := s.assistant.ProcessQuery(ctx, token, msg.Content)
		cancel()
		if err != nil {
			slog.Error("query processing failed", "error", err)
			_ = conn.WriteJSON(wsMessage{Type: "error", Content: "failed to process query"})
			continue
		}
		_ = conn.WriteJSON(wsMessage{Type: "answer", Content: answer.Reply, Answer: answer})
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
