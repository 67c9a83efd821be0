package assistant

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret"

func tokenFor(t *testing.T, subject string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":     subject,
		"user_id": 1,
		"exp":     time.Now().Add(time.Hour).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestHealthReportsModel(t *testing.T) {
	s := NewServer(New(&fakeLLM{}, NewTelemetryClient("http://unused")), testSecret)
	rw := httptest.NewRecorder()
	s.Handler().ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}
	var health struct {
		Model           string `json:"model"`
		OllamaAvailable bool   `json:"ollama_available"`
	}
	if err := json.Unmarshal(rw.Body.Bytes(), &health); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if health.Model != "fake-model" || !health.OllamaAvailable {
		t.Fatalf("unexpected health payload: %+v", health)
	}
}

func TestQueryEndpoint(t *testing.T) {
	srv := fakeTelemetryServer(t)
	fake := &fakeLLM{
		intentReply: `{"device_id": "` + fridgeID + `", "period": "24h"}`,
		answerReply: "About 150 watts on average.",
	}
	s := NewServer(New(fake, NewTelemetryClient(srv.URL)), testSecret)
	h := s.Handler()

	// Unauthenticated requests are rejected before any work happens.
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, httptest.NewRequest(http.MethodPost, "/api/chat/query", bytes.NewBufferString(`{"query":"x"}`)))
	if rw.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rw.Code)
	}

	body, _ := json.Marshal(map[string]string{"query": "how is the fridge?"})
	req := httptest.NewRequest(http.MethodPost, "/api/chat/query", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+tokenFor(t, "test@example.com"))
	rw = httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rw.Code, rw.Body.String())
	}
	var answer Answer
	if err := json.Unmarshal(rw.Body.Bytes(), &answer); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if answer.Reply == "" || answer.DeviceID != fridgeID {
		t.Fatalf("unexpected answer: %+v", answer)
	}

	// Empty queries are rejected.
	req = httptest.NewRequest(http.MethodPost, "/api/chat/query", bytes.NewBufferString(`{"query":"  "}`))
	req.Header.Set("Authorization", "Bearer "+tokenFor(t, "test@example.com"))
	rw = httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty query, got %d", rw.Code)
	}
}
