package repo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Master-Insight/Bot-Survey-Sheet/model"
)

type capturedRequest struct {
	path    string
	auth    string
	payload map[string]any
}

func newTestClient(t *testing.T, status int, response string) (*WhatsAppService, *capturedRequest) {
	t.Helper()
	captured := &capturedRequest{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.path = r.URL.Path
		captured.auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&captured.payload)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)

	return NewWhatsAppService(srv.URL, "v21.0", "test-token", "555000", 100), captured
}

func TestSendTextPayload(t *testing.T) {
	svc, captured := newTestClient(t, http.StatusOK, `{}`)

	if err := svc.SendText(context.Background(), "+5491111111111", "hi there"); err != nil {
		t.Fatalf("send: %v", err)
	}

	if captured.path != "/v21.0/555000/messages" {
		t.Fatalf("unexpected path %q", captured.path)
	}
	if captured.auth != "Bearer test-token" {
		t.Fatalf("unexpected auth header %q", captured.auth)
	}
	if captured.payload["type"] != "text" || captured.payload["to"] != "+5491111111111" {
		t.Fatalf("unexpected payload: %v", captured.payload)
	}
	text, _ := captured.payload["text"].(map[string]any)
	if text["body"] != "hi there" {
		t.Fatalf("unexpected body: %v", captured.payload)
	}
}

func TestSendChoicePromptPayload(t *testing.T) {
	svc, captured := newTestClient(t, http.StatusOK, `{}`)

	buttons := []model.Button{
		{ID: "step_0_opt_0", Title: "Yes"},
		{ID: "step_0_opt_1", Title: "No"},
	}
	if err := svc.SendChoicePrompt(context.Background(), "+5491111111111", "Continue?", buttons); err != nil {
		t.Fatalf("send: %v", err)
	}

	if captured.payload["type"] != "interactive" {
		t.Fatalf("unexpected payload type: %v", captured.payload)
	}
	interactive, _ := captured.payload["interactive"].(map[string]any)
	action, _ := interactive["action"].(map[string]any)
	btns, _ := action["buttons"].([]any)
	if len(btns) != 2 {
		t.Fatalf("expected 2 buttons, got %d", len(btns))
	}
}

func TestMarkReadPayload(t *testing.T) {
	svc, captured := newTestClient(t, http.StatusOK, `{}`)

	if err := svc.MarkRead(context.Background(), "wamid.42"); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if captured.payload["status"] != "read" || captured.payload["message_id"] != "wamid.42" {
		t.Fatalf("unexpected payload: %v", captured.payload)
	}
}

func TestSendErrorsSurfaceAPIMessage(t *testing.T) {
	svc, _ := newTestClient(t, http.StatusBadRequest,
		`{"error":{"message":"Recipient phone number not in allowed list","type":"OAuthException","code":131030}}`)

	err := svc.SendText(context.Background(), "+5491111111111", "hi")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "not in allowed list") || !strings.Contains(err.Error(), "131030") {
		t.Fatalf("error should carry API details, got %v", err)
	}
}
