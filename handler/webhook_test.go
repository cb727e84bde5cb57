package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newWebhookServer(t *testing.T) (*fixture, *httptest.Server) {
	t.Helper()
	f := newFixture(t)
	mux := http.NewServeMux()
	NewWebhook(f.eng, "secret-token").Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return f, srv
}

func TestWebhookVerification(t *testing.T) {
	_, srv := newWebhookServer(t)

	resp, err := http.Get(srv.URL + "/webhook?hub.mode=subscribe&hub.verify_token=secret-token&hub.challenge=12345")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	buf := make([]byte, 16)
	n, _ := resp.Body.Read(buf)
	if got := string(buf[:n]); got != "12345" {
		t.Fatalf("expected challenge echo, got %q", got)
	}
}

func TestWebhookVerificationRejectsBadToken(t *testing.T) {
	_, srv := newWebhookServer(t)

	resp, err := http.Get(srv.URL + "/webhook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
}

func TestWebhookDispatchesMessages(t *testing.T) {
	f, srv := newWebhookServer(t)

	payload := `{
	  "entry": [{
	    "changes": [{
	      "value": {
	        "messages": [{
	          "id": "wamid.1",
	          "from": "5491111111111",
	          "type": "text",
	          "text": {"body": "hello"}
	        }]
	      }
	    }]
	  }]
	}`

	resp, err := http.Post(srv.URL+"/webhook", "application/json", strings.NewReader(payload))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	if got := f.msgr.lastPrompt(); got == nil || got.title != "Choose a survey" {
		t.Fatalf("greeting was not handled, last prompt: %+v", got)
	}
}

func TestWebhookMalformedPayloadStillOK(t *testing.T) {
	_, srv := newWebhookServer(t)

	resp, err := http.Post(srv.URL+"/webhook", "application/json", strings.NewReader("not json"))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 even for bad payloads, got %d", resp.StatusCode)
	}
}
