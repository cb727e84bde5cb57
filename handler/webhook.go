package handler

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/Master-Insight/Bot-Survey-Sheet/model"
)

// Webhook receives WhatsApp Cloud API callbacks: the GET verification
// handshake and the POSTed message notifications.
type Webhook struct {
	engine      *ConversationEngine
	verifyToken string
}

func NewWebhook(engine *ConversationEngine, verifyToken string) *Webhook {
	return &Webhook{engine: engine, verifyToken: verifyToken}
}

func (w *Webhook) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /webhook", w.verify)
	mux.HandleFunc("POST /webhook", w.receive)
}

func (w *Webhook) verify(rw http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("hub.mode") == "subscribe" && q.Get("hub.verify_token") == w.verifyToken {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte(q.Get("hub.challenge")))
		return
	}
	rw.WriteHeader(http.StatusForbidden)
}

type webhookPayload struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Messages []model.Message `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// receive dispatches every inbound message to the engine. Meta retries on
// non-2xx, so the response is always 200; processing errors stay in the logs.
func (w *Webhook) receive(rw http.ResponseWriter, r *http.Request) {
	var payload webhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		log.Warn().Err(err).Msg("error decoding webhook payload")
		rw.WriteHeader(http.StatusOK)
		return
	}

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for i := range change.Value.Messages {
				m := change.Value.Messages[i]
				log.Debug().Str("from", m.From).Str("type", m.Type).Msg("inbound message")
				w.engine.HandleMessage(r.Context(), &m)
			}
		}
	}
	rw.WriteHeader(http.StatusOK)
}
