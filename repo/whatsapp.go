package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/Master-Insight/Bot-Survey-Sheet/model"
)

// WhatsAppService sends messages through the WhatsApp Cloud API. All outbound
// calls share one rate limiter so bulk dispatch cannot trip Meta's limits.
type WhatsAppService struct {
	baseURL       string
	token         string
	businessPhone string
	http          *http.Client
	limiter       *rate.Limiter
}

func NewWhatsAppService(baseURL, apiVersion, token, businessPhone string, ratePerSec int) *WhatsAppService {
	if ratePerSec <= 0 {
		ratePerSec = 2
	}
	return &WhatsAppService{
		baseURL:       strings.TrimSuffix(baseURL, "/") + "/" + apiVersion + "/" + businessPhone,
		token:         token,
		businessPhone: businessPhone,
		http:          &http.Client{Timeout: 15 * time.Second},
		limiter:       rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec),
	}
}

// SendText sends a plain text message.
func (w *WhatsAppService) SendText(ctx context.Context, to, body string) error {
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "text",
		"text":              map[string]string{"body": body},
	}
	return w.post(ctx, "/messages", payload)
}

// SendChoicePrompt sends an interactive reply-button message. One button per
// option, button ids carry the option identifier back on the webhook.
func (w *WhatsAppService) SendChoicePrompt(ctx context.Context, to, title string, buttons []model.Button) error {
	btns := make([]map[string]any, 0, len(buttons))
	for _, b := range buttons {
		btns = append(btns, map[string]any{
			"type":  "reply",
			"reply": map[string]string{"id": b.ID, "title": b.Title},
		})
	}

	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "interactive",
		"interactive": map[string]any{
			"type":   "button",
			"body":   map[string]string{"text": title},
			"action": map[string]any{"buttons": btns},
		},
	}
	return w.post(ctx, "/messages", payload)
}

// MarkRead flags an inbound message as read.
func (w *WhatsAppService) MarkRead(ctx context.Context, messageID string) error {
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"status":            "read",
		"message_id":        messageID,
	}
	return w.post(ctx, "/messages", payload)
}

func (w *WhatsAppService) post(ctx context.Context, path string, payload any) error {
	if err := w.limiter.Wait(ctx); err != nil {
		return err
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+w.token)

	resp, err := w.http.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 == 2 {
		return nil
	}

	var out struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    int    `json:"code"`
		} `json:"error"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&out)

	log.Error().
		Int("http", resp.StatusCode).
		Int("code", out.Error.Code).
		Str("type", out.Error.Type).
		Str("message", out.Error.Message).
		Msg("whatsapp send failed")

	if out.Error.Message != "" {
		return fmt.Errorf("whatsapp: %s (code=%d http=%d)", out.Error.Message, out.Error.Code, resp.StatusCode)
	}
	return fmt.Errorf("whatsapp: http=%d", resp.StatusCode)
}
