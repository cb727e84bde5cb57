package model

// Message kinds delivered by the transports.
const (
	TypeText        = "text"
	TypeInteractive = "interactive"
)

// Message is one inbound user event, either free text or a button reply.
// The JSON tags follow the WhatsApp Cloud API webhook payload.
type Message struct {
	ID          string       `json:"id"`
	From        string       `json:"from"`
	Type        string       `json:"type"`
	Text        *Text        `json:"text,omitempty"`
	Interactive *Interactive `json:"interactive,omitempty"`
}

type Text struct {
	Body string `json:"body"`
}

type Interactive struct {
	Type        string       `json:"type,omitempty"`
	ButtonReply *ButtonReply `json:"button_reply,omitempty"`
}

type ButtonReply struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Body returns the trimmed text body, or "" for non-text messages.
func (m *Message) Body() string {
	if m == nil || m.Text == nil {
		return ""
	}
	return m.Text.Body
}

// Button is one selectable option of a choice prompt.
type Button struct {
	ID    string
	Title string
}
