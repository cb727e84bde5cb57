package handler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Master-Insight/Bot-Survey-Sheet/model"
)

type fakeStore struct {
	mu         sync.Mutex
	ranges     map[string][][]string
	failRanges map[string]error
	appended   map[string][][]string
	cells      map[string]string
	appendErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		ranges:     map[string][][]string{},
		failRanges: map[string]error{},
		appended:   map[string][][]string{},
		cells:      map[string]string{},
	}
}

func (f *fakeStore) ReadRange(ctx context.Context, rangeID string) ([][]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failRanges[rangeID]; err != nil {
		return nil, err
	}
	return f.ranges[rangeID], nil
}

func (f *fakeStore) AppendRow(ctx context.Context, rangeID string, row []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	f.appended[rangeID] = append(f.appended[rangeID], row)
	return nil
}

func (f *fakeStore) UpdateCell(ctx context.Context, cell, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cells[cell] = value
	return nil
}

func (f *fakeStore) BatchUpdateCells(ctx context.Context, updates []model.CellUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range updates {
		f.cells[u.Cell] = u.Value
	}
	return nil
}

func (f *fakeStore) cell(cell string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cells[cell]
}

func (f *fakeStore) appendedRows(rangeID string) [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.appended[rangeID]
}

type sentText struct {
	to   string
	body string
}

type sentPrompt struct {
	to      string
	title   string
	buttons []model.Button
}

type fakeMessenger struct {
	mu      sync.Mutex
	texts   []sentText
	prompts []sentPrompt
	read    []string
	textErr error
}

func (f *fakeMessenger) SendText(ctx context.Context, to, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.textErr != nil {
		return f.textErr
	}
	f.texts = append(f.texts, sentText{to: to, body: body})
	return nil
}

func (f *fakeMessenger) SendChoicePrompt(ctx context.Context, to, title string, buttons []model.Button) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, sentPrompt{to: to, title: title, buttons: buttons})
	return nil
}

func (f *fakeMessenger) MarkRead(ctx context.Context, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.read = append(f.read, messageID)
	return nil
}

func (f *fakeMessenger) lastText() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.texts) == 0 {
		return ""
	}
	return f.texts[len(f.texts)-1].body
}

func (f *fakeMessenger) lastPrompt() *sentPrompt {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.prompts) == 0 {
		return nil
	}
	p := f.prompts[len(f.prompts)-1]
	return &p
}

func (f *fakeMessenger) textCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.texts)
}

func (f *fakeMessenger) promptCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

// fixture wires a catalog, engine and queue against in-memory fakes, seeded
// with two surveys: "Satisfaction" (one choice step, one free-text step) and
// "Exit Poll" (one free-text step).
type fixture struct {
	store *fakeStore
	msgr  *fakeMessenger
	cat   *SurveyCatalog
	eng   *ConversationEngine
	queue *PendingDispatchQueue
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := newFakeStore()
	store.ranges["config!A1:B"] = [][]string{
		{"Title", "Range"},
		{"Satisfaction", "sat!A1:B"},
		{"Exit Poll", "exit!A1:B"},
	}
	store.ranges["sat!A1:B"] = [][]string{
		{"Question", "Options"},
		{"Rate us 1-5", "1/2/3/4/5"},
		{"Comments"},
	}
	store.ranges["exit!A1:B"] = [][]string{
		{"Question", "Options"},
		{"Why are you leaving?"},
	}

	msgr := &fakeMessenger{}
	cat := NewSurveyCatalog(store, "config!A1:B")
	if err := cat.Load(context.Background()); err != nil {
		t.Fatalf("catalog load: %v", err)
	}

	eng := NewConversationEngine(cat, store, msgr, EngineConfig{
		AnswersRange: "answers",
		PendingSheet: "pending",
	})
	queue := NewPendingDispatchQueue(store, cat, msgr, eng, QueueConfig{
		PendingSheet: "pending",
		BatchDelay:   time.Millisecond,
	})
	eng.AttachQueue(queue)

	return &fixture{store: store, msgr: msgr, cat: cat, eng: eng, queue: queue}
}

func textMsg(from, body string) *model.Message {
	return &model.Message{
		ID:   "msg-" + from,
		From: from,
		Type: model.TypeText,
		Text: &model.Text{Body: body},
	}
}

func buttonMsg(from, id, title string) *model.Message {
	return &model.Message{
		ID:   "msg-" + from,
		From: from,
		Type: model.TypeInteractive,
		Interactive: &model.Interactive{
			ButtonReply: &model.ButtonReply{ID: id, Title: title},
		},
	}
}

// collect is a Notify that accumulates operator reports.
type collector struct {
	mu      sync.Mutex
	reports []string
}

func (c *collector) notify(ctx context.Context, body string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reports = append(c.reports, body)
	return nil
}

func (c *collector) last() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.reports) == 0 {
		return ""
	}
	return c.reports[len(c.reports)-1]
}

func (c *collector) all() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.reports...)
}
