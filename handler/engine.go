package handler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Master-Insight/Bot-Survey-Sheet/model"
)

const defaultBatchCount = 5

var defaultGreetings = []string{"hi", "hello", "hey", "good morning", "good afternoon"}

// EngineConfig carries the storage targets and presentation settings of a
// ConversationEngine.
type EngineConfig struct {
	AnswersRange string
	PendingSheet string
	Location     *time.Location
	Greetings    []string
}

// ConversationEngine drives every user through the survey state machine:
// Idle -> InSurvey(step, answers) -> Idle. It owns the per-user state map and
// serializes events per user, so concurrent webhook deliveries for the same
// sender cannot lose an answer.
type ConversationEngine struct {
	catalog *SurveyCatalog
	store   Store
	msgr    Messenger
	queue   *PendingDispatchQueue
	cfg     EngineConfig

	mu     sync.Mutex
	states map[string]*model.ConversationState
	locks  map[string]*sync.Mutex
}

func NewConversationEngine(catalog *SurveyCatalog, store Store, msgr Messenger, cfg EngineConfig) *ConversationEngine {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if len(cfg.Greetings) == 0 {
		cfg.Greetings = defaultGreetings
	}
	return &ConversationEngine{
		catalog: catalog,
		store:   store,
		msgr:    msgr,
		cfg:     cfg,
		states:  make(map[string]*model.ConversationState),
		locks:   make(map[string]*sync.Mutex),
	}
}

// AttachQueue wires the pending-dispatch queue the operator commands act on.
func (e *ConversationEngine) AttachQueue(q *PendingDispatchQueue) { e.queue = q }

// HandleMessage is the single entry point for inbound events.
func (e *ConversationEngine) HandleMessage(ctx context.Context, m *model.Message) {
	if m == nil || m.From == "" {
		return
	}

	lock := e.userLock(m.From)
	lock.Lock()
	defer lock.Unlock()

	switch m.Type {
	case model.TypeText:
		e.handleText(ctx, m)
	case model.TypeInteractive:
		e.handleInteractive(ctx, m)
	}
}

// handleText dispatches in fixed order: survey trigger, greeting, in-survey
// answer, operator command. First match wins.
func (e *ConversationEngine) handleText(ctx context.Context, m *model.Message) {
	body := normalize(m.Body())
	sender := m.From

	// A survey title always starts that survey, discarding any progress.
	if _, idx, ok := e.catalog.FindByTitle(body); ok {
		e.markRead(ctx, m.ID)
		e.startSurvey(ctx, sender, idx)
		return
	}

	if e.isGreeting(body) {
		e.clearState(sender)
		e.markRead(ctx, m.ID)
		e.sendGreeting(ctx, sender)
		return
	}

	if st := e.state(sender); st != nil {
		if err := e.runStep(ctx, sender, strings.TrimSpace(m.Body())); err != nil {
			log.Error().Err(err).Str("user", sender).Msg("error advancing survey")
		}
		return
	}

	if e.runCommand(ctx, sender, body) {
		e.markRead(ctx, m.ID)
	}
}

// handleInteractive treats a button reply as the answer to the current step
// when a survey is in progress, and as a menu selection otherwise.
func (e *ConversationEngine) handleInteractive(ctx context.Context, m *model.Message) {
	if m.Interactive == nil || m.Interactive.ButtonReply == nil {
		return
	}
	reply := m.Interactive.ButtonReply
	sender := m.From

	e.markRead(ctx, m.ID)

	if st := e.state(sender); st != nil {
		answer := reply.Title
		if answer == "" {
			answer = e.optionLabel(st, reply.ID)
		}
		if err := e.runStep(ctx, sender, answer); err != nil {
			log.Error().Err(err).Str("user", sender).Msg("error advancing survey")
		}
		return
	}

	idxStr, ok := strings.CutPrefix(reply.ID, "survey_")
	if !ok {
		return
	}
	idx, err := strconv.Atoi(idxStr)
	if err != nil {
		return
	}
	if _, ok := e.catalog.ByIndex(idx); !ok {
		e.sendText(ctx, sender, "Survey not found.")
		return
	}
	e.startSurvey(ctx, sender, idx)
}

// startSurvey unconditionally replaces any prior state (last trigger wins)
// and runs step 0.
func (e *ConversationEngine) startSurvey(ctx context.Context, userID string, surveyIndex int) {
	e.setState(userID, &model.ConversationState{SurveyIndex: surveyIndex})
	if err := e.runStep(ctx, userID, ""); err != nil {
		log.Error().Err(err).Str("user", userID).Msg("error starting survey")
	}
}

// BeginPending seeds a conversation from a pending-invitation row and asks
// the first question. Used by the dispatch queue.
func (e *ConversationEngine) BeginPending(ctx context.Context, phone string, surveyIndex, row int) error {
	lock := e.userLock(phone)
	lock.Lock()
	defer lock.Unlock()

	e.setState(phone, &model.ConversationState{
		SurveyIndex: surveyIndex,
		Meta:        &model.PendingMeta{Row: row},
	})
	return e.runStep(ctx, phone, "")
}

// runStep records the answer (when past step 0), then either asks the next
// question or finalizes the survey. A survey with no questions completes
// immediately with an empty answer list.
func (e *ConversationEngine) runStep(ctx context.Context, userID, answer string) error {
	st := e.state(userID)
	if st == nil {
		return nil
	}

	survey, ok := e.catalog.ByIndex(st.SurveyIndex)
	if !ok {
		// Catalog shrank under a reload; the conversation cannot continue.
		e.clearState(userID)
		return model.ErrSurveyNotFound
	}

	if st.Step > 0 {
		st.Answers = append(st.Answers, answer)
	}

	question, ok := survey.Question(st.Step)
	if !ok {
		return e.finish(ctx, userID, survey, st)
	}

	step := st.Step
	st.Step++

	if opts := survey.ChoicesAt(step); opts != nil {
		buttons := make([]model.Button, 0, len(opts))
		for i, opt := range opts {
			buttons = append(buttons, model.Button{ID: fmt.Sprintf("step_%d_opt_%d", step, i), Title: opt})
		}
		return e.msgr.SendChoicePrompt(ctx, userID, question, buttons)
	}
	return e.msgr.SendText(ctx, userID, question)
}

// finish reports the summary, persists the completed row and drops the
// state. A persistence failure is reported conversationally and never
// retried; the state is discarded either way.
func (e *ConversationEngine) finish(ctx context.Context, userID string, survey model.Survey, st *model.ConversationState) error {
	defer e.clearState(userID)

	var b strings.Builder
	for i, answer := range st.Answers {
		if i < len(survey.Questions) {
			fmt.Fprintf(&b, "- %s: %s\n", survey.Questions[i], answer)
		}
	}
	e.sendText(ctx, userID, fmt.Sprintf("Survey %q completed:\n\n%s", survey.Title, b.String()))

	row := append([]string{userID, e.timestamp(), survey.Title}, st.Answers...)
	if err := e.store.AppendRow(ctx, e.cfg.AnswersRange, row); err != nil {
		log.Error().Err(err).Str("user", userID).Str("survey", survey.Title).Msg("error saving answers")
		e.sendText(ctx, userID, "There was a problem saving your answers. Please try again later.")
	} else {
		e.sendText(ctx, userID, "Your answers have been recorded.")
	}

	if st.Meta != nil {
		cell := fmt.Sprintf("%s!C%d", e.cfg.PendingSheet, st.Meta.Row)
		if err := e.store.UpdateCell(ctx, cell, "COMPLETED"); err != nil {
			log.Warn().Err(err).Str("cell", cell).Msg("error updating pending row status")
		}
	}
	return nil
}

func (e *ConversationEngine) sendGreeting(ctx context.Context, userID string) {
	e.sendText(ctx, userID, "Welcome!")

	buttons := e.catalog.MenuButtons()
	if len(buttons) == 0 {
		e.sendText(ctx, userID, "No surveys available right now.")
		return
	}
	if err := e.msgr.SendChoicePrompt(ctx, userID, "Choose a survey", buttons); err != nil {
		log.Error().Err(err).Str("user", userID).Msg("error sending survey menu")
	}
}

// runCommand looks the normalized text up in the operator command table and
// reports whether a command ran.
func (e *ConversationEngine) runCommand(ctx context.Context, sender, body string) bool {
	switch {
	case body == "test":
		e.sendText(ctx, sender, "OK")
	case body == "/reload":
		if err := e.catalog.Load(ctx); err != nil {
			log.Error().Err(err).Msg("error reloading surveys")
			e.sendText(ctx, sender, "Error reloading surveys.")
		} else {
			e.sendText(ctx, sender, "Surveys reloaded.")
		}
	// Queue commands run detached: a batch send takes seconds between
	// sub-batches and must not hold the webhook request or the sender's
	// conversation lock. The queue's own lock rejects overlapping runs.
	case body == "/pending":
		if e.queue != nil {
			go e.queue.LoadPending(context.WithoutCancel(ctx), e.notify(sender))
		}
	case body == "/next":
		if e.queue != nil {
			go e.queue.SendNext(context.WithoutCancel(ctx), e.notify(sender))
		}
	case body == "/send" || strings.HasPrefix(body, "/send "):
		if e.queue != nil {
			go e.queue.SendBatch(context.WithoutCancel(ctx), e.notify(sender), parseBatchCount(body))
		}
	default:
		return false
	}
	return true
}

// parseBatchCount extracts N from "/send N", defaulting when missing or
// unparsable.
func parseBatchCount(body string) int {
	parts := strings.Fields(body)
	if len(parts) < 2 {
		return defaultBatchCount
	}
	n, err := strconv.Atoi(parts[1])
	if err != nil || n <= 0 {
		return defaultBatchCount
	}
	return n
}

func (e *ConversationEngine) isGreeting(body string) bool {
	for _, g := range e.cfg.Greetings {
		if body == g {
			return true
		}
	}
	return false
}

// optionLabel resolves a "step_<s>_opt_<i>" button id back to its label, for
// transports that do not echo the pressed button's title.
func (e *ConversationEngine) optionLabel(st *model.ConversationState, optionID string) string {
	var step, opt int
	if _, err := fmt.Sscanf(optionID, "step_%d_opt_%d", &step, &opt); err != nil {
		return optionID
	}
	survey, ok := e.catalog.ByIndex(st.SurveyIndex)
	if !ok {
		return optionID
	}
	opts := survey.ChoicesAt(step)
	if opt < 0 || opt >= len(opts) {
		return optionID
	}
	return opts[opt]
}

func (e *ConversationEngine) notify(sender string) Notify {
	return func(ctx context.Context, body string) error {
		return e.msgr.SendText(ctx, sender, body)
	}
}

func (e *ConversationEngine) sendText(ctx context.Context, to, body string) {
	if err := e.msgr.SendText(ctx, to, body); err != nil {
		log.Error().Err(err).Str("user", to).Msg("error sending message")
	}
}

func (e *ConversationEngine) markRead(ctx context.Context, messageID string) {
	if messageID == "" {
		return
	}
	if err := e.msgr.MarkRead(ctx, messageID); err != nil {
		log.Warn().Err(err).Str("message_id", messageID).Msg("error marking message as read")
	}
}

func (e *ConversationEngine) timestamp() string {
	return time.Now().In(e.cfg.Location).Format("02/01/2006 15:04:05")
}

// ---- per-user state store ----

func (e *ConversationEngine) state(userID string) *model.ConversationState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.states[userID]
}

func (e *ConversationEngine) setState(userID string, st *model.ConversationState) {
	e.mu.Lock()
	e.states[userID] = st
	e.mu.Unlock()
}

func (e *ConversationEngine) clearState(userID string) {
	e.mu.Lock()
	delete(e.states, userID)
	e.mu.Unlock()
}

func (e *ConversationEngine) userLock(userID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[userID] = lock
	}
	return lock
}
