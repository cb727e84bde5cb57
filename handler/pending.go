package handler

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Master-Insight/Bot-Survey-Sheet/model"
)

const (
	defaultSubBatchSize = 5
	defaultBatchDelay   = 2 * time.Second
	summaryMaxRows      = 10
	summaryMaxErrors    = 5
	errorCellMaxLen     = 100
)

var (
	digitsOnly     = regexp.MustCompile(`^\d+$`)
	nonDigits      = regexp.MustCompile(`\D`)
	internationalP = regexp.MustCompile(`^\+\d{10,15}$`)
)

// ConversationStarter seeds a conversation for a dispatched invitation and
// runs its first question. Implemented by ConversationEngine.
type ConversationStarter interface {
	BeginPending(ctx context.Context, phone string, surveyIndex, row int) error
}

// QueueConfig tunes the pending-dispatch pipeline. Zero values fall back to
// the defaults above.
type QueueConfig struct {
	PendingSheet string
	SubBatchSize int
	BatchDelay   time.Duration
	CountryCode  string // prefixed to bare domestic numbers
	Location     *time.Location
}

// PendingDispatchQueue pushes queued survey invitations to their recipients.
// Every queue-mutating operation runs under a single try-lock: a second
// operator command arriving mid-run gets a busy report and changes nothing.
type PendingDispatchQueue struct {
	store   Store
	catalog *SurveyCatalog
	msgr    Messenger
	starter ConversationStarter
	cfg     QueueConfig

	busy    atomic.Bool
	mu      sync.Mutex
	pending []model.PendingInvitation
}

func NewPendingDispatchQueue(store Store, catalog *SurveyCatalog, msgr Messenger, starter ConversationStarter, cfg QueueConfig) *PendingDispatchQueue {
	if cfg.SubBatchSize <= 0 {
		cfg.SubBatchSize = defaultSubBatchSize
	}
	if cfg.BatchDelay <= 0 {
		cfg.BatchDelay = defaultBatchDelay
	}
	if cfg.CountryCode == "" {
		cfg.CountryCode = "54"
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &PendingDispatchQueue{store: store, catalog: catalog, msgr: msgr, starter: starter, cfg: cfg}
}

// Len reports the number of invitations currently queued in memory.
func (q *PendingDispatchQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// tryLock acquires the operation lock or reports busy to the requester.
func (q *PendingDispatchQueue) tryLock(ctx context.Context, notify Notify) bool {
	if !q.busy.CompareAndSwap(false, true) {
		q.report(ctx, notify, "An operation is already in progress. Please wait.")
		return false
	}
	return true
}

func (q *PendingDispatchQueue) unlock() { q.busy.Store(false) }

// LoadPending reads the pending range and replaces the in-memory queue with
// the rows that still lack a status and carry a digits-only phone. Reports a
// capped listing to the requester.
func (q *PendingDispatchQueue) LoadPending(ctx context.Context, notify Notify) {
	if !q.tryLock(ctx, notify) {
		return
	}
	defer q.unlock()

	rows, err := q.store.ReadRange(ctx, q.cfg.PendingSheet+"!A2:C")
	if err != nil {
		log.Error().Err(err).Msg("error loading pending invitations")
		q.report(ctx, notify, "Error loading pending invitations: "+err.Error())
		return
	}

	var pending []model.PendingInvitation
	for i, row := range rows {
		if len(row) < 2 {
			continue
		}
		// Columns: A=phone, B=survey, C=status. A row already carrying a
		// status is done; a short row simply has no status cell yet.
		if len(row) >= 3 && strings.TrimSpace(row[2]) != "" {
			continue
		}
		phone := strings.TrimSpace(row[0])
		title := strings.TrimSpace(row[1])
		if phone == "" || title == "" || !digitsOnly.MatchString(phone) {
			continue
		}
		pending = append(pending, model.PendingInvitation{
			Phone:       phone,
			SurveyTitle: title,
			Row:         i + 2, // range starts at A2
		})
	}

	q.mu.Lock()
	q.pending = pending
	q.mu.Unlock()

	if len(pending) == 0 {
		q.report(ctx, notify, "No pending invitations to send.")
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d pending invitations loaded:\n", len(pending))
	for i, p := range pending {
		if i >= summaryMaxRows {
			fmt.Fprintf(&b, "...and %d more", len(pending)-summaryMaxRows)
			break
		}
		fmt.Fprintf(&b, "%d. %s - %s\n", i+1, p.Phone, p.SurveyTitle)
	}
	q.report(ctx, notify, strings.TrimRight(b.String(), "\n"))
}

// SendNext pops and sends the head of the queue.
func (q *PendingDispatchQueue) SendNext(ctx context.Context, notify Notify) {
	if !q.tryLock(ctx, notify) {
		return
	}
	defer q.unlock()

	q.mu.Lock()
	if len(q.pending) == 0 {
		q.mu.Unlock()
		q.report(ctx, notify, "No pending invitations loaded. Use /pending first.")
		return
	}
	next := q.pending[0]
	q.pending = q.pending[1:]
	q.mu.Unlock()

	res := q.sendOne(ctx, next)
	if res.Success {
		q.report(ctx, notify, fmt.Sprintf("Survey %q sent to %s.", res.SurveyTitle, res.Phone))
	} else {
		q.report(ctx, notify, fmt.Sprintf("Error sending to %s: %s", res.Phone, res.Err))
	}
}

// SendBatch sends min(count, queued) invitations in concurrent sub-batches
// with a fixed delay in between, then reports an aggregate summary.
func (q *PendingDispatchQueue) SendBatch(ctx context.Context, notify Notify, count int) {
	if !q.tryLock(ctx, notify) {
		return
	}
	defer q.unlock()

	q.mu.Lock()
	queued := len(q.pending)
	q.mu.Unlock()
	if queued == 0 {
		q.report(ctx, notify, "No pending invitations loaded. Use /pending first.")
		return
	}

	actual := count
	if queued < actual {
		actual = queued
	}

	results := make([]model.SendResult, 0, actual)
	for sent := 0; sent < actual; sent += q.cfg.SubBatchSize {
		size := q.cfg.SubBatchSize
		if actual-sent < size {
			size = actual - sent
		}

		q.mu.Lock()
		batch := append([]model.PendingInvitation(nil), q.pending[:size]...)
		q.pending = q.pending[size:]
		q.mu.Unlock()

		batchResults := make([]model.SendResult, len(batch))
		var wg sync.WaitGroup
		for i, p := range batch {
			wg.Add(1)
			go func(i int, p model.PendingInvitation) {
				defer wg.Done()
				batchResults[i] = q.sendOne(ctx, p)
			}(i, p)
		}
		wg.Wait()
		results = append(results, batchResults...)

		if sent+size < actual {
			q.report(ctx, notify, fmt.Sprintf("Processing... (%d/%d)", sent+size, actual))
			select {
			case <-ctx.Done():
				q.report(ctx, notify, "Batch send cancelled.")
				return
			case <-time.After(q.cfg.BatchDelay):
			}
		}
	}

	q.report(ctx, notify, batchSummary(results))
}

func batchSummary(results []model.SendResult) string {
	success := 0
	for _, r := range results {
		if r.Success {
			success++
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Batch send summary\n")
	fmt.Fprintf(&b, "- Total: %d\n", len(results))
	fmt.Fprintf(&b, "- Sent: %d\n", success)
	fmt.Fprintf(&b, "- Errors: %d", len(results)-success)

	shown := 0
	for _, r := range results {
		if r.Success {
			continue
		}
		if shown == 0 {
			b.WriteString("\n\nFailures:")
		}
		if shown >= summaryMaxErrors {
			break
		}
		fmt.Fprintf(&b, "\n- %s: %s", r.Phone, r.Err)
		shown++
	}
	return b.String()
}

// sendOne dispatches a single invitation and writes the row's terminal
// status. It never panics or propagates: the returned result and the status
// cells are the whole outcome.
func (q *PendingDispatchQueue) sendOne(ctx context.Context, p model.PendingInvitation) model.SendResult {
	phone := q.normalizePhone(p.Phone)
	now := time.Now().In(q.cfg.Location).Format("02/01/2006 15:04:05")

	statusCell := fmt.Sprintf("%s!C%d", q.cfg.PendingSheet, p.Row)
	dateCell := fmt.Sprintf("%s!D%d", q.cfg.PendingSheet, p.Row)
	errorCell := fmt.Sprintf("%s!E%d", q.cfg.PendingSheet, p.Row)

	fail := func(sendErr error) model.SendResult {
		msg := truncate(sendErr.Error(), errorCellMaxLen)
		err := q.store.BatchUpdateCells(ctx, []model.CellUpdate{
			{Cell: statusCell, Value: "ERROR"},
			{Cell: dateCell, Value: now},
			{Cell: errorCell, Value: msg},
		})
		if err != nil {
			log.Error().Err(err).Int("row", p.Row).Msg("error writing dispatch error status")
		}
		return model.SendResult{Phone: phone, SurveyTitle: p.SurveyTitle, Err: msg}
	}

	if !internationalP.MatchString(phone) {
		return fail(model.ErrInvalidPhone)
	}

	_, idx, ok := q.catalog.FindByTitle(p.SurveyTitle)
	if !ok {
		err := q.store.BatchUpdateCells(ctx, []model.CellUpdate{
			{Cell: statusCell, Value: "NOT FOUND"},
			{Cell: dateCell, Value: now},
		})
		if err != nil {
			log.Error().Err(err).Int("row", p.Row).Msg("error writing dispatch status")
		}
		return model.SendResult{
			Phone:       phone,
			SurveyTitle: p.SurveyTitle,
			Err:         fmt.Sprintf("survey %q not found", p.SurveyTitle),
		}
	}

	invite := fmt.Sprintf("Hello! We would like to invite you to answer a survey: %s", p.SurveyTitle)
	if err := q.msgr.SendText(ctx, phone, invite); err != nil {
		return fail(err)
	}
	if err := q.starter.BeginPending(ctx, phone, idx, p.Row); err != nil {
		return fail(err)
	}

	err := q.store.BatchUpdateCells(ctx, []model.CellUpdate{
		{Cell: statusCell, Value: "SENT"},
		{Cell: dateCell, Value: now},
		{Cell: errorCell, Value: ""},
	})
	if err != nil {
		// The invitation did go out; the row just could not record it.
		log.Error().Err(err).Int("row", p.Row).Msg("error writing dispatch status")
	}

	return model.SendResult{Success: true, Phone: phone, SurveyTitle: p.SurveyTitle}
}

// normalizePhone strips non-digits and prefixes the default country code
// when the number has the bare domestic length.
func (q *PendingDispatchQueue) normalizePhone(phone string) string {
	cleaned := nonDigits.ReplaceAllString(phone, "")
	if len(cleaned) == 10 {
		return "+" + q.cfg.CountryCode + cleaned
	}
	return "+" + cleaned
}

func (q *PendingDispatchQueue) report(ctx context.Context, notify Notify, body string) {
	if notify == nil {
		return
	}
	if err := notify(ctx, body); err != nil {
		log.Warn().Err(err).Msg("error reporting to operator")
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
