package handler

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/Master-Insight/Bot-Survey-Sheet/model"
)

const menuMaxOptions = 10

// SurveyCatalog caches the survey definitions read from the configuration
// range. A successful Load swaps the whole snapshot; a failed one keeps the
// previous snapshot usable (stale-but-available).
type SurveyCatalog struct {
	store       Store
	configRange string

	mu      sync.RWMutex
	surveys []model.Survey
}

func NewSurveyCatalog(store Store, configRange string) *SurveyCatalog {
	return &SurveyCatalog{store: store, configRange: configRange}
}

// Load reads the (title, range) listing, then each survey's question rows.
// The first row of every range is a header and is skipped. A survey whose own
// range cannot be read is skipped with a warning; only a failure reading the
// configuration listing aborts the load.
func (c *SurveyCatalog) Load(ctx context.Context) error {
	rows, err := c.store.ReadRange(ctx, c.configRange)
	if err != nil {
		return fmt.Errorf("error loading survey config: %w", err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("survey config range %q: %w", c.configRange, model.ErrNoCatalog)
	}

	surveys := make([]model.Survey, 0, len(rows))
	for _, row := range rows[1:] {
		if len(row) < 2 {
			continue
		}
		title := strings.TrimSpace(row[0])
		rangeID := strings.TrimSpace(row[1])
		if title == "" || rangeID == "" {
			continue
		}

		qrows, err := c.store.ReadRange(ctx, rangeID)
		if err != nil || len(qrows) == 0 {
			log.Warn().Err(err).Str("survey", title).Str("range", rangeID).Msg("skipping survey: range unreadable")
			continue
		}

		var questions []string
		var choices [][]string
		for _, qrow := range qrows[1:] {
			var question string
			if len(qrow) > 0 {
				question = strings.TrimSpace(qrow[0])
			}
			questions = append(questions, question)

			if len(qrow) > 1 && strings.TrimSpace(qrow[1]) != "" {
				opts := strings.Split(qrow[1], "/")
				for i := range opts {
					opts[i] = strings.TrimSpace(opts[i])
				}
				choices = append(choices, opts)
			} else {
				choices = append(choices, nil)
			}
		}

		surveys = append(surveys, model.Survey{
			Title:     title,
			Range:     rangeID,
			Questions: questions,
			Choices:   choices,
		})
	}

	c.mu.Lock()
	c.surveys = surveys
	c.mu.Unlock()

	log.Info().Int("surveys", len(surveys)).Msg("survey catalog loaded")
	return nil
}

// Snapshot returns the current survey list. Callers must not mutate it.
func (c *SurveyCatalog) Snapshot() []model.Survey {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.surveys
}

func (c *SurveyCatalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.surveys)
}

// ByIndex returns the survey at position i, or false when out of range.
func (c *SurveyCatalog) ByIndex(i int) (model.Survey, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i < 0 || i >= len(c.surveys) {
		return model.Survey{}, false
	}
	return c.surveys[i], true
}

// FindByTitle resolves a free-text phrase to a survey by exact match of the
// normalized (lower-cased, trimmed) title.
func (c *SurveyCatalog) FindByTitle(text string) (model.Survey, int, bool) {
	want := normalize(text)
	if want == "" {
		return model.Survey{}, 0, false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	for i, s := range c.surveys {
		if normalize(s.Title) == want {
			return s, i, true
		}
	}
	return model.Survey{}, 0, false
}

// MenuButtons builds the selection menu, one option per survey, capped to
// keep the prompt within transport limits.
func (c *SurveyCatalog) MenuButtons() []model.Button {
	c.mu.RLock()
	defer c.mu.RUnlock()

	buttons := make([]model.Button, 0, len(c.surveys))
	for i, s := range c.surveys {
		if i >= menuMaxOptions {
			break
		}
		buttons = append(buttons, model.Button{ID: fmt.Sprintf("survey_%d", i), Title: s.Title})
	}
	return buttons
}
