package handler

import (
	"context"
	"strings"

	"github.com/Master-Insight/Bot-Survey-Sheet/model"
)

// Store is the tabular storage collaborator. Ranges and cells use A1
// notation; an empty range reads back as (nil, nil), never as an error.
type Store interface {
	ReadRange(ctx context.Context, rangeID string) ([][]string, error)
	AppendRow(ctx context.Context, rangeID string, row []string) error
	UpdateCell(ctx context.Context, cell, value string) error
	BatchUpdateCells(ctx context.Context, updates []model.CellUpdate) error
}

// Messenger is the outbound messaging collaborator.
type Messenger interface {
	SendText(ctx context.Context, to, body string) error
	SendChoicePrompt(ctx context.Context, to, title string, buttons []model.Button) error
	MarkRead(ctx context.Context, messageID string) error
}

// Notify delivers an operational report back to whoever triggered a queue
// command, on that requester's own channel.
type Notify func(ctx context.Context, body string) error

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
