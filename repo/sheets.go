package repo

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/jwt"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/Master-Insight/Bot-Survey-Sheet/model"
)

// SheetsService talks to one Google spreadsheet. Range and cell arguments use
// A1 notation ("pending!A2:C", "pending!C4") or named ranges.
type SheetsService struct {
	svc           *sheets.Service
	spreadsheetID string
}

// NewSheetsService builds a Sheets client authenticated with a service
// account. privateKey may carry literal "\n" sequences (common when the key
// is pasted into an env file); they are restored before use.
func NewSheetsService(ctx context.Context, email, privateKey, spreadsheetID string) (*SheetsService, error) {
	conf := &jwt.Config{
		Email:      email,
		PrivateKey: []byte(strings.ReplaceAll(privateKey, `\n`, "\n")),
		Scopes:     []string{sheets.SpreadsheetsScope},
		TokenURL:   google.JWTTokenURL,
	}

	svc, err := sheets.NewService(ctx, option.WithTokenSource(conf.TokenSource(ctx)))
	if err != nil {
		return nil, fmt.Errorf("error creating sheets service: %w", err)
	}

	return &SheetsService{svc: svc, spreadsheetID: spreadsheetID}, nil
}

// ReadRange returns the rows of a range as strings. An empty range yields
// (nil, nil): absence of data is not an error.
func (s *SheetsService) ReadRange(ctx context.Context, rangeID string) ([][]string, error) {
	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, rangeID).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("error reading range %q: %w", rangeID, err)
	}
	if resp.Values == nil {
		return nil, nil
	}

	rows := make([][]string, 0, len(resp.Values))
	for _, raw := range resp.Values {
		row := make([]string, 0, len(raw))
		for _, cell := range raw {
			row = append(row, fmt.Sprint(cell))
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// AppendRow appends one row after the last row of the range.
func (s *SheetsService) AppendRow(ctx context.Context, rangeID string, row []string) error {
	vr := &sheets.ValueRange{Values: [][]interface{}{toInterfaces(row)}}

	_, err := s.svc.Spreadsheets.Values.Append(s.spreadsheetID, rangeID, vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("error appending to %q: %w", rangeID, err)
	}
	return nil
}

// UpdateCell overwrites a single cell.
func (s *SheetsService) UpdateCell(ctx context.Context, cell, value string) error {
	vr := &sheets.ValueRange{Values: [][]interface{}{{value}}}

	_, err := s.svc.Spreadsheets.Values.Update(s.spreadsheetID, cell, vr).
		ValueInputOption("RAW").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("error updating cell %q: %w", cell, err)
	}
	return nil
}

// BatchUpdateCells writes several cells in one request.
func (s *SheetsService) BatchUpdateCells(ctx context.Context, updates []model.CellUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	data := make([]*sheets.ValueRange, 0, len(updates))
	for _, u := range updates {
		data = append(data, &sheets.ValueRange{
			Range:  u.Cell,
			Values: [][]interface{}{{u.Value}},
		})
	}

	req := &sheets.BatchUpdateValuesRequest{ValueInputOption: "RAW", Data: data}
	_, err := s.svc.Spreadsheets.Values.BatchUpdate(s.spreadsheetID, req).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("error batch updating cells: %w", err)
	}
	return nil
}

func toInterfaces(row []string) []interface{} {
	out := make([]interface{}, len(row))
	for i, v := range row {
		out[i] = v
	}
	return out
}
