// Package sheets stores entries in a Google Sheets worksheet with a header row
// "Keys | Text" and one row per entry. Keys are comma-joined in a single cell.
package sheets

import (
	"context"
	"fmt"
	"os"
	"strings"

	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"

	"lookupbot/internal/model"
)

const (
	KeysColumn = "Keys"
	TextColumn = "Text"
)

// valuesAPI is the subset of the Sheets values service the store needs.
type valuesAPI interface {
	Get(ctx context.Context, spreadsheetID, rng string) ([][]any, error)
	Update(ctx context.Context, spreadsheetID, rng string, rows [][]any) error
	Clear(ctx context.Context, spreadsheetID, rng string) error
}

type Store struct {
	api           valuesAPI
	spreadsheetID string
	sheetName     string
}

// New authenticates with a service-account key file and binds the store to
// one worksheet of the spreadsheet.
func New(ctx context.Context, spreadsheetID, sheetName, credentialsFile string) (*Store, error) {
	if strings.TrimSpace(spreadsheetID) == "" {
		return nil, fmt.Errorf("spreadsheet id is required")
	}
	if _, err := os.Stat(credentialsFile); os.IsNotExist(err) {
		return nil, fmt.Errorf("service account key not found at path: %s", credentialsFile)
	}
	svc, err := gsheets.NewService(ctx,
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(gsheets.SpreadsheetsScope),
	)
	if err != nil {
		return nil, fmt.Errorf("create sheets client: %w", err)
	}
	return newStore(&serviceValues{svc: svc}, spreadsheetID, sheetName), nil
}

func newStore(api valuesAPI, spreadsheetID, sheetName string) *Store {
	if sheetName == "" {
		sheetName = "Sheet1"
	}
	return &Store{api: api, spreadsheetID: spreadsheetID, sheetName: sheetName}
}

// Load reads all rows below the header. Rows are located by the "Keys" and
// "Text" header names; a sheet without both columns yields no entries.
func (s *Store) Load(ctx context.Context) ([]model.Entry, error) {
	rows, err := s.api.Get(ctx, s.spreadsheetID, s.rangeRef("A1:Z"))
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", s.sheetName, err)
	}
	entries := []model.Entry{}
	if len(rows) == 0 {
		return entries, nil
	}
	keysIdx, textIdx := -1, -1
	for i, h := range rows[0] {
		switch strings.TrimSpace(cellString(h)) {
		case KeysColumn:
			keysIdx = i
		case TextColumn:
			textIdx = i
		}
	}
	if keysIdx < 0 || textIdx < 0 {
		return entries, nil
	}
	for _, row := range rows[1:] {
		rawKeys := cellAt(row, keysIdx)
		text := cellAt(row, textIdx)
		if strings.TrimSpace(rawKeys) == "" && text == "" {
			continue
		}
		keys := []string{}
		for _, k := range strings.Split(rawKeys, ",") {
			k = strings.ToLower(strings.TrimSpace(k))
			if k != "" {
				keys = append(keys, k)
			}
		}
		entries = append(entries, model.Entry{Keys: keys, Text: text})
	}
	return entries, nil
}

// Save overwrites the sheet from A1 with the header and all entries, then
// clears rows left over from a longer previous list. Writing first means the
// sheet never shows an empty knowledge base in between.
func (s *Store) Save(ctx context.Context, entries []model.Entry) error {
	rows := make([][]any, 0, len(entries)+1)
	rows = append(rows, []any{KeysColumn, TextColumn})
	for _, e := range entries {
		rows = append(rows, []any{strings.Join(e.Keys, ","), e.Text})
	}
	if err := s.api.Update(ctx, s.spreadsheetID, s.rangeRef("A1"), rows); err != nil {
		return fmt.Errorf("write sheet %s: %w", s.sheetName, err)
	}
	tail := fmt.Sprintf("A%d:B", len(rows)+1)
	if err := s.api.Clear(ctx, s.spreadsheetID, s.rangeRef(tail)); err != nil {
		return fmt.Errorf("clear stale rows in sheet %s: %w", s.sheetName, err)
	}
	return nil
}

func (s *Store) rangeRef(cells string) string {
	return "'" + strings.ReplaceAll(s.sheetName, "'", "''") + "'!" + cells
}

func cellAt(row []any, idx int) string {
	if idx >= len(row) {
		return ""
	}
	return cellString(row[idx])
}

func cellString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

type serviceValues struct {
	svc *gsheets.Service
}

func (v *serviceValues) Get(ctx context.Context, spreadsheetID, rng string) ([][]any, error) {
	resp, err := v.svc.Spreadsheets.Values.Get(spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

func (v *serviceValues) Update(ctx context.Context, spreadsheetID, rng string, rows [][]any) error {
	_, err := v.svc.Spreadsheets.Values.Update(spreadsheetID, rng, &gsheets.ValueRange{Values: rows}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	return err
}

func (v *serviceValues) Clear(ctx context.Context, spreadsheetID, rng string) error {
	_, err := v.svc.Spreadsheets.Values.Clear(spreadsheetID, rng, &gsheets.ClearValuesRequest{}).Context(ctx).Do()
	return err
}
