package exports

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"sampleflow/internal/board"
	"sampleflow/pkg/domain"
)

// csvHeader is the fixed column layout of CSV exports. One row per card.
var csvHeader = []string{
	"column", "column_title", "card_id", "kind", "status_label",
	"well_id", "horizon", "sampling_date", "storage_location", "assigned_to",
	"methods", "completed_methods", "total_methods", "issue_reasons", "deleted_reason", "title",
}

type jsonDocument struct {
	ExportID   string      `json:"export_id"`
	Role       domain.Role `json:"role"`
	ExportedAt time.Time   `json:"exported_at"`
	Query      board.Query `json:"query"`
	Rows       int         `json:"rows"`
	Board      board.Board `json:"board"`
}

func render(f Format, b board.Board, r Record, at time.Time) ([]byte, int, error) {
	rows := len(b.Cards())
	switch f {
	case FormatJSON:
		payload, err := json.MarshalIndent(jsonDocument{
			ExportID:   r.ID,
			Role:       r.Role,
			ExportedAt: at,
			Query:      r.Query,
			Rows:       rows,
			Board:      b,
		}, "", "  ")
		if err != nil {
			return nil, 0, fmt.Errorf("marshal json: %w", err)
		}
		return payload, rows, nil
	case FormatCSV:
		payload, err := renderCSV(b)
		return payload, rows, err
	}
	return nil, 0, fmt.Errorf("unsupported format %q", f)
}

func renderCSV(b board.Board) ([]byte, error) {
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}
	for _, col := range b.Columns {
		for _, c := range col.Cards {
			if err := w.Write(cardRow(col, c)); err != nil {
				return nil, err
			}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func cardRow(col board.Column, c board.Card) []string {
	row := make([]string, len(csvHeader))
	row[0] = col.ID
	row[1] = col.Title
	row[2] = c.ID
	row[3] = string(c.Kind)
	row[4] = c.StatusLabel
	if s := c.Sample; s != nil {
		row[5] = s.WellID
		row[6] = s.Horizon
		row[7] = s.SamplingDate
		row[8] = s.StorageLocation
		row[9] = s.AssignedTo
	}
	row[10] = formatMethods(c.Methods)
	row[11] = fmt.Sprint(c.CompletedMethods())
	row[12] = fmt.Sprint(len(c.Methods))
	row[13] = strings.Join(c.IssueReasons, "; ")
	row[14] = c.DeletedReason
	if c.Batch != nil {
		row[15] = c.Batch.Title
	}
	return row
}

// formatMethods renders "SARA:completed;IR:planned".
func formatMethods(methods []domain.Method) string {
	parts := make([]string, len(methods))
	for i, m := range methods {
		parts[i] = m.Name + ":" + string(m.Status)
	}
	return strings.Join(parts, ";")
}
