package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrRowOutOfRange is returned when a row index does not exist in the sheet.
	ErrRowOutOfRange = errors.New("row index out of range")

	// ErrRowMismatch is returned by guarded writes when the row at the
	// given position no longer carries the expected key.
	ErrRowMismatch = errors.New("row does not hold the expected key")
)

// SheetStore keeps an ordered list of string rows in SQLite, the way a
// spreadsheet tab does. Row 0 is the header. Positions are kept contiguous:
// deleting a row shifts every later row up by one.
type SheetStore struct {
	BaseRepository
	sheet string
}

// NewSheetStore creates a store for the named sheet.
func NewSheetStore(db *DB, sheet string) *SheetStore {
	return &SheetStore{
		BaseRepository: NewBaseRepository(db),
		sheet:          sheet,
	}
}

// Name returns the sheet name.
func (s *SheetStore) Name() string {
	return s.sheet
}

// EnsureHeader writes the header row if the sheet is empty.
func (s *SheetStore) EnsureHeader(ctx context.Context, header []string) error {
	var count int
	if err := s.DB().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sheet_rows WHERE sheet = ?", s.sheet,
	).Scan(&count); err != nil {
		return fmt.Errorf("counting rows: %w", err)
	}
	if count > 0 {
		return nil
	}
	return s.AppendRow(ctx, header)
}

// Rows returns every row in position order, header included.
func (s *SheetStore) Rows(ctx context.Context) ([][]string, error) {
	rows, err := s.DB().QueryContext(ctx, `
		SELECT cells FROM sheet_rows WHERE sheet = ? ORDER BY position
	`, s.sheet)
	if err != nil {
		return nil, fmt.Errorf("querying rows: %w", err)
	}
	defer rows.Close()

	var result [][]string
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		var cells []string
		if err := json.Unmarshal([]byte(raw), &cells); err != nil {
			return nil, fmt.Errorf("decoding row cells: %w", err)
		}
		result = append(result, cells)
	}

	return result, rows.Err()
}

// AppendRow adds a row after the last one.
func (s *SheetStore) AppendRow(ctx context.Context, cells []string) error {
	raw, err := json.Marshal(cells)
	if err != nil {
		return fmt.Errorf("encoding row cells: %w", err)
	}

	return s.Transaction(ctx, func(tx *sql.Tx) error {
		var next int
		if err := tx.QueryRowContext(ctx,
			"SELECT COALESCE(MAX(position) + 1, 0) FROM sheet_rows WHERE sheet = ?", s.sheet,
		).Scan(&next); err != nil {
			return fmt.Errorf("finding next position: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sheet_rows (sheet, position, cells, updated_at) VALUES (?, ?, ?, ?)
		`, s.sheet, next, string(raw), s.Now()); err != nil {
			return fmt.Errorf("inserting row: %w", err)
		}
		return nil
	})
}

// UpdateCell sets a single cell, padding the row with empty cells if it is
// shorter than col.
func (s *SheetStore) UpdateCell(ctx context.Context, row, col int, value string) error {
	return s.updateCell(ctx, row, col, value, nil)
}

// UpdateCellIf is UpdateCell that first checks, in the same transaction,
// that cell keyCol of the row still holds key. It returns ErrRowMismatch
// if the row has moved.
func (s *SheetStore) UpdateCellIf(ctx context.Context, row, col int, value string, keyCol int, key string) error {
	return s.updateCell(ctx, row, col, value, &rowKey{col: keyCol, value: key})
}

// DeleteRow removes a row and shifts the rows below it up.
func (s *SheetStore) DeleteRow(ctx context.Context, row int) error {
	return s.deleteRow(ctx, row, nil)
}

// DeleteRowIf is DeleteRow guarded like UpdateCellIf.
func (s *SheetStore) DeleteRowIf(ctx context.Context, row, keyCol int, key string) error {
	return s.deleteRow(ctx, row, &rowKey{col: keyCol, value: key})
}

// rowKey identifies the row a guarded write expects at a position.
type rowKey struct {
	col   int
	value string
}

func (k *rowKey) matches(cells []string) bool {
	if k == nil {
		return true
	}
	return k.col < len(cells) && strings.TrimSpace(cells[k.col]) == strings.TrimSpace(k.value)
}

func (s *SheetStore) updateCell(ctx context.Context, row, col int, value string, key *rowKey) error {
	if col < 0 {
		return fmt.Errorf("invalid column %d", col)
	}

	return s.Transaction(ctx, func(tx *sql.Tx) error {
		cells, err := s.loadRow(ctx, tx, row)
		if err != nil {
			return err
		}
		if !key.matches(cells) {
			return fmt.Errorf("%w: row %d", ErrRowMismatch, row)
		}
		for len(cells) <= col {
			cells = append(cells, "")
		}
		cells[col] = value

		updated, err := json.Marshal(cells)
		if err != nil {
			return fmt.Errorf("encoding row cells: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE sheet_rows SET cells = ?, updated_at = ? WHERE sheet = ? AND position = ?
		`, string(updated), s.Now(), s.sheet, row)
		return err
	})
}

func (s *SheetStore) deleteRow(ctx context.Context, row int, key *rowKey) error {
	return s.Transaction(ctx, func(tx *sql.Tx) error {
		cells, err := s.loadRow(ctx, tx, row)
		if err != nil {
			return err
		}
		if !key.matches(cells) {
			return fmt.Errorf("%w: row %d", ErrRowMismatch, row)
		}

		if _, err := tx.ExecContext(ctx,
			"DELETE FROM sheet_rows WHERE sheet = ? AND position = ?", s.sheet, row); err != nil {
			return fmt.Errorf("deleting row %d: %w", row, err)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE sheet_rows SET position = position - 1 WHERE sheet = ? AND position > ?
		`, s.sheet, row); err != nil {
			return fmt.Errorf("shifting rows: %w", err)
		}
		return nil
	})
}

func (s *SheetStore) loadRow(ctx context.Context, tx *sql.Tx, row int) ([]string, error) {
	var raw string
	err := tx.QueryRowContext(ctx,
		"SELECT cells FROM sheet_rows WHERE sheet = ? AND position = ?", s.sheet, row,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %d", ErrRowOutOfRange, row)
	}
	if err != nil {
		return nil, fmt.Errorf("querying row %d: %w", row, err)
	}

	var cells []string
	if err := json.Unmarshal([]byte(raw), &cells); err != nil {
		return nil, fmt.Errorf("decoding row cells: %w", err)
	}
	return cells, nil
}
