package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go-workbook-pipeline/internal/model"

	"github.com/google/uuid"
)

// CreateSpace stores a new space
func (s *DB) CreateSpace(ctx context.Context, space model.Space) (model.Space, error) {
	if space.ID == "" {
		space.ID = uuid.New().String()
	}
	meta, err := json.Marshal(space.Metadata)
	if err != nil {
		return model.Space{}, err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO spaces (id, name, metadata, created_at) VALUES (?, ?, ?, ?)`,
		space.ID, space.Name, string(meta), time.Now().UTC())
	if err != nil {
		return model.Space{}, err
	}
	return space, nil
}

// GetSpace fetches a space with its metadata
func (s *DB) GetSpace(ctx context.Context, id string) (model.Space, error) {
	var name string
	var meta sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT name, metadata FROM spaces WHERE id = ?`, id).Scan(&name, &meta)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Space{}, fmt.Errorf("space %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Space{}, err
	}

	space := model.Space{ID: id, Name: name}
	if meta.Valid && meta.String != "" && meta.String != "null" {
		if err := json.Unmarshal([]byte(meta.String), &space.Metadata); err != nil {
			return model.Space{}, fmt.Errorf("space %s has corrupt metadata: %w", id, err)
		}
	}
	return space, nil
}

// GetSpaceMetadata returns the caller metadata of a space
func (s *DB) GetSpaceMetadata(ctx context.Context, spaceID string) (map[string]interface{}, error) {
	space, err := s.GetSpace(ctx, spaceID)
	if err != nil {
		return nil, err
	}
	if space.Metadata == nil {
		return map[string]interface{}{}, nil
	}
	return space.Metadata, nil
}

// CreateWorkbook stores a new workbook
func (s *DB) CreateWorkbook(ctx context.Context, wb model.Workbook) (model.Workbook, error) {
	if wb.ID == "" {
		wb.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO workbooks (id, space_id, name, created_at) VALUES (?, ?, ?, ?)`,
		wb.ID, wb.SpaceID, wb.Name, time.Now().UTC())
	if err != nil {
		return model.Workbook{}, err
	}
	return wb, nil
}

// GetWorkbook fetches a workbook and its sheets
func (s *DB) GetWorkbook(ctx context.Context, id string) (model.Workbook, error) {
	wb := model.Workbook{ID: id}
	err := s.db.QueryRowContext(ctx, `SELECT space_id, name FROM workbooks WHERE id = ?`, id).Scan(&wb.SpaceID, &wb.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Workbook{}, fmt.Errorf("workbook %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Workbook{}, err
	}

	wb.Sheets, err = s.ListSheets(ctx, id)
	if err != nil {
		return model.Workbook{}, err
	}
	return wb, nil
}

// CreateSheet appends a sheet to a workbook
func (s *DB) CreateSheet(ctx context.Context, sheet model.Sheet) (model.Sheet, error) {
	if sheet.ID == "" {
		sheet.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO sheets (id, workbook_id, name, slug, position, created_at)
		VALUES (?, ?, ?, ?, (SELECT COALESCE(MAX(position), 0) + 1 FROM sheets WHERE workbook_id = ?), ?)`,
		sheet.ID, sheet.WorkbookID, sheet.Name, sheet.Slug, sheet.WorkbookID, time.Now().UTC())
	if err != nil {
		return model.Sheet{}, err
	}
	sheet.RecordCount = 0
	return sheet, nil
}

// ListSheets returns the sheets of a workbook in creation order with their
// current record counts.
func (s *DB) ListSheets(ctx context.Context, workbookID string) ([]model.Sheet, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT s.id, s.name, s.slug,
		(SELECT COUNT(*) FROM records r WHERE r.sheet_id = s.id)
		FROM sheets s WHERE s.workbook_id = ? ORDER BY s.position`, workbookID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sheets := []model.Sheet{}
	for rows.Next() {
		sh := model.Sheet{WorkbookID: workbookID}
		var slug sql.NullString
		if err := rows.Scan(&sh.ID, &sh.Name, &slug, &sh.RecordCount); err != nil {
			return nil, err
		}
		sh.Slug = slug.String
		sheets = append(sheets, sh)
	}
	return sheets, rows.Err()
}

// InsertRecords appends records to a sheet after its current last position.
func (s *DB) InsertRecords(ctx context.Context, sheetID string, records []model.Record) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var next int
		if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(position), 0) FROM records WHERE sheet_id = ?`, sheetID).Scan(&next); err != nil {
			return err
		}

		stmt, err := tx.PrepareContext(ctx, `INSERT INTO records (id, sheet_id, position, fields, processed, valid, messages, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		now := time.Now().UTC()
		for _, r := range records {
			next++
			if r.ID == "" {
				r.ID = uuid.New().String()
			}
			fields, err := json.Marshal(r.Fields)
			if err != nil {
				return fmt.Errorf("record %s: %w", r.ID, err)
			}
			msgs, err := json.Marshal(r.Metadata.Messages)
			if err != nil {
				return err
			}
			if _, err := stmt.ExecContext(ctx, r.ID, sheetID, next, string(fields),
				r.Metadata.Processed, nullBool(r.Metadata.Valid), string(msgs), now); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetRecordPage returns one 1-based page of a sheet in insertion order.
func (s *DB) GetRecordPage(ctx context.Context, sheetID string, pageNumber, pageSize int) ([]model.Record, error) {
	if pageNumber < 1 || pageSize < 1 {
		return nil, fmt.Errorf("invalid page %d/%d", pageNumber, pageSize)
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, fields, processed, valid, messages FROM records
		WHERE sheet_id = ? ORDER BY position LIMIT ? OFFSET ?`, sheetID, pageSize, (pageNumber-1)*pageSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []model.Record{}
	for rows.Next() {
		var (
			r        model.Record
			fields   string
			valid    sql.NullBool
			messages sql.NullString
		)
		if err := rows.Scan(&r.ID, &fields, &r.Metadata.Processed, &valid, &messages); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(fields), &r.Fields); err != nil {
			return nil, fmt.Errorf("record %s has corrupt fields: %w", r.ID, err)
		}
		if valid.Valid {
			v := valid.Bool
			r.Metadata.Valid = &v
		}
		if messages.Valid && messages.String != "" && messages.String != "null" {
			if err := json.Unmarshal([]byte(messages.String), &r.Metadata.Messages); err != nil {
				return nil, fmt.Errorf("record %s has corrupt messages: %w", r.ID, err)
			}
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// UpdateRecordMetadata writes the metadata of each record back
func (s *DB) UpdateRecordMetadata(ctx context.Context, records []model.Record) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `UPDATE records SET processed = ?, valid = ?, messages = ?, updated_at = ? WHERE id = ?`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		now := time.Now().UTC()
		for _, r := range records {
			msgs, err := json.Marshal(r.Metadata.Messages)
			if err != nil {
				return err
			}
			if _, err := stmt.ExecContext(ctx, r.Metadata.Processed, nullBool(r.Metadata.Valid), string(msgs), now, r.ID); err != nil {
				return err
			}
		}
		return nil
	})
}

// UpsertSecret stores a named secret for a space
func (s *DB) UpsertSecret(ctx context.Context, spaceID, name, value string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO secrets (space_id, name, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (space_id, name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		spaceID, name, value, time.Now().UTC())
	return err
}

// GetSecret reads a secret; a missing secret is "".
func (s *DB) GetSecret(ctx context.Context, spaceID, name string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM secrets WHERE space_id = ? AND name = ?`, spaceID, name).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

// Credentials resolves the submission credentials of a space from its secrets.
func (s *DB) Credentials(ctx context.Context, spaceID string) (model.Credentials, error) {
	var creds model.Credentials
	for name, dst := range map[string]*string{
		"customer_id": &creds.CustomerID,
		"api_key":     &creds.APIKey,
		"api_secret":  &creds.APISecret,
	} {
		v, err := s.GetSecret(ctx, spaceID, name)
		if err != nil {
			return model.Credentials{}, err
		}
		*dst = v
	}
	return creds, nil
}

func nullBool(b *bool) sql.NullBool {
	if b == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *b, Valid: true}
}
