// Copyright 2025 Plansight
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// TakeoffElementRow is one persisted takeoff element. Specifications
// and notes are stored as JSON.
type TakeoffElementRow struct {
	ID             string
	ExtractionID   string
	ElementID      string
	ElementType    string
	PageNumber     int
	Confidence     float64
	Specifications string
	Notes          string
	Completeness   float64
}

// CreateTakeoffExtraction inserts a takeoff extraction run in
// processing state and returns its id.
func (s *Store) CreateTakeoffExtraction(ctx context.Context, documentID string) (string, error) {
	id := uuid.NewString()
	ts := now()
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO takeoff_extractions (id, document_id, status, created_at, updated_at)
		 VALUES (?, ?, 'processing', ?, ?)`), id, documentID, ts, ts)
	if err != nil {
		return "", fmt.Errorf("failed to create takeoff extraction: %w", err)
	}
	return id, nil
}

// StoreTakeoffElements writes a run's elements atomically and marks
// the extraction completed with its totals.
func (s *Store) StoreTakeoffElements(ctx context.Context, extractionID string, elements []TakeoffElementRow, costUSD float64, processingTimeMS int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, el := range elements {
			id := el.ID
			if id == "" {
				id = uuid.NewString()
			}
			_, err := tx.ExecContext(ctx, s.rebind(
				`INSERT INTO takeoff_elements (id, extraction_id, element_id, element_type, page_number, confidence, specifications, extraction_notes, completeness)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
				id, extractionID, el.ElementID, el.ElementType, el.PageNumber,
				el.Confidence, el.Specifications, el.Notes, el.Completeness)
			if err != nil {
				return fmt.Errorf("failed to store element %s: %w", el.ElementID, err)
			}
		}

		_, err := tx.ExecContext(ctx, s.rebind(
			`UPDATE takeoff_extractions
			 SET status = 'completed', element_count = ?, cost_usd = ?, processing_time_ms = ?, updated_at = ?
			 WHERE id = ?`),
			len(elements), costUSD, processingTimeMS, now(), extractionID)
		return err
	})
}

// FailTakeoffExtraction marks a run failed with its error.
func (s *Store) FailTakeoffExtraction(ctx context.Context, extractionID, errMsg string) error {
	_, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE takeoff_extractions SET status = 'failed', error = ?, updated_at = ? WHERE id = ?`),
		errMsg, now(), extractionID)
	return err
}

// GetTakeoffElements loads a run's elements.
func (s *Store) GetTakeoffElements(ctx context.Context, extractionID string) ([]TakeoffElementRow, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT id, extraction_id, element_id, element_type, page_number, confidence, specifications, extraction_notes, completeness
		 FROM takeoff_elements WHERE extraction_id = ? ORDER BY page_number, element_id`), extractionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load takeoff elements: %w", err)
	}
	defer rows.Close()

	var out []TakeoffElementRow
	for rows.Next() {
		var el TakeoffElementRow
		if err := rows.Scan(&el.ID, &el.ExtractionID, &el.ElementID, &el.ElementType,
			&el.PageNumber, &el.Confidence, &el.Specifications, &el.Notes, &el.Completeness); err != nil {
			return nil, err
		}
		out = append(out, el)
	}
	return out, rows.Err()
}
