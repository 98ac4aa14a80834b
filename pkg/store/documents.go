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
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/plansight/takeoff/pkg/extraction"
)

// DocumentStatus is the processing status of a document.
type DocumentStatus string

const (
	StatusPending    DocumentStatus = "pending"
	StatusProcessing DocumentStatus = "processing"
	StatusCompleted  DocumentStatus = "completed"
	StatusFailed     DocumentStatus = "failed"
)

// statusRank orders statuses for the monotone-transition check.
var statusRank = map[DocumentStatus]int{
	StatusPending:    0,
	StatusProcessing: 1,
	StatusCompleted:  2,
	StatusFailed:     2,
}

// Document is a stored document row.
type Document struct {
	ID              string
	Title           string
	MimeType        string
	SourceRef       string
	Status          DocumentStatus
	KnowledgeBaseID string
	IsActive        bool
	ChunkCount      int
	TokenCount      int
	ExtractionCost  float64
	QualityScore    float64
	Error           string
	CreatedAt       string
	UpdatedAt       string
}

// Page is a stored document page.
type Page struct {
	DocumentID  string
	PageNumber  int
	PageText    string
	WordCount   int
	TokenCount  int
	ImageWidth  int
	ImageHeight int
}

// CreateDocument inserts a new pending document and returns its id.
func (s *Store) CreateDocument(ctx context.Context, title, mimeType, sourceRef, knowledgeBaseID string) (string, error) {
	id := uuid.NewString()
	ts := now()
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO documents (id, title, mime_type, source_ref, status, knowledge_base_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		id, title, mimeType, sourceRef, string(StatusPending), knowledgeBaseID, ts, ts)
	if err != nil {
		return "", fmt.Errorf("failed to create document: %w", err)
	}
	return id, nil
}

// GetDocument loads a document by id, including inactive ones.
func (s *Store) GetDocument(ctx context.Context, id string) (*Document, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT id, title, mime_type, source_ref, status, knowledge_base_id, is_active,
		        chunk_count, token_count, extraction_cost_usd, extraction_quality_score,
		        error, created_at, updated_at
		 FROM documents WHERE id = ?`), id)

	var d Document
	var active int
	var status string
	err := row.Scan(&d.ID, &d.Title, &d.MimeType, &d.SourceRef, &status, &d.KnowledgeBaseID,
		&active, &d.ChunkCount, &d.TokenCount, &d.ExtractionCost, &d.QualityScore,
		&d.Error, &d.CreatedAt, &d.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load document: %w", err)
	}
	d.Status = DocumentStatus(status)
	d.IsActive = active == 1
	return &d, nil
}

// UpdateDocumentStatus transitions a document's status. Transitions
// are monotone, except failed documents may go back to processing on
// retry.
func (s *Store) UpdateDocumentStatus(ctx context.Context, id string, status DocumentStatus, errMsg string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var current string
		err := tx.QueryRowContext(ctx, s.rebind(`SELECT status FROM documents WHERE id = ?`), id).Scan(&current)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		from := DocumentStatus(current)
		retry := from == StatusFailed && status == StatusProcessing
		if !retry && statusRank[status] < statusRank[from] {
			return fmt.Errorf("invalid status transition %s -> %s", from, status)
		}

		_, err = tx.ExecContext(ctx, s.rebind(
			`UPDATE documents SET status = ?, error = ?, updated_at = ? WHERE id = ?`),
			string(status), errMsg, now(), id)
		return err
	})
}

// SoftDeleteDocument deactivates a document and cascades to its
// chunks in the same transaction.
func (s *Store) SoftDeleteDocument(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, s.rebind(
			`UPDATE documents SET is_active = 0, updated_at = ? WHERE id = ?`), now(), id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		_, err = tx.ExecContext(ctx, s.rebind(
			`UPDATE chunks SET is_active = 0 WHERE document_id = ?`), id)
		return err
	})
}

// RestoreDocument reactivates a soft-deleted document and its chunks,
// recovering them unchanged.
func (s *Store) RestoreDocument(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, s.rebind(
			`UPDATE documents SET is_active = 1, updated_at = ? WHERE id = ?`), now(), id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		_, err = tx.ExecContext(ctx, s.rebind(
			`UPDATE chunks SET is_active = 1 WHERE document_id = ?`), id)
		return err
	})
}

// StorePages writes document pages, replacing existing page rows.
func (s *Store) StorePages(ctx context.Context, documentID string, pages []Page) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, s.rebind(
			`DELETE FROM document_pages WHERE document_id = ?`), documentID); err != nil {
			return err
		}
		for _, p := range pages {
			_, err := tx.ExecContext(ctx, s.rebind(
				`INSERT INTO document_pages (id, document_id, page_number, page_text, word_count, token_count, image_width, image_height)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
				uuid.NewString(), documentID, p.PageNumber, p.PageText, p.WordCount, p.TokenCount, p.ImageWidth, p.ImageHeight)
			if err != nil {
				return fmt.Errorf("failed to store page %d: %w", p.PageNumber, err)
			}
		}
		return nil
	})
}

// GetPages loads a document's pages ordered by page number.
func (s *Store) GetPages(ctx context.Context, documentID string) ([]Page, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT document_id, page_number, page_text, word_count, token_count, image_width, image_height
		 FROM document_pages WHERE document_id = ? ORDER BY page_number`), documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load pages: %w", err)
	}
	defer rows.Close()

	var pages []Page
	for rows.Next() {
		var p Page
		if err := rows.Scan(&p.DocumentID, &p.PageNumber, &p.PageText, &p.WordCount, &p.TokenCount, &p.ImageWidth, &p.ImageHeight); err != nil {
			return nil, err
		}
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

// StoreExtraction atomically persists an extraction payload and
// updates the document's aggregates, quality score and status. Failed
// extractions are persisted too, for audit.
func (s *Store) StoreExtraction(ctx context.Context, documentID string, resp *extraction.Response, fileMetadata map[string]any, knowledgeBaseID string) (string, error) {
	extractionID := uuid.NewString()

	payload, err := json.Marshal(resp)
	if err != nil {
		return "", fmt.Errorf("failed to marshal extraction: %w", err)
	}
	warnings, err := json.Marshal(resp.Warnings)
	if err != nil {
		return "", fmt.Errorf("failed to marshal warnings: %w", err)
	}

	status := StatusCompleted
	if !resp.Success {
		status = StatusFailed
	}
	quality := QualityScore(resp)

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		success := 0
		if resp.Success {
			success = 1
		}
		if _, err := tx.ExecContext(ctx, s.rebind(
			`INSERT INTO extractions (id, document_id, success, payload, error, warnings, cost_usd, processing_time_ms, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			extractionID, documentID, success, string(payload), resp.Error, string(warnings),
			resp.CostUSD, resp.ProcessingTimeMS, now()); err != nil {
			return fmt.Errorf("failed to store extraction: %w", err)
		}

		tokenCount := len([]rune(resp.Text)) / 4
		res, err := tx.ExecContext(ctx, s.rebind(
			`UPDATE documents
			 SET status = ?, error = ?, token_count = ?, extraction_cost_usd = extraction_cost_usd + ?,
			     extraction_quality_score = ?, updated_at = ?
			 WHERE id = ?`),
			string(status), resp.Error, tokenCount, resp.CostUSD, quality, now(), documentID)
		if err != nil {
			return fmt.Errorf("failed to update document: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return extractionID, nil
}

// GetExtraction loads the latest extraction payload for a document.
func (s *Store) GetExtraction(ctx context.Context, documentID string) (*extraction.Response, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT payload FROM extractions WHERE document_id = ? ORDER BY created_at DESC LIMIT 1`), documentID)

	var payload string
	if err := row.Scan(&payload); err == sql.ErrNoRows {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to load extraction: %w", err)
	}

	var resp extraction.Response
	if err := json.Unmarshal([]byte(payload), &resp); err != nil {
		return nil, fmt.Errorf("failed to decode extraction payload: %w", err)
	}
	return &resp, nil
}

// QualityScore computes the deterministic extraction quality score:
// base 0.3 for success, bonuses for populated sections, a penalty per
// warning capped at 0.3, clamped to [0, 1]. Only the base term is
// gated on success; a cancelled run that merged partial content still
// scores its populated sections.
func QualityScore(resp *extraction.Response) float64 {
	if resp == nil {
		return 0
	}

	score := 0.0
	if resp.Success {
		score += 0.3
	}
	if resp.Text != "" {
		score += 0.2
	}
	if len(resp.Tables) > 0 {
		score += 0.15
	}
	if len(resp.LayoutBlocks) > 0 {
		score += 0.15
	}
	if len(resp.Entities) > 0 {
		score += 0.10
	}
	if resp.Summary != "" {
		score += 0.10
	}

	penalty := 0.1 * float64(len(resp.Warnings))
	if penalty > 0.3 {
		penalty = 0.3
	}
	score -= penalty

	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score
}
