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

// Package store is the relational document store: documents, pages,
// chunks, knowledge bases, extractions, takeoff elements and query
// records. Every mutation flows through this package and runs in a
// transaction.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/plansight/takeoff/pkg/config"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// Store wraps the SQL database.
type Store struct {
	db     *sql.DB
	driver string
}

// Open connects to the configured database and applies the schema.
func Open(cfg config.DatabaseConfig) (*Store, error) {
	cfg.SetDefaults()

	dsn := cfg.DSN
	if cfg.Driver == "sqlite3" {
		if dir := filepath.Dir(dsn); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		// A busy timeout and WAL journaling make concurrent queries
		// wait for locks instead of failing at once with SQLITE_BUSY.
		dsn += "?_busy_timeout=5000&_journal_mode=WAL"
	}

	db, err := sql.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &Store{db: db, driver: cfg.Driver}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// migrate applies the schema.
func (s *Store) migrate() error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// rebind converts ?-placeholders to $N for postgres.
func (s *Store) rebind(query string) string {
	if s.driver != "postgres" {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&sb, "$%d", n)
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// withTx runs fn inside a transaction, rolling back on error.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		mime_type TEXT NOT NULL DEFAULT '',
		source_ref TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'pending',
		knowledge_base_id TEXT NOT NULL,
		is_active INTEGER NOT NULL DEFAULT 1,
		chunk_count INTEGER NOT NULL DEFAULT 0,
		token_count INTEGER NOT NULL DEFAULT 0,
		extraction_cost_usd REAL NOT NULL DEFAULT 0,
		extraction_quality_score REAL NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_documents_kb ON documents(knowledge_base_id)`,

	`CREATE TABLE IF NOT EXISTS document_pages (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		page_number INTEGER NOT NULL,
		page_text TEXT NOT NULL DEFAULT '',
		word_count INTEGER NOT NULL DEFAULT 0,
		token_count INTEGER NOT NULL DEFAULT 0,
		image_width INTEGER NOT NULL DEFAULT 0,
		image_height INTEGER NOT NULL DEFAULT 0,
		UNIQUE(document_id, page_number)
	)`,

	`CREATE TABLE IF NOT EXISTS chunks (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		kind TEXT NOT NULL,
		content TEXT NOT NULL,
		token_count INTEGER NOT NULL DEFAULT 0,
		page INTEGER NOT NULL DEFAULT 0,
		parent_chunk_id TEXT,
		vector_id TEXT NOT NULL DEFAULT '',
		retrieval_count INTEGER NOT NULL DEFAULT 0,
		avg_relevance REAL NOT NULL DEFAULT 0,
		is_active INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		UNIQUE(document_id, chunk_index)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id)`,

	`CREATE TABLE IF NOT EXISTS knowledge_bases (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		document_count INTEGER NOT NULL DEFAULT 0,
		chunk_count INTEGER NOT NULL DEFAULT 0,
		token_count INTEGER NOT NULL DEFAULT 0,
		embedding_cost_usd REAL NOT NULL DEFAULT 0,
		chunk_size INTEGER NOT NULL DEFAULT 1000,
		chunk_overlap INTEGER NOT NULL DEFAULT 200,
		similarity_top_k INTEGER NOT NULL DEFAULT 5,
		mmr_diversity_bias REAL NOT NULL DEFAULT 0.3,
		retrieval_strategy TEXT NOT NULL DEFAULT 'similarity',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS vector_indexes (
		id TEXT PRIMARY KEY,
		knowledge_base_id TEXT NOT NULL,
		metric TEXT NOT NULL DEFAULT 'cosine',
		dimension INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'initializing',
		vector_count INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_vector_indexes_kb ON vector_indexes(knowledge_base_id)`,

	`CREATE TABLE IF NOT EXISTS extractions (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		success INTEGER NOT NULL,
		payload TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		warnings TEXT NOT NULL DEFAULT '[]',
		cost_usd REAL NOT NULL DEFAULT 0,
		processing_time_ms INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_extractions_document ON extractions(document_id)`,

	`CREATE TABLE IF NOT EXISTS takeoff_extractions (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'processing',
		element_count INTEGER NOT NULL DEFAULT 0,
		cost_usd REAL NOT NULL DEFAULT 0,
		processing_time_ms INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS takeoff_elements (
		id TEXT PRIMARY KEY,
		extraction_id TEXT NOT NULL,
		element_id TEXT NOT NULL,
		element_type TEXT NOT NULL,
		page_number INTEGER NOT NULL DEFAULT 1,
		confidence REAL NOT NULL DEFAULT 1,
		specifications TEXT NOT NULL DEFAULT '{}',
		extraction_notes TEXT NOT NULL DEFAULT '{}',
		completeness REAL NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_takeoff_elements_extraction ON takeoff_elements(extraction_id)`,

	`CREATE TABLE IF NOT EXISTS rag_queries (
		id TEXT PRIMARY KEY,
		knowledge_base_id TEXT NOT NULL,
		query_text TEXT NOT NULL,
		strategy TEXT NOT NULL DEFAULT 'similarity',
		top_k INTEGER NOT NULL DEFAULT 5,
		embedding_ms INTEGER NOT NULL DEFAULT 0,
		retrieval_ms INTEGER NOT NULL DEFAULT 0,
		reranking_ms INTEGER NOT NULL DEFAULT 0,
		total_ms INTEGER NOT NULL DEFAULT 0,
		cost_usd REAL NOT NULL DEFAULT 0,
		feedback TEXT NOT NULL DEFAULT '',
		session_id TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS rag_query_results (
		id TEXT PRIMARY KEY,
		query_id TEXT NOT NULL,
		chunk_id TEXT NOT NULL,
		rank INTEGER NOT NULL,
		relevance_score REAL NOT NULL DEFAULT 0,
		rerank_score REAL,
		human_relevance INTEGER
	)`,
	`CREATE INDEX IF NOT EXISTS idx_rag_query_results_query ON rag_query_results(query_id)`,
}
