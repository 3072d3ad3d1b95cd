package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/hyperjump/pdfqa/internal/models"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates a SQLite database at dsn and initializes the schema.
// ":memory:" gives a private in-memory database. Parent directories of a file path are created.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	if dsn == "" {
		dsn = ":memory:"
	}
	if dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: an in-memory database exists per connection, and sqlite has a single writer.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		filename TEXT NOT NULL,
		path TEXT,
		page_count INTEGER NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_documents_created_at ON documents(created_at);

	CREATE TABLE IF NOT EXISTS chat_turns (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		document_id TEXT NOT NULL,
		question TEXT NOT NULL,
		answer TEXT NOT NULL,
		sources TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_turns_document_id ON chat_turns(document_id, id);
	`
	_, err := db.Exec(schema)
	return err
}

// Register inserts the document. The history is the (empty) set of chat_turns rows for it.
func (s *SQLiteStore) Register(ctx context.Context, doc *models.Document) error {
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, filename, path, page_count, created_at) VALUES (?, ?, ?, ?, ?)`,
		doc.ID, doc.Filename, doc.Path, doc.PageCount, doc.CreatedAt,
	)
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		return ErrDuplicate
	}
	return err
}

// Get returns a document by ID.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*models.Document, error) {
	var doc models.Document
	var path sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, filename, path, page_count, created_at FROM documents WHERE id = ?`, id,
	).Scan(&doc.ID, &doc.Filename, &path, &doc.PageCount, &doc.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, err
	}
	doc.Path = path.String
	return &doc, nil
}

// List returns all documents, newest first.
func (s *SQLiteStore) List(ctx context.Context) ([]*models.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, filename, path, page_count, created_at FROM documents ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	docs := make([]*models.Document, 0)
	for rows.Next() {
		var doc models.Document
		var path sql.NullString
		if err := rows.Scan(&doc.ID, &doc.Filename, &path, &doc.PageCount, &doc.CreatedAt); err != nil {
			return nil, err
		}
		doc.Path = path.String
		docs = append(docs, &doc)
	}
	return docs, rows.Err()
}

// AppendTurn inserts the turn and reads back the history in one transaction.
func (s *SQLiteStore) AppendTurn(ctx context.Context, docID string, turn models.ChatTurn) ([]models.ChatTurn, error) {
	sources, err := json.Marshal(turn.Sources)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal sources: %w", err)
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM documents WHERE id = ?`, docID).Scan(&exists); err != nil {
		return nil, err
	}
	if exists == 0 {
		return nil, notFound(docID)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO chat_turns (document_id, question, answer, sources, created_at) VALUES (?, ?, ?, ?, ?)`,
		docID, turn.Question, turn.Answer, string(sources), turn.CreatedAt,
	); err != nil {
		return nil, err
	}
	turns, err := queryTurns(ctx, tx, docID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return turns, nil
}

// History returns the turns of a document in append order.
func (s *SQLiteStore) History(ctx context.Context, docID string) ([]models.ChatTurn, error) {
	if _, err := s.Get(ctx, docID); err != nil {
		return nil, err
	}
	return queryTurns(ctx, s.db, docID)
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryTurns(ctx context.Context, q queryer, docID string) ([]models.ChatTurn, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT question, answer, sources, created_at FROM chat_turns WHERE document_id = ? ORDER BY id`, docID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	turns := make([]models.ChatTurn, 0)
	for rows.Next() {
		var turn models.ChatTurn
		var sources sql.NullString
		if err := rows.Scan(&turn.Question, &turn.Answer, &sources, &turn.CreatedAt); err != nil {
			return nil, err
		}
		if sources.Valid && sources.String != "" {
			if err := json.Unmarshal([]byte(sources.String), &turn.Sources); err != nil {
				return nil, fmt.Errorf("failed to unmarshal sources: %w", err)
			}
		}
		turns = append(turns, turn)
	}
	return turns, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
