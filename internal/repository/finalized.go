package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/joseph-ayodele/lease-intake/internal/common"
	"github.com/joseph-ayodele/lease-intake/internal/index"
)

const finalizedTable = "finalized_records"

// FinalizedRepository is the SQL-backed index of finalized records.
type FinalizedRepository struct {
	db     *DB
	logger *slog.Logger
}

var _ index.Index = (*FinalizedRepository)(nil)

// NewFinalizedRepository creates the table if needed.
func NewFinalizedRepository(ctx context.Context, db *DB, logger *slog.Logger) (*FinalizedRepository, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &FinalizedRepository{db: db, logger: logger}
	if err := r.migrate(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *FinalizedRepository) builder() *entsql.DialectBuilder {
	return entsql.Dialect(r.db.Dialect)
}

// same DDL works for Postgres and SQLite
const createFinalizedTable = `CREATE TABLE IF NOT EXISTS finalized_records (
	id         TEXT PRIMARY KEY,
	content    TEXT NOT NULL,
	metadata   TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
)`

func (r *FinalizedRepository) migrate(ctx context.Context) error {
	if _, err := r.db.SQL.ExecContext(ctx, createFinalizedTable); err != nil {
		r.logger.Error("failed to create finalized table", "error", err)
		return fmt.Errorf("create %s: %w", finalizedTable, err)
	}
	return nil
}

func (r *FinalizedRepository) Upsert(ctx context.Context, doc index.Document) error {
	if doc.ID == "" {
		return fmt.Errorf("%w: empty document id", common.ErrInvalidInput)
	}
	meta, err := json.Marshal(doc.Metadata)
	if err != nil {
		return err
	}
	query, args := r.builder().Insert(finalizedTable).
		Columns("id", "content", "metadata", "updated_at").
		Values(doc.ID, doc.Content, string(meta), time.Now().UTC()).
		OnConflict(
			entsql.ConflictColumns("id"),
			entsql.ResolveWithNewValues(),
		).
		Query()
	if _, err := r.db.SQL.ExecContext(ctx, query, args...); err != nil {
		r.logger.Error("failed to upsert finalized record", "id", doc.ID, "error", err)
		return fmt.Errorf("upsert %s: %w", doc.ID, err)
	}
	return nil
}

func (r *FinalizedRepository) Get(ctx context.Context, id string) (index.Document, error) {
	query, args := r.builder().Select("id", "content", "metadata").
		From(r.builder().Table(finalizedTable)).
		Where(entsql.EQ("id", id)).
		Query()
	row := r.db.SQL.QueryRowContext(ctx, query, args...)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return index.Document{}, fmt.Errorf("%w: %s", common.ErrNotFound, id)
	}
	return doc, err
}

func (r *FinalizedRepository) Delete(ctx context.Context, id string) error {
	query, args := r.builder().Delete(finalizedTable).
		Where(entsql.EQ("id", id)).
		Query()
	res, err := r.db.SQL.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", common.ErrNotFound, id)
	}
	return nil
}

// Query narrows candidates with LIKE on any query term, then ranks by term overlap.
func (r *FinalizedRepository) Query(ctx context.Context, q index.Query) ([]index.Hit, error) {
	sel := r.builder().Select("id", "content", "metadata").From(r.builder().Table(finalizedTable))
	if terms := index.Terms(q.Text); len(terms) > 0 {
		preds := make([]*entsql.Predicate, 0, 2*len(terms))
		for _, t := range terms {
			preds = append(preds, entsql.ContainsFold("content", t), entsql.ContainsFold("id", t))
		}
		sel = sel.Where(entsql.Or(preds...))
	}
	query, args := sel.OrderBy("id").Query()

	rows, err := r.db.SQL.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", finalizedTable, err)
	}
	defer rows.Close()

	var docs []index.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		if index.MatchesWhere(doc.Metadata, q.Where) {
			docs = append(docs, doc)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}
	return index.RankByTerms(q.Text, docs, limit), nil
}

func (r *FinalizedRepository) Close() error {
	return r.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(s scanner) (index.Document, error) {
	var (
		doc  index.Document
		meta string
	)
	if err := s.Scan(&doc.ID, &doc.Content, &meta); err != nil {
		return index.Document{}, err
	}
	if meta != "" && meta != "null" {
		if err := json.Unmarshal([]byte(meta), &doc.Metadata); err != nil {
			return index.Document{}, fmt.Errorf("decode metadata of %s: %w", doc.ID, err)
		}
	}
	return doc, nil
}
