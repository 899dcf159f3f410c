package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS searches title_records with PostgreSQL full-text search. It is the
// fallback when Meilisearch is down.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true. If Postgres is down the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search runs plainto_tsquery over title_records ranked by ts_rank.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	where := "to_tsvector('english', title) @@ plainto_tsquery('english', $1)"
	args := []any{q.Text}
	if q.Department != "" {
		where += " AND department = $2"
		args = append(args, q.Department)
	}

	ctx := context.Background()

	var total int
	countSQL := "SELECT count(*) FROM title_records WHERE " + where
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	dataSQL := fmt.Sprintf(`
		SELECT id, title,
			ts_headline('english', title, plainto_tsquery('english', $1), 'MaxFragments=1,MaxWords=30') AS snippet,
			submitted_by, department
		FROM title_records
		WHERE %s
		ORDER BY ts_rank(to_tsvector('english', title), plainto_tsquery('english', $1)) DESC
		LIMIT %d OFFSET %d`, where, limit, offset)

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.Title, &r.Snippet, &r.SubmittedBy, &r.Department); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// Suggest returns titles containing the prefix, case-insensitively.
func (p *PgFTS) Suggest(prefix, department string, limit int) ([]string, error) {
	if strings.TrimSpace(prefix) == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 8
	}

	where := "title ILIKE '%' || $1 || '%'"
	args := []any{prefix}
	if department != "" {
		where += " AND department = $2"
		args = append(args, department)
	}

	rows, err := p.db.QueryContext(context.Background(), fmt.Sprintf(`
		SELECT title FROM title_records
		WHERE %s
		ORDER BY submitted_at DESC
		LIMIT %d`, where, limit), args...)
	if err != nil {
		return nil, fmt.Errorf("pgfts suggest: %w", err)
	}
	defer rows.Close()

	var titles []string
	for rows.Next() {
		var title string
		if err := rows.Scan(&title); err != nil {
			return nil, fmt.Errorf("pgfts suggest scan: %w", err)
		}
		titles = append(titles, title)
	}
	return titles, rows.Err()
}

// LoadAllTitles returns every title record for full reindexing.
func (p *PgFTS) LoadAllTitles(ctx context.Context) ([]TitleDoc, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, title, submitted_by, department, EXTRACT(EPOCH FROM submitted_at)::bigint
		FROM title_records
	`)
	if err != nil {
		return nil, fmt.Errorf("load titles: %w", err)
	}
	defer rows.Close()

	docs := make([]TitleDoc, 0)
	for rows.Next() {
		var d TitleDoc
		if err := rows.Scan(&d.ID, &d.Title, &d.SubmittedBy, &d.Department, &d.SubmittedAt); err != nil {
			return nil, fmt.Errorf("scan title: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}
