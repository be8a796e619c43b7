package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher over the novels.search_vector column.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true; if Postgres is down the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search ranks public novels with plainto_tsquery and ts_rank, using
// ts_headline over the description for snippets.
func (p *PgFTS) Search(ctx context.Context, q Query) ([]Hit, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	where := "n.is_public AND n.search_vector @@ plainto_tsquery('simple', $1)"
	args := []any{q.Text}
	if genre := strings.TrimSpace(q.Genre); genre != "" {
		where += " AND LOWER(n.genre) = LOWER($2)"
		args = append(args, genre)
	}

	var total int
	if err := p.db.QueryRowContext(ctx,
		"SELECT count(*) FROM novels n WHERE "+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT n.id, n.title,
			ts_headline('simple', n.description, plainto_tsquery('simple', $1), 'MaxFragments=1,MaxWords=30,StartSel=<mark>,StopSel=</mark>')
		FROM novels n
		WHERE %s
		ORDER BY ts_rank(n.search_vector, plainto_tsquery('simple', $1)) DESC, n.created_at DESC
		LIMIT %d OFFSET %d`, where, normalizeLimit(q.Limit), offset), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.ID, &h.Title, &h.Snippet); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, total, rows.Err()
}

// LoadAllRecords returns every novel for a full reindex.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]NovelRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, owner_id, title, description, genre, is_public, created_at
		FROM novels
	`)
	if err != nil {
		return nil, fmt.Errorf("load novels: %w", err)
	}
	defer rows.Close()

	records := make([]NovelRecord, 0)
	for rows.Next() {
		var r NovelRecord
		var created sql.NullTime
		if err := rows.Scan(&r.ID, &r.OwnerID, &r.Title, &r.Description, &r.Genre, &r.IsPublic, &created); err != nil {
			return nil, fmt.Errorf("scan novel: %w", err)
		}
		if created.Valid {
			r.CreatedAt = created.Time.Unix()
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate novels: %w", err)
	}
	return records, nil
}
