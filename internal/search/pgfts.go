package search

import (
	"database/sql"
	"fmt"
	"strings"
)

// PgLike implements Searcher with a plain ILIKE scan over relative paths,
// the fallback when Meilisearch is unavailable. The library rarely exceeds
// a few thousand rows, so a sequential scan is acceptable.
type PgLike struct {
	db *sql.DB
}

// NewPgLike creates the Postgres fallback searcher.
func NewPgLike(db *sql.DB) *PgLike {
	return &PgLike{db: db}
}

// Healthy always returns true: if Postgres is down, the whole app is down.
func (p *PgLike) Healthy() bool {
	return true
}

// Search matches the query as a substring of the document's relative path,
// case-insensitively, ordered by path.
func (p *PgLike) Search(q Query) ([]Result, int, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" {
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

	pattern := "%" + escapeLike(text) + "%"
	rows, err := p.db.Query(`
		SELECT id, relative_path, file_type, file_modified_at,
			COUNT(*) OVER () AS total
		FROM documents
		WHERE relative_path ILIKE $1 ESCAPE '\'
		ORDER BY relative_path
		LIMIT $2 OFFSET $3
	`, pattern, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("pg search: %w", err)
	}
	defer rows.Close()

	var results []Result
	total := 0
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.RelativePath, &r.FileType, &r.FileModifiedAt, &total); err != nil {
			return nil, 0, fmt.Errorf("pg search scan: %w", err)
		}
		results = append(results, r)
	}
	return results, total, rows.Err()
}

func escapeLike(s string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(s)
}
