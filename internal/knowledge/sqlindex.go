package knowledge

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite" // pure-Go SQLite driver, no CGO

	"github.com/agentcore/orchestrator/pkg/types"
)

// SQLIndex is an optional secondary search index for the Knowledge Store,
// backed by SQLite. The append-only JSON files under .planning/knowledge/
// remain the source of truth; SQLIndex exists purely to let Search scale
// past an in-process linear scan once a project accumulates many entries,
// and to let external tooling query knowledge with plain SQL.
type SQLIndex struct {
	db *sql.DB
}

// OpenSQLIndex opens (creating if needed) a SQLite database at path and
// ensures its schema exists. path may be ":memory:" for a process-local
// index that isn't meant to survive restarts.
func OpenSQLIndex(path string) (*SQLIndex, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite index: %w", err)
	}

	idx := &SQLIndex{db: db}
	if err := idx.init(); err != nil {
		db.Close()
		return nil, err
	}
	return idx, nil
}

func (idx *SQLIndex) init() error {
	_, err := idx.db.Exec(`
		CREATE TABLE IF NOT EXISTS knowledge_entries (
			id TEXT PRIMARY KEY,
			project TEXT NOT NULL,
			type TEXT NOT NULL,
			title TEXT NOT NULL,
			content TEXT NOT NULL,
			tags TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create knowledge_entries table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_knowledge_project ON knowledge_entries(project)",
		"CREATE INDEX IF NOT EXISTS idx_knowledge_created ON knowledge_entries(created_at)",
	}
	for _, stmt := range indexes {
		if _, err := idx.db.Exec(stmt); err != nil {
			return fmt.Errorf("create knowledge index: %w", err)
		}
	}
	return nil
}

// Close releases the underlying database handle.
func (idx *SQLIndex) Close() error {
	return idx.db.Close()
}

// Upsert writes entry's searchable fields into the index, replacing any
// prior row with the same ID. Called on the same path as the JSON-file
// write so the two never drift for long.
func (idx *SQLIndex) Upsert(ctx context.Context, entry *types.KnowledgeEntry) error {
	_, err := idx.db.ExecContext(ctx, `
		INSERT INTO knowledge_entries (id, project, type, title, content, tags, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			project = excluded.project,
			type = excluded.type,
			title = excluded.title,
			content = excluded.content,
			tags = excluded.tags,
			created_at = excluded.created_at
	`, entry.ID, entry.Project, string(entry.Type), entry.Title, entry.Content, strings.Join(entry.Tags, ","), entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert knowledge entry %s: %w", entry.ID, err)
	}
	return nil
}

// SearchIDs returns up to k entry IDs in project ranked by a tag > title >
// content substring match, ties broken by recency then ID, mirroring
// matchRelevance/recencyWeight's ordering so callers see identical ranking
// whether the in-memory or SQL path serves a query.
func (idx *SQLIndex) SearchIDs(ctx context.Context, project, query string, k int) ([]string, error) {
	if k <= 0 {
		k = DefaultK
	}
	needle := strings.ToLower(strings.TrimSpace(query))

	rows, err := idx.db.QueryContext(ctx, `
		SELECT id,
			(CASE WHEN instr(lower(tags), ?) > 0 THEN 3 ELSE 0 END) +
			(CASE WHEN instr(lower(title), ?) > 0 THEN 2 ELSE 0 END) +
			(CASE WHEN instr(lower(content), ?) > 0 THEN 1 ELSE 0 END) AS score
		FROM knowledge_entries
		WHERE project = ?
		HAVING score > 0
		ORDER BY score DESC, created_at DESC, id ASC
		LIMIT ?
	`, needle, needle, needle, project, k)
	if err != nil {
		return nil, fmt.Errorf("search knowledge index: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		var score int
		if err := rows.Scan(&id, &score); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Remove deletes entry id from the index, used when a caller prunes an
// entry file directly (see Store.Add's comment on manual deletion).
func (idx *SQLIndex) Remove(ctx context.Context, id string) error {
	_, err := idx.db.ExecContext(ctx, `DELETE FROM knowledge_entries WHERE id = ?`, id)
	return err
}
