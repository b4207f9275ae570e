// Package knowledge implements the Knowledge Store: a per-project,
// append-mostly collection of typed, tagged notes with a regenerable search
// index, feeding the Self-Improvement Hooks' pre-task retrieval.
package knowledge

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"
	"github.com/oklog/ulid/v2"

	"github.com/agentcore/orchestrator/internal/storage"
	"github.com/agentcore/orchestrator/pkg/types"
)

const (
	planningDir  = ".planning"
	knowledgeDir = "knowledge"
)

// DefaultK is the default number of results Search returns.
const DefaultK = 10

var allTypes = []types.KnowledgeType{
	types.KnowledgeTechnicalDecision,
	types.KnowledgeLearning,
	types.KnowledgePattern,
	types.KnowledgeReference,
	types.KnowledgeContext,
	types.KnowledgeBestPractice,
	types.KnowledgeLessonLearned,
}

// Store is the per-project knowledge base.
type Store struct {
	storage *storage.Storage
	sql     *SQLIndex
}

// New creates a Store over an existing Storage rooted at the projects
// directory (`<projects>/<name>/.planning/knowledge/...`).
func New(s *storage.Storage) *Store {
	return &Store{storage: s}
}

// WithSQLIndex attaches a SQLite-backed secondary index; while one is
// attached, Search ranks through it instead of the in-memory scan.
// The JSON files stay authoritative; idx is kept in sync on every Add/Link.
func (s *Store) WithSQLIndex(idx *SQLIndex) *Store {
	s.sql = idx
	return s
}

func entryPath(project string, typ types.KnowledgeType, id string) []string {
	return []string{project, planningDir, knowledgeDir, string(typ), id}
}

func indexPath(project string) []string {
	return []string{project, planningDir, knowledgeDir, "index"}
}

type indexFile struct {
	Entries []types.KnowledgeEntry `json:"entries"`
}

func (s *Store) loadIndex(ctx context.Context, project string) (*indexFile, error) {
	var idx indexFile
	err := s.storage.Get(ctx, indexPath(project), &idx)
	if err == storage.ErrNotFound {
		if rebuildErr := s.RebuildIndex(ctx, project); rebuildErr != nil {
			return nil, rebuildErr
		}
		if err := s.storage.Get(ctx, indexPath(project), &idx); err != nil {
			return nil, err
		}
		return &idx, nil
	}
	if err != nil {
		return nil, err
	}
	return &idx, nil
}

// RebuildIndex regenerates index.json from the entry files on disk. The
// index is a cache; entry files are the source of truth, so a corrupted or
// missing index never loses data.
func (s *Store) RebuildIndex(ctx context.Context, project string) error {
	var entries []types.KnowledgeEntry
	for _, typ := range allTypes {
		ids, err := s.storage.List(ctx, []string{project, planningDir, knowledgeDir, string(typ)})
		if err != nil {
			continue
		}
		for _, id := range ids {
			var e types.KnowledgeEntry
			if err := s.storage.Get(ctx, entryPath(project, typ, id), &e); err == nil {
				entries = append(entries, e)
			}
		}
	}
	return s.storage.Put(ctx, indexPath(project), &indexFile{Entries: entries})
}

// Add appends a new entry to its per-type folder and updates the index.
// Entries are never deleted by this path (auto-capture is append-only);
// only manual deletion is supported, and this Store doesn't expose one —
// callers delete entry files directly if ever needed.
func (s *Store) Add(ctx context.Context, entry *types.KnowledgeEntry) error {
	if entry.ID == "" {
		entry.ID = strings.ToLower(ulid.Make().String())
	}
	if entry.CreatedAt == 0 {
		entry.CreatedAt = time.Now().UnixMilli()
	}

	if err := s.storage.Put(ctx, entryPath(entry.Project, entry.Type, entry.ID), entry); err != nil {
		return err
	}

	idx, err := s.loadIndexTolerant(ctx, entry.Project)
	if err != nil {
		return err
	}
	idx.Entries = append(idx.Entries, *entry)
	if err := s.storage.Put(ctx, indexPath(entry.Project), idx); err != nil {
		return err
	}

	if s.sql != nil {
		if err := s.sql.Upsert(ctx, entry); err != nil {
			return err
		}
	}
	return nil
}

// loadIndexTolerant loads the index, treating "not found" as empty rather
// than triggering a full rebuild (used on the Add hot path, where there's
// nothing yet to rebuild from on a brand new project).
func (s *Store) loadIndexTolerant(ctx context.Context, project string) (*indexFile, error) {
	var idx indexFile
	err := s.storage.Get(ctx, indexPath(project), &idx)
	if err != nil && err != storage.ErrNotFound {
		return nil, err
	}
	return &idx, nil
}

// Get retrieves a single entry by id, scanning the index for its type.
func (s *Store) Get(ctx context.Context, project, id string) (*types.KnowledgeEntry, error) {
	idx, err := s.loadIndex(ctx, project)
	if err != nil {
		return nil, err
	}
	for i := range idx.Entries {
		if idx.Entries[i].ID == id {
			e := idx.Entries[i]
			return &e, nil
		}
	}
	return nil, storage.ErrNotFound
}

// List returns every entry in project.
func (s *Store) List(ctx context.Context, project string) ([]*types.KnowledgeEntry, error) {
	idx, err := s.loadIndex(ctx, project)
	if err != nil {
		return nil, err
	}
	out := make([]*types.KnowledgeEntry, len(idx.Entries))
	for i := range idx.Entries {
		out[i] = &idx.Entries[i]
	}
	return out, nil
}

// Link associates entryID with taskID (idempotent). The pairing is
// stored entry-side in LinkedTasks; the task side of the relation is
// resolved by scanning entries, so task files never go stale when an
// entry is hand-deleted.
func (s *Store) Link(ctx context.Context, project, entryID, taskID string) error {
	entry, err := s.Get(ctx, project, entryID)
	if err != nil {
		return err
	}
	for _, t := range entry.LinkedTasks {
		if t == taskID {
			return nil
		}
	}
	entry.LinkedTasks = append(entry.LinkedTasks, taskID)

	if err := s.storage.Put(ctx, entryPath(project, entry.Type, entry.ID), entry); err != nil {
		return err
	}
	if err := s.upsertIndexEntry(ctx, project, entry); err != nil {
		return err
	}

	if s.sql != nil {
		if err := s.sql.Upsert(ctx, entry); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) upsertIndexEntry(ctx context.Context, project string, entry *types.KnowledgeEntry) error {
	idx, err := s.loadIndexTolerant(ctx, project)
	if err != nil {
		return err
	}
	for i := range idx.Entries {
		if idx.Entries[i].ID == entry.ID {
			idx.Entries[i] = *entry
			return s.storage.Put(ctx, indexPath(project), idx)
		}
	}
	idx.Entries = append(idx.Entries, *entry)
	return s.storage.Put(ctx, indexPath(project), idx)
}

// scored pairs an entry with its search relevance for ranking.
type scored struct {
	entry *types.KnowledgeEntry
	score float64
}

// Search ranks entries in project by substring match against title/content
// and exact match against tags, weighted by recency, returning the top k
// (DefaultK if k <= 0). Deterministic: ties break by CreatedAt descending,
// then ID, so repeated calls with the same index return the same order.
func (s *Store) Search(ctx context.Context, project, query string, k int) ([]*types.KnowledgeEntry, error) {
	if k <= 0 {
		k = DefaultK
	}
	idx, err := s.loadIndex(ctx, project)
	if err != nil {
		return nil, err
	}

	if s.sql != nil {
		return s.searchSQL(ctx, idx, project, query, k)
	}

	needle := strings.ToLower(strings.TrimSpace(query))
	now := time.Now().UnixMilli()

	var candidates []scored
	for i := range idx.Entries {
		e := &idx.Entries[i]
		matchScore := matchRelevance(e, needle)
		if matchScore <= 0 {
			continue
		}
		candidates = append(candidates, scored{entry: e, score: matchScore * recencyWeight(now, e.CreatedAt)})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		if candidates[i].entry.CreatedAt != candidates[j].entry.CreatedAt {
			return candidates[i].entry.CreatedAt > candidates[j].entry.CreatedAt
		}
		return candidates[i].entry.ID < candidates[j].entry.ID
	})

	if len(candidates) > k {
		candidates = candidates[:k]
	}
	out := make([]*types.KnowledgeEntry, len(candidates))
	for i, c := range candidates {
		out[i] = c.entry
	}
	return out, nil
}

// searchSQL serves Search from the attached SQLite index: it resolves
// ranked IDs there, then hydrates full entries from the in-memory index so
// callers always see the latest JSON-file contents regardless of which
// path answered the ranking.
func (s *Store) searchSQL(ctx context.Context, idx *indexFile, project, query string, k int) ([]*types.KnowledgeEntry, error) {
	ids, err := s.sql.SearchIDs(ctx, project, query, k)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*types.KnowledgeEntry, len(idx.Entries))
	for i := range idx.Entries {
		byID[idx.Entries[i].ID] = &idx.Entries[i]
	}

	out := make([]*types.KnowledgeEntry, 0, len(ids))
	for _, id := range ids {
		if e, ok := byID[id]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

// fuzzyTagMaxDistance bounds the Levenshtein distance a tag may be from the
// query and still count as a fuzzy match, scaled to the needle's length so a
// single typo in a long keyword still matches but two characters of a short
// one don't.
const fuzzyTagMaxDistance = 2

// matchRelevance returns 0 if needle matches nothing on e, else a positive
// score: an exact tag match counts for more than a title match, which counts
// for more than a content-only match, matching the intuition that a
// deliberately tagged entry is a stronger match than an incidental content
// substring. A tag within a small edit distance of the needle (but not an
// exact substring) scores lower than an exact tag match but still above a
// pure content hit, since pre-task retrieval's keyword-extracted queries
// (singular, lowercased, stemmed-ish tokens) often miss an exact tag by a
// character or two.
func matchRelevance(e *types.KnowledgeEntry, needle string) float64 {
	if needle == "" {
		return 1
	}
	var score float64
	for _, tag := range e.Tags {
		lowerTag := strings.ToLower(tag)
		switch {
		case strings.Contains(lowerTag, needle):
			score += 3
		case fuzzyTagMatch(lowerTag, needle):
			score += 1.5
		}
	}
	if strings.Contains(strings.ToLower(e.Title), needle) {
		score += 2
	}
	if strings.Contains(strings.ToLower(e.Content), needle) {
		score += 1
	}
	return score
}

// fuzzyTagMatch reports whether tag is within fuzzyTagMaxDistance edits of
// needle, bounded further by needle's own length so very short queries
// require a near-exact match rather than matching almost anything.
func fuzzyTagMatch(tag, needle string) bool {
	maxDist := fuzzyTagMaxDistance
	if len(needle) <= maxDist {
		maxDist = len(needle) - 1
	}
	if maxDist <= 0 {
		return false
	}
	return levenshtein.ComputeDistance(tag, needle) <= maxDist
}

// recencyWeight decays geometrically with age in days, halving every 30
// days, so older entries rank below newer ones of equal textual relevance.
func recencyWeight(nowMillis, createdAtMillis int64) float64 {
	ageDays := float64(nowMillis-createdAtMillis) / float64(24*time.Hour/time.Millisecond)
	if ageDays < 0 {
		ageDays = 0
	}
	const halfLifeDays = 30.0
	return math.Pow(2, -ageDays/halfLifeDays)
}

// Summary aggregates per-project knowledge counts by type and source.
type Summary struct {
	Project     string                   `json:"project"`
	CountByType map[types.KnowledgeType]int `json:"countByType"`
	Total       int                      `json:"total"`
}

// GetSummary returns counts by type for project.
func (s *Store) GetSummary(ctx context.Context, project string) (*Summary, error) {
	idx, err := s.loadIndex(ctx, project)
	if err != nil {
		return nil, err
	}
	sum := &Summary{Project: project, CountByType: make(map[types.KnowledgeType]int)}
	for _, e := range idx.Entries {
		sum.CountByType[e.Type]++
		sum.Total++
	}
	return sum, nil
}
