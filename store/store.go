// Package store persists investigation history and the entities observed
// across them, and caches tool results. Reputation lookups are answered from
// how often an entity has appeared in prior investigations.
package store

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"sort"
	"strings"
	"time"
)

// Entity is a deduplicated observable tracked across investigations.
// Frequency counts how many investigations it appeared in.
type Entity struct {
	ID        int64     `json:"id"`
	Type      string    `json:"type"`
	Value     string    `json:"value"`
	Frequency int       `json:"frequency"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// InvestigationRef is a lightweight reference to a stored investigation.
type InvestigationRef struct {
	ID          int64     `json:"id"`
	Query       string    `json:"query"`
	Timestamp   time.Time `json:"timestamp"`
	SummaryFile string    `json:"summary_file,omitempty"`
}

// Stats summarizes the stored history.
type Stats struct {
	Investigations  int            `json:"total_investigations"`
	Entities        int            `json:"total_entities"`
	Sessions        int            `json:"total_sessions"`
	EntityBreakdown map[string]int `json:"entity_breakdown"`
}

// Repository is the persistence surface the tools depend on.
type Repository interface {
	// StartSession opens a tracked CLI session and returns its id.
	StartSession(ctx context.Context) (string, error)

	// EndSession stamps the session's end time and investigation count.
	// Ending an unknown session is a no-op.
	EndSession(ctx context.Context, sessionID string) error

	// SaveInvestigation records a completed investigation along with the
	// entities extracted from its findings, keyed by entity type. sessionID
	// may be empty for runs outside a tracked session.
	SaveInvestigation(ctx context.Context, query, summaryFile, sessionID string, entities map[string][]string) (int64, error)

	// LookupEntity returns the tracked record for an entity, or nil when it
	// has never been seen.
	LookupEntity(ctx context.Context, entityType, value string) (*Entity, error)

	// RelatedInvestigations lists investigations an entity value appeared in,
	// most recent first.
	RelatedInvestigations(ctx context.Context, value string, limit int) ([]InvestigationRef, error)

	// RecentInvestigations lists the latest investigations.
	RecentInvestigations(ctx context.Context, limit int) ([]InvestigationRef, error)

	// SimilarInvestigations ranks recent investigations by how many query
	// words they share with query, best matches first.
	SimilarInvestigations(ctx context.Context, query string, limit int) ([]InvestigationRef, error)

	// Stats reports history totals and the per-type entity breakdown.
	Stats(ctx context.Context) (*Stats, error)

	Close() error
}

// similarityWindow bounds how much history similarity ranking considers.
const similarityWindow = 100

func newSessionID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		binary.BigEndian.PutUint64(b, uint64(time.Now().UnixNano()))
	}
	return hex.EncodeToString(b)
}

// rankSimilar orders refs by word overlap with query and drops the ones that
// share nothing. Ties keep their recency order.
func rankSimilar(query string, refs []InvestigationRef, limit int) []InvestigationRef {
	if limit <= 0 {
		limit = 5
	}
	words := wordSet(query)

	type scored struct {
		ref   InvestigationRef
		score int
	}
	var matches []scored
	for _, ref := range refs {
		overlap := 0
		for w := range wordSet(ref.Query) {
			if _, ok := words[w]; ok {
				overlap++
			}
		}
		if overlap > 0 {
			matches = append(matches, scored{ref: ref, score: overlap})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].score > matches[j].score
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}

	out := make([]InvestigationRef, len(matches))
	for i, m := range matches {
		out[i] = m.ref
	}
	return out
}

func wordSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(s)) {
		set[w] = struct{}{}
	}
	return set
}
