package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "shrike.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveInvestigationTracksEntities(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	entities := map[string][]string{
		"onion": {"http://examplemarketonionaddr.onion"},
		"email": {"vendor@example.com"},
	}

	id, err := s.SaveInvestigation(ctx, "ransomware affiliates", "summary-1.md", "", entities)
	if err != nil {
		t.Fatalf("SaveInvestigation: %v", err)
	}
	if id == 0 {
		t.Fatal("expected non-zero investigation id")
	}

	e, err := s.LookupEntity(ctx, "email", "vendor@example.com")
	if err != nil {
		t.Fatalf("LookupEntity: %v", err)
	}
	if e == nil {
		t.Fatal("entity not tracked")
	}
	if e.Frequency != 1 {
		t.Errorf("frequency = %d, want 1", e.Frequency)
	}
}

func TestEntityFrequencyAccumulates(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	entities := map[string][]string{"onion": {"http://examplemarketonionaddr.onion"}}
	for i := 0; i < 3; i++ {
		if _, err := s.SaveInvestigation(ctx, "repeat query", "", "", entities); err != nil {
			t.Fatalf("SaveInvestigation #%d: %v", i, err)
		}
	}

	e, err := s.LookupEntity(ctx, "onion", "http://examplemarketonionaddr.onion")
	if err != nil {
		t.Fatalf("LookupEntity: %v", err)
	}
	if e == nil || e.Frequency != 3 {
		t.Fatalf("entity = %+v, want frequency 3", e)
	}
}

func TestLookupEntityMissReturnsNil(t *testing.T) {
	s := openTestStore(t)

	e, err := s.LookupEntity(context.Background(), "btc", "never-seen")
	if err != nil {
		t.Fatalf("LookupEntity: %v", err)
	}
	if e != nil {
		t.Fatalf("expected nil for unseen entity, got %+v", e)
	}
}

func TestRelatedInvestigations(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	shared := map[string][]string{"eth": {"0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"}}
	if _, err := s.SaveInvestigation(ctx, "first", "", "", shared); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SaveInvestigation(ctx, "second", "", "", shared); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SaveInvestigation(ctx, "unrelated", "", "", map[string][]string{"email": {"x@y.z"}}); err != nil {
		t.Fatal(err)
	}

	refs, err := s.RelatedInvestigations(ctx, "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", 10)
	if err != nil {
		t.Fatalf("RelatedInvestigations: %v", err)
	}
	if len(refs) != 2 {
		t.Fatalf("got %d related investigations, want 2", len(refs))
	}

	recent, err := s.RecentInvestigations(ctx, 2)
	if err != nil {
		t.Fatalf("RecentInvestigations: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("got %d recent investigations, want 2", len(recent))
	}
}

func TestSessionLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.StartSession(ctx)
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if len(id) != 16 {
		t.Errorf("session id = %q, want 16 hex chars", id)
	}

	for _, query := range []string{"vendor alpha", "vendor beta"} {
		if _, err := s.SaveInvestigation(ctx, query, "", id, nil); err != nil {
			t.Fatalf("SaveInvestigation: %v", err)
		}
	}
	// Not part of the tracked session.
	if _, err := s.SaveInvestigation(ctx, "untracked", "", "", nil); err != nil {
		t.Fatal(err)
	}

	if err := s.EndSession(ctx, id); err != nil {
		t.Fatalf("EndSession: %v", err)
	}

	var count int
	var ended sql.NullTime
	if err := s.db.QueryRowContext(ctx,
		`SELECT investigation_count, ended_at FROM sessions WHERE id = ?`, id).
		Scan(&count, &ended); err != nil {
		t.Fatalf("read session row: %v", err)
	}
	if count != 2 {
		t.Errorf("investigation_count = %d, want 2", count)
	}
	if !ended.Valid {
		t.Error("ended_at not stamped")
	}

	if err := s.EndSession(ctx, "no-such-session"); err != nil {
		t.Errorf("ending an unknown session should be a no-op: %v", err)
	}
}

func TestSimilarInvestigationsRanksByOverlap(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, query := range []string{
		"ransomware payment tracking",
		"ransomware affiliates recruitment forum",
		"stolen credit card dumps",
	} {
		if _, err := s.SaveInvestigation(ctx, query, "", "", nil); err != nil {
			t.Fatal(err)
		}
	}

	refs, err := s.SimilarInvestigations(ctx, "ransomware affiliates payment", 5)
	if err != nil {
		t.Fatalf("SimilarInvestigations: %v", err)
	}
	if len(refs) != 2 {
		t.Fatalf("got %d matches, want 2 (no overlap must be dropped): %v", len(refs), refs)
	}
	for _, ref := range refs {
		if ref.Query == "stolen credit card dumps" {
			t.Error("zero-overlap investigation leaked into the ranking")
		}
	}

	none, err := s.SimilarInvestigations(ctx, "completely unrelated topic", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(none) != 0 {
		t.Errorf("expected no matches, got %v", none)
	}
}

func TestRankSimilarOrdersAndLimits(t *testing.T) {
	refs := []InvestigationRef{
		{ID: 1, Query: "bitcoin mixer services"},
		{ID: 2, Query: "bitcoin ransomware payment mixer"},
		{ID: 3, Query: "ransomware mixer"},
	}

	got := rankSimilar("ransomware bitcoin mixer", refs, 2)
	if len(got) != 2 {
		t.Fatalf("got %d refs, want limit 2", len(got))
	}
	if got[0].ID != 2 {
		t.Errorf("best match = %d, want 2 (highest overlap first)", got[0].ID)
	}
}

func TestStatsCountsHistory(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.StartSession(ctx)
	if err != nil {
		t.Fatal(err)
	}
	entities := map[string][]string{
		"onion": {"a.onion", "b.onion"},
		"email": {"vendor@example.com"},
	}
	if _, err := s.SaveInvestigation(ctx, "market survey", "", id, entities); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SaveInvestigation(ctx, "vendor lookup", "", id, nil); err != nil {
		t.Fatal(err)
	}

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.Investigations != 2 {
		t.Errorf("investigations = %d, want 2", st.Investigations)
	}
	if st.Sessions != 1 {
		t.Errorf("sessions = %d, want 1", st.Sessions)
	}
	if st.Entities != 3 {
		t.Errorf("entities = %d, want 3", st.Entities)
	}
	if st.EntityBreakdown["onion"] != 2 || st.EntityBreakdown["email"] != 1 {
		t.Errorf("breakdown = %v", st.EntityBreakdown)
	}
}
