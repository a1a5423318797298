package store

import (
	"context"
	"fmt"
	"math/rand"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/onepurp/Mutarjim-Pro/internal/segment"
)

// testStore creates a temporary SQLite store and registers cleanup.
func testStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open(%q): %v", dbPath, err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedProject(t *testing.T, s *Store, n int) {
	t.Helper()
	segments := make([]segment.Segment, 0, n)
	for i := 0; i < n; i++ {
		segments = append(segments, segment.Segment{
			ID:           segment.ID("ch1.xhtml", i),
			DocPath:      "ch1.xhtml",
			BatchIndex:   i,
			OriginalHTML: fmt.Sprintf("<p>segment %d</p>", i),
			Status:       segment.StatusPending,
		})
	}
	p := &Project{
		ID:            "proj-1",
		Title:         "Test Book",
		Author:        "Author",
		SourceBytes:   []byte("fake epub"),
		TotalSegments: n,
		SchemaVersion: segment.SchemaV2,
		TextAlignment: "right",
	}
	if err := s.ImportProject(context.Background(), p, segments); err != nil {
		t.Fatalf("ImportProject: %v", err)
	}
}

func TestClaimNextPrefersPending(t *testing.T) {
	t.Parallel()
	s := testStore(t)
	ctx := context.Background()
	seedProject(t, s, 3)

	// Fail segment 0 so it sits in FAILED while 1 and 2 stay PENDING.
	seg, err := s.ClaimNext(ctx)
	if err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	if _, err := s.FailSegment(ctx, seg.ID, "boom", false, 3); err != nil {
		t.Fatalf("FailSegment: %v", err)
	}

	first, err := s.ClaimNext(ctx)
	if err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	if first.Status != segment.StatusTranslating {
		t.Errorf("claimed status = %s", first.Status)
	}
	if first.ID == seg.ID {
		t.Errorf("claimed the FAILED segment %s while PENDING segments remain", seg.ID)
	}

	// Drain the remaining PENDING segment, then the FAILED one is offered.
	second, _ := s.ClaimNext(ctx)
	third, _ := s.ClaimNext(ctx)
	if third == nil || third.ID != seg.ID {
		t.Fatalf("expected FAILED segment %s last, got %+v (second %+v)", seg.ID, third, second)
	}

	if extra, _ := s.ClaimNext(ctx); extra != nil {
		t.Errorf("expected empty claim, got %s", extra.ID)
	}
}

func TestCompleteSegmentRefreshesCount(t *testing.T) {
	t.Parallel()
	s := testStore(t)
	ctx := context.Background()
	seedProject(t, s, 2)

	seg, _ := s.ClaimNext(ctx)
	if err := s.CompleteSegment(ctx, seg.ID, "<p>translated</p>"); err != nil {
		t.Fatalf("CompleteSegment: %v", err)
	}

	p, err := s.GetProject(ctx)
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if p.TranslatedSegments != 1 {
		t.Errorf("translated count = %d, want 1", p.TranslatedSegments)
	}

	got, _ := s.GetSegment(ctx, seg.ID)
	if got.Status != segment.StatusTranslated || got.TranslatedHTML != "<p>translated</p>" {
		t.Errorf("segment after complete = %+v", got)
	}

	// Completing again must not inflate the count.
	if err := s.CompleteSegment(ctx, seg.ID, "<p>translated</p>"); err != nil {
		t.Fatalf("CompleteSegment (repeat): %v", err)
	}
	p, _ = s.GetProject(ctx)
	if p.TranslatedSegments != 1 {
		t.Errorf("translated count after repeat = %d, want 1", p.TranslatedSegments)
	}
}

func TestFailSegmentRetryLifecycle(t *testing.T) {
	t.Parallel()
	s := testStore(t)
	ctx := context.Background()
	seedProject(t, s, 1)

	id := segment.ID("ch1.xhtml", 0)

	for attempt := 1; attempt <= 3; attempt++ {
		if _, err := s.ClaimNext(ctx); err != nil {
			t.Fatalf("ClaimNext: %v", err)
		}
		status, err := s.FailSegment(ctx, id, "timeout", false, 3)
		if err != nil {
			t.Fatalf("FailSegment: %v", err)
		}

		seg, _ := s.GetSegment(ctx, id)
		if seg.RetryCount != attempt {
			t.Errorf("attempt %d: retry count = %d", attempt, seg.RetryCount)
		}
		want := segment.StatusFailed
		if attempt >= 3 {
			want = segment.StatusSkipped
		}
		if status != want || seg.Status != want {
			t.Errorf("attempt %d: status = %s, want %s", attempt, seg.Status, want)
		}
	}

	// SKIPPED segments are not claimable.
	if seg, _ := s.ClaimNext(ctx); seg != nil {
		t.Errorf("claimed skipped segment %s", seg.ID)
	}

	n, err := s.RetrySkipped(ctx)
	if err != nil {
		t.Fatalf("RetrySkipped: %v", err)
	}
	if n != 1 {
		t.Errorf("RetrySkipped reset %d, want 1", n)
	}
	seg, _ := s.GetSegment(ctx, id)
	if seg.Status != segment.StatusPending || seg.RetryCount != 0 || seg.Error != "" {
		t.Errorf("segment after RetrySkipped = %+v", seg)
	}
}

func TestFailSegmentQuotaRevertsWithoutRetryCost(t *testing.T) {
	t.Parallel()
	s := testStore(t)
	ctx := context.Background()
	seedProject(t, s, 1)

	id := segment.ID("ch1.xhtml", 0)
	if _, err := s.ClaimNext(ctx); err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}

	status, err := s.FailSegment(ctx, id, "quota exhausted", true, 3)
	if err != nil {
		t.Fatalf("FailSegment: %v", err)
	}
	if status != segment.StatusPending {
		t.Errorf("quota failure status = %s, want PENDING", status)
	}

	seg, _ := s.GetSegment(ctx, id)
	if seg.Status != segment.StatusPending {
		t.Errorf("segment status = %s, want PENDING", seg.Status)
	}
	if seg.RetryCount != 0 {
		t.Errorf("quota failure consumed retry budget: %d", seg.RetryCount)
	}
}

func TestStats(t *testing.T) {
	t.Parallel()
	s := testStore(t)
	ctx := context.Background()
	seedProject(t, s, 4)

	seg, _ := s.ClaimNext(ctx)
	_ = s.CompleteSegment(ctx, seg.ID, "<p>t</p>")
	seg, _ = s.ClaimNext(ctx)
	_, _ = s.FailSegment(ctx, seg.ID, "x", false, 3)

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.Total != 4 || st.Translated != 1 || st.Failed != 1 || st.Pending != 2 {
		t.Errorf("stats = %+v", st)
	}
}

// TestReopenReclaimsInFlightSegments simulates a crash mid-translation: a
// claimed segment must be offered again after the store is reopened.
func TestReopenReclaimsInFlightSegments(t *testing.T) {
	t.Parallel()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	s, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	seedProject(t, s, 2)

	claimed, err := s.ClaimNext(ctx)
	if err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	if claimed == nil {
		t.Fatal("nothing claimed")
	}
	// The process dies here; the segment is stranded in TRANSLATING.
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { reopened.Close() })

	seg, err := reopened.GetSegment(ctx, claimed.ID)
	if err != nil {
		t.Fatalf("GetSegment: %v", err)
	}
	if seg.Status != segment.StatusPending {
		t.Errorf("stranded segment status = %s, want PENDING", seg.Status)
	}
	if seg.RetryCount != 0 {
		t.Errorf("reclaim consumed retry budget: %d", seg.RetryCount)
	}

	// Both segments are claimable again, so the run can complete.
	ids := make(map[string]bool)
	for {
		next, err := reopened.ClaimNext(ctx)
		if err != nil {
			t.Fatalf("ClaimNext after reopen: %v", err)
		}
		if next == nil {
			break
		}
		ids[next.ID] = true
		if err := reopened.CompleteSegment(ctx, next.ID, next.OriginalHTML); err != nil {
			t.Fatalf("CompleteSegment: %v", err)
		}
	}
	if len(ids) != 2 || !ids[claimed.ID] {
		t.Errorf("claimable after reopen = %v", ids)
	}
}

// TestClaimExclusivity stress-runs concurrent claimants and checks that no
// segment is handed to two workers.
func TestClaimExclusivity(t *testing.T) {
	t.Parallel()
	s := testStore(t)
	ctx := context.Background()
	seedProject(t, s, 50)

	var mu sync.Mutex
	claimed := make(map[string]int)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				seg, err := s.ClaimNext(ctx)
				if err != nil {
					t.Errorf("ClaimNext: %v", err)
					return
				}
				if seg == nil {
					return
				}
				mu.Lock()
				claimed[seg.ID]++
				mu.Unlock()
				time.Sleep(time.Duration(rand.Intn(3)) * time.Millisecond)
				if err := s.CompleteSegment(ctx, seg.ID, seg.OriginalHTML); err != nil {
					t.Errorf("CompleteSegment: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	if len(claimed) != 50 {
		t.Errorf("claimed %d distinct segments, want 50", len(claimed))
	}
	for id, n := range claimed {
		if n != 1 {
			t.Errorf("segment %s claimed %d times", id, n)
		}
	}

	p, _ := s.GetProject(ctx)
	if p.TranslatedSegments != 50 {
		t.Errorf("translated count = %d, want 50", p.TranslatedSegments)
	}
}
