package store

import (
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"studio/internal/domain"
)

type stubSnapshot struct {
	mu     sync.Mutex
	loaded []domain.Job
	saves  [][]domain.Job
	fail   error
}

func (s *stubSnapshot) Load() ([]domain.Job, error) {
	return s.loaded, nil
}

func (s *stubSnapshot) Save(jobs []domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	copied := make([]domain.Job, len(jobs))
	copy(copied, jobs)
	s.saves = append(s.saves, copied)
	return nil
}

func (s *stubSnapshot) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saves)
}

func newTestStore(t *testing.T) (*Store, *stubSnapshot) {
	t.Helper()
	snap := &stubSnapshot{}
	return New(snap, zerolog.Nop()), snap
}

func TestAppendCreatesPendingRecord(t *testing.T) {
	st, snap := newTestStore(t)

	job, err := st.Append("abc123", "a red fox")
	if err != nil {
		t.Fatalf("Append returned error: %v", err)
	}
	if job.Status != domain.JobStatusPending {
		t.Fatalf("Status = %q, want pending", job.Status)
	}
	if job.ResultURL != "" || job.ErrorDetail != "" {
		t.Fatalf("new record must carry neither result nor error: %+v", job)
	}
	if job.CreatedAt.IsZero() {
		t.Fatal("CreatedAt not set")
	}
	if !job.CompletedAt.IsZero() {
		t.Fatal("CompletedAt must be absent while pending")
	}
	if snap.saveCount() != 1 {
		t.Fatalf("save count = %d, want 1", snap.saveCount())
	}
}

func TestAppendRejectsDuplicateID(t *testing.T) {
	st, _ := newTestStore(t)

	if _, err := st.Append("abc123", "first"); err != nil {
		t.Fatalf("Append returned error: %v", err)
	}
	if _, err := st.Append("abc123", "second"); !errors.Is(err, domain.ErrDuplicateJob) {
		t.Fatalf("duplicate Append error = %v, want ErrDuplicateJob", err)
	}
	if got := len(st.List()); got != 1 {
		t.Fatalf("store holds %d records, want 1", got)
	}
}

func TestCompleteSetsResultOnly(t *testing.T) {
	st, _ := newTestStore(t)
	st.Append("abc123", "a red fox")

	if err := st.Complete("abc123", "https://x/img.jpg"); err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	job, err := st.Get("abc123")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if job.Status != domain.JobStatusComplete {
		t.Fatalf("Status = %q, want complete", job.Status)
	}
	if job.ResultURL != "https://x/img.jpg" {
		t.Fatalf("ResultURL = %q", job.ResultURL)
	}
	if job.ErrorDetail != "" {
		t.Fatalf("ErrorDetail = %q, want empty", job.ErrorDetail)
	}
	if job.CompletedAt.Before(job.CreatedAt) {
		t.Fatalf("CompletedAt %v precedes CreatedAt %v", job.CompletedAt, job.CreatedAt)
	}
}

func TestFailSetsErrorOnly(t *testing.T) {
	st, _ := newTestStore(t)
	st.Append("abc123", "a red fox")

	if err := st.Fail("abc123", "OOM"); err != nil {
		t.Fatalf("Fail returned error: %v", err)
	}
	job, _ := st.Get("abc123")
	if job.Status != domain.JobStatusError {
		t.Fatalf("Status = %q, want error", job.Status)
	}
	if job.ErrorDetail != "OOM" {
		t.Fatalf("ErrorDetail = %q, want OOM", job.ErrorDetail)
	}
	if job.ResultURL != "" {
		t.Fatalf("ResultURL = %q, want empty", job.ResultURL)
	}
}

func TestTerminalRecordIsImmutable(t *testing.T) {
	st, _ := newTestStore(t)
	st.Append("abc123", "a red fox")
	if err := st.Complete("abc123", "https://x/img.jpg"); err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}

	if err := st.Fail("abc123", "late failure"); !errors.Is(err, domain.ErrTerminalJob) {
		t.Fatalf("Fail on terminal record error = %v, want ErrTerminalJob", err)
	}
	if err := st.Complete("abc123", "https://x/other.jpg"); !errors.Is(err, domain.ErrTerminalJob) {
		t.Fatalf("Complete on terminal record error = %v, want ErrTerminalJob", err)
	}
	job, _ := st.Get("abc123")
	if job.ResultURL != "https://x/img.jpg" || job.ErrorDetail != "" {
		t.Fatalf("terminal record mutated: %+v", job)
	}
}

func TestRemoveUnknownIDIsNoOp(t *testing.T) {
	st, snap := newTestStore(t)
	st.Remove("missing")
	if snap.saveCount() != 0 {
		t.Fatalf("no-op remove triggered %d saves", snap.saveCount())
	}
}

func TestTransitionAfterRemoveReturnsNotFound(t *testing.T) {
	st, _ := newTestStore(t)
	st.Append("abc123", "a red fox")
	st.Remove("abc123")

	if err := st.Complete("abc123", "https://x/img.jpg"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Complete after remove error = %v, want ErrNotFound", err)
	}
	if got := len(st.List()); got != 0 {
		t.Fatalf("removed record resurrected, store holds %d records", got)
	}
}

func TestListIsNewestFirst(t *testing.T) {
	st, _ := newTestStore(t)
	st.Append("a", "first")
	st.Append("b", "second")
	st.Append("c", "third")

	list := st.List()
	if len(list) != 3 {
		t.Fatalf("len(list) = %d, want 3", len(list))
	}
	for i, want := range []string{"c", "b", "a"} {
		if list[i].ID != want {
			t.Fatalf("list[%d].ID = %q, want %q", i, list[i].ID, want)
		}
	}
}

func TestPendingIsDerivedFromStatus(t *testing.T) {
	st, _ := newTestStore(t)
	st.Append("a", "first")
	st.Append("b", "second")
	st.Append("c", "third")
	st.Complete("b", "https://x/img.jpg")

	pending := st.Pending()
	if len(pending) != 2 {
		t.Fatalf("pending = %v, want two ids", pending)
	}
	if pending[0] != "a" || pending[1] != "c" {
		t.Fatalf("pending = %v, want [a c]", pending)
	}
}

func TestEveryMutationPersists(t *testing.T) {
	st, snap := newTestStore(t)
	st.Append("a", "first")
	st.Complete("a", "https://x/img.jpg")
	st.Remove("a")
	if snap.saveCount() != 3 {
		t.Fatalf("save count = %d, want 3", snap.saveCount())
	}
	last := snap.saves[len(snap.saves)-1]
	if len(last) != 0 {
		t.Fatalf("final snapshot holds %d records, want 0", len(last))
	}
}

func TestSnapshotFailureKeepsMemoryState(t *testing.T) {
	snap := &stubSnapshot{fail: errors.New("disk full")}
	st := New(snap, zerolog.Nop())

	if _, err := st.Append("a", "first"); err != nil {
		t.Fatalf("Append returned error: %v", err)
	}
	if _, err := st.Get("a"); err != nil {
		t.Fatalf("record lost after snapshot failure: %v", err)
	}
}

func TestNewRestoresSnapshotOrder(t *testing.T) {
	snap := &stubSnapshot{loaded: []domain.Job{
		{ID: "a", Prompt: "first", Status: domain.JobStatusComplete, ResultURL: "https://x/a.jpg"},
		{ID: "b", Prompt: "second", Status: domain.JobStatusPending},
	}}
	st := New(snap, zerolog.Nop())

	list := st.List()
	if len(list) != 2 {
		t.Fatalf("len(list) = %d, want 2", len(list))
	}
	if list[0].ID != "b" || list[1].ID != "a" {
		t.Fatalf("restored order wrong: %q, %q", list[0].ID, list[1].ID)
	}
	pending := st.Pending()
	if len(pending) != 1 || pending[0] != "b" {
		t.Fatalf("pending = %v, want [b]", pending)
	}
}
