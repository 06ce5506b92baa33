package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/repository"
)

// fakeStore implements only the parts of repository.Store the workers use.
type fakeStore struct {
	repository.Store
	snaps    *fakeSnapshots
	sessions *fakeSessions
}

func (s *fakeStore) Snapshots() repository.SnapshotStore { return s.snaps }
func (s *fakeStore) Sessions() repository.SessionStore   { return s.sessions }

type fakeSnapshots struct {
	repository.SnapshotStore
	mu        sync.Mutex
	batchErr  error
	badRows   map[uuid.UUID]error
	stored    []*model.SessionSnapshot
	pruneKeep int
	pruned    int64
}

func (f *fakeSnapshots) InsertBatch(ctx context.Context, snaps []*model.SessionSnapshot) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.batchErr != nil {
		return 0, f.batchErr
	}
	f.stored = append(f.stored, snaps...)
	return int64(len(snaps)), nil
}

func (f *fakeSnapshots) Insert(ctx context.Context, snap *model.SessionSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.badRows[snap.SessionID]; err != nil {
		return err
	}
	f.stored = append(f.stored, snap)
	return nil
}

func (f *fakeSnapshots) Prune(ctx context.Context, keep int) (int64, error) {
	f.pruneKeep = keep
	return f.pruned, nil
}

type fakeSessions struct {
	repository.SessionStore
	mu       sync.Mutex
	progress map[uuid.UUID]float64
	closed   map[uuid.UUID]bool
}

func (f *fakeSessions) UpdateProgress(ctx context.Context, id uuid.UUID, completion float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed[id] {
		return pgx.ErrNoRows
	}
	f.progress[id] = completion
	return nil
}

type fakeSource struct {
	mu       sync.Mutex
	items    []*model.SessionSnapshot
	errs     []error
	requeued []*model.SessionSnapshot
}

func (f *fakeSource) Pop(ctx context.Context, timeout time.Duration) (*model.SessionSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, err
	}
	if len(f.items) == 0 {
		return nil, nil
	}
	snap := f.items[0]
	f.items = f.items[1:]
	return snap, nil
}

func (f *fakeSource) Requeue(ctx context.Context, snaps []*model.SessionSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requeued = append(f.requeued, snaps...)
	return nil
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		snaps:    &fakeSnapshots{badRows: map[uuid.UUID]error{}},
		sessions: &fakeSessions{progress: map[uuid.UUID]float64{}, closed: map[uuid.UUID]bool{}},
	}
}

func snapAt(sessionID uuid.UUID, completion float64, at time.Time) *model.SessionSnapshot {
	snap, _ := model.NewSessionSnapshot(sessionID, model.SnapshotData{CompletionPercentage: completion}, at)
	return snap
}

func TestSnapshotWorkerFlush(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	a, b, done := uuid.New(), uuid.New(), uuid.New()

	reset := errors.New("connection reset")
	fkViolation := &pgconn.PgError{Code: "23503", Message: "violates foreign key constraint"}

	tests := []struct {
		name         string
		batchErr     error
		rowErr       error
		wantStored   int
		wantRequeued int
		wantBackoff  bool
	}{
		{"bulk path", nil, nil, 4, 0, false},
		{"row fallback", errors.New("copy failed"), nil, 4, 0, false},
		{"row fallback with requeue", errors.New("copy failed"), reset, 3, 1, true},
		{"rejected row is dropped", fkViolation, fkViolation, 3, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			store.snaps.batchErr = tt.batchErr
			if tt.rowErr != nil {
				store.snaps.badRows[b] = tt.rowErr
			}
			store.sessions.closed[done] = true
			source := &fakeSource{}

			w := NewSnapshotWorker(store, source, nil, 10, time.Second, zerolog.Nop())
			slept := false
			w.sleep = func(time.Duration) { slept = true }

			batch := []*model.SessionSnapshot{
				snapAt(a, 40, base.Add(2*time.Second)),
				snapAt(a, 20, base),
				snapAt(b, 10, base),
				snapAt(done, 90, base),
			}
			w.flush(context.Background(), batch)

			if len(store.snaps.stored) != tt.wantStored {
				t.Fatalf("stored = %d, want %d", len(store.snaps.stored), tt.wantStored)
			}
			if len(source.requeued) != tt.wantRequeued {
				t.Fatalf("requeued = %d, want %d", len(source.requeued), tt.wantRequeued)
			}
			if slept != tt.wantBackoff {
				t.Fatalf("backoff = %v, want %v", slept, tt.wantBackoff)
			}
			// Newest snapshot wins regardless of batch order.
			if got := store.sessions.progress[a]; got != 40 {
				t.Fatalf("progress[a] = %v, want 40", got)
			}
			if _, ok := store.sessions.progress[done]; ok {
				t.Fatal("completed session progress should not change")
			}
		})
	}
}

func TestSnapshotWorkerDropsRejectedRowsForGood(t *testing.T) {
	gone := uuid.New()
	store := newFakeStore()
	rejected := &pgconn.PgError{Code: "23503", Message: "session_snapshots_session_id_fkey"}
	store.snaps.batchErr = rejected
	store.snaps.badRows[gone] = rejected
	source := &fakeSource{}

	w := NewSnapshotWorker(store, source, nil, 10, time.Second, zerolog.Nop())
	w.sleep = func(time.Duration) {}

	batch := []*model.SessionSnapshot{snapAt(gone, 30, time.Now())}
	for i := 0; i < 3; i++ {
		w.flush(context.Background(), batch)
	}
	if len(source.requeued) != 0 {
		t.Fatalf("requeued %d snapshots of a deleted session", len(source.requeued))
	}
}

func TestIsPermanent(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{&pgconn.PgError{Code: "23503"}, true},
		{&pgconn.PgError{Code: "23505"}, true},
		{&pgconn.PgError{Code: "22P02"}, true},
		{&pgconn.PgError{Code: "40001"}, false},
		{&pgconn.PgError{Code: "57P01"}, false},
		{errors.New("connection reset"), false},
	}
	for _, tt := range tests {
		if got := isPermanent(tt.err); got != tt.want {
			t.Errorf("isPermanent(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestSnapshotWorkerStartDrainsOnShutdown(t *testing.T) {
	store := newFakeStore()
	malformed := errors.New("malformed")
	source := &fakeSource{
		errs: []error{malformed},
		items: []*model.SessionSnapshot{
			snapAt(uuid.New(), 10, time.Now()),
			snapAt(uuid.New(), 20, time.Now()),
		},
	}
	w := NewSnapshotWorker(store, source, func(err error) bool { return errors.Is(err, malformed) }, 100, time.Hour, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for {
		source.mu.Lock()
		left := len(source.items)
		source.mu.Unlock()
		if left == 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("worker did not drain the queue")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done

	if len(store.snaps.stored) != 2 {
		t.Fatalf("stored on shutdown = %d, want 2", len(store.snaps.stored))
	}
}

type fakeLocker struct {
	held bool
	err  error
}

func (l *fakeLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if l.err != nil {
		return false, l.err
	}
	if l.held {
		return false, nil
	}
	l.held = true
	return true, nil
}

func TestRetentionSweep(t *testing.T) {
	store := newFakeStore()
	store.snaps.pruned = 7
	locker := &fakeLocker{}
	w := NewRetentionWorker(store, locker, 5, time.Minute, zerolog.Nop())

	n, err := w.Sweep(context.Background())
	if err != nil || n != 7 || store.snaps.pruneKeep != 5 {
		t.Fatalf("first sweep = %d, %v (keep %d)", n, err, store.snaps.pruneKeep)
	}

	// Lock still held: nothing happens.
	store.snaps.pruneKeep = 0
	n, err = w.Sweep(context.Background())
	if err != nil || n != 0 || store.snaps.pruneKeep != 0 {
		t.Fatalf("locked sweep = %d, %v", n, err)
	}

	locker.err = errors.New("redis down")
	locker.held = false
	if _, err := w.Sweep(context.Background()); err == nil {
		t.Fatal("expected lock error")
	}
}
