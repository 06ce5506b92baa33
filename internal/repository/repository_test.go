package repository

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"reflect"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/database"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// newTestStore migrates TEST_DATABASE_URL and returns a store on it, or
// skips the test.
func newTestStore(t *testing.T) (*PGStore, *pgxpool.Pool) {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	if err := database.MigrateUp(url, zerolog.Nop()); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		t.Skipf("postgres unavailable: %v", err)
	}
	t.Cleanup(pool.Close)
	return NewStore(pool), pool
}

type fixture struct {
	student   *model.Student
	exam      *model.Exam
	questions []model.Question
}

// seed creates a student and an inactive exam with mc multiple-choice
// questions (correct option 0) and text free-text questions. Rows are
// removed through the exam and student cascades.
func seed(t *testing.T, store *PGStore, mc, text int) *fixture {
	t.Helper()
	ctx := context.Background()

	student := &model.Student{
		Email:        "repo-" + uuid.NewString() + "@school.test",
		Name:         "Repository Test",
		PasswordHash: "x",
		IsAuthorized: true,
	}
	if err := store.Students().Create(ctx, student); err != nil {
		t.Fatalf("create student: %v", err)
	}
	exam := &model.Exam{Title: "Repository Test", DurationMinutes: 60, MaxViolations: 5}
	if err := store.Exams().Create(ctx, exam); err != nil {
		t.Fatalf("create exam: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Exams().Delete(context.Background(), exam.ID)
		_, _ = store.db.Exec(context.Background(), `DELETE FROM students WHERE id = $1`, student.ID)
	})

	f := &fixture{student: student, exam: exam}
	for i := 0; i < mc+text; i++ {
		q := model.Question{
			ExamID:       exam.ID,
			QuestionText: "Question",
			QuestionType: model.QuestionTypeText,
			OrderNum:     i,
		}
		if i < mc {
			correct := 0
			q.QuestionType = model.QuestionTypeMultipleChoice
			q.Options = json.RawMessage(`["a","b","c"]`)
			q.CorrectOptionIndex = &correct
		}
		if err := store.Questions().Create(ctx, &q); err != nil {
			t.Fatalf("create question: %v", err)
		}
		f.questions = append(f.questions, q)
	}
	return f
}

func newSession(f *fixture) *model.ExamSession {
	now := time.Now().UTC()
	return &model.ExamSession{
		SessionCode:      "SES-TEST-" + uuid.NewString()[:6],
		StudentID:        f.student.ID,
		ExamID:           f.exam.ID,
		StartTime:        now,
		ScheduledEndTime: now.Add(time.Hour),
		Status:           model.SessionStatusInProgress,
	}
}

func startSession(t *testing.T, store *PGStore, f *fixture) *model.ExamSession {
	t.Helper()
	sess := newSession(f)
	created, err := store.Sessions().Create(context.Background(), sess)
	if err != nil || !created {
		t.Fatalf("create session = %v, %v", created, err)
	}
	return sess
}

func completeSession(ctx context.Context, store *PGStore, sess *model.ExamSession) error {
	end := time.Now().UTC()
	score := 0.0
	duration := 1
	submission := model.SubmissionManual
	sess.EndTime = &end
	sess.Score = &score
	sess.ActualDurationSeconds = &duration
	sess.SubmissionType = &submission
	return store.Sessions().Complete(ctx, sess)
}

func TestIncrementViolationsConcurrent(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	sess := startSession(t, store, seed(t, store, 1, 0))

	const n = 25
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		totals []int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.WithTx(ctx, func(tx Store) error {
				if err := tx.Events().Append(ctx, &model.SessionEvent{
					SessionID: sess.ID,
					Kind:      model.EventKindViolation,
					EventType: "tab switch",
					Severity:  model.SeverityMedium,
				}); err != nil {
					return err
				}
				total, err := tx.Sessions().IncrementViolations(ctx, sess.ID)
				if err != nil {
					return err
				}
				mu.Lock()
				totals = append(totals, total)
				mu.Unlock()
				return nil
			})
			if err != nil {
				t.Errorf("log violation: %v", err)
			}
		}()
	}
	wg.Wait()

	sort.Ints(totals)
	for i, got := range totals {
		if got != i+1 {
			t.Fatalf("returned totals = %v, want 1..%d each once", totals, n)
		}
	}

	got, err := store.Sessions().GetByID(ctx, sess.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	events, err := store.Events().CountBySession(ctx, sess.ID, model.EventKindViolation)
	if err != nil {
		t.Fatalf("count events: %v", err)
	}
	if got.TotalViolations != n || events != n {
		t.Fatalf("total_violations = %d, events = %d; want %d", got.TotalViolations, events, n)
	}
}

func TestCreateSessionSingleInProgress(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	f := seed(t, store, 1, 0)

	const n = 10
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []uuid.UUID
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess := newSession(f)
			created, err := store.Sessions().Create(ctx, sess)
			if err != nil {
				t.Errorf("create: %v", err)
				return
			}
			if created {
				mu.Lock()
				winners = append(winners, sess.ID)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(winners) != 1 {
		t.Fatalf("created %d in-progress sessions, want 1", len(winners))
	}
	existing, err := store.Sessions().GetLatestInProgress(ctx, f.student.ID, f.exam.ID)
	if err != nil || existing.ID != winners[0] {
		t.Fatalf("latest in progress = %v, %v; want %s", existing, err, winners[0])
	}

	// A finished attempt no longer blocks a new one.
	if err := completeSession(ctx, store, existing); err != nil {
		t.Fatalf("complete: %v", err)
	}
	next := newSession(f)
	created, err := store.Sessions().Create(ctx, next)
	if err != nil || !created {
		t.Fatalf("create after completion = %v, %v", created, err)
	}
}

func TestCompleteOnlyFromInProgress(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	sess := startSession(t, store, seed(t, store, 1, 0))

	if err := completeSession(ctx, store, sess); err != nil {
		t.Fatalf("first complete: %v", err)
	}
	if err := completeSession(ctx, store, sess); !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("second complete: err = %v, want pgx.ErrNoRows", err)
	}
	if _, err := store.Sessions().IncrementViolations(ctx, sess.ID); !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("violation on completed session: err = %v, want pgx.ErrNoRows", err)
	}
	if err := store.Sessions().UpdateProgress(ctx, sess.ID, 50); !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("progress on completed session: err = %v, want pgx.ErrNoRows", err)
	}
}

func TestCalculateSessionScore(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	t.Run("seven of ten", func(t *testing.T) {
		f := seed(t, store, 10, 1)
		sess := startSession(t, store, f)

		for i, q := range f.questions {
			resp := &model.Response{SessionID: sess.ID, QuestionID: q.ID}
			switch {
			case q.QuestionType == model.QuestionTypeText:
				text := "free answer"
				resp.ResponseText = &text
			case i < 7:
				opt, ok := 0, true
				resp.ResponseOptionIndex, resp.IsCorrect = &opt, &ok
			case i < 9:
				opt, ok := 2, false
				resp.ResponseOptionIndex, resp.IsCorrect = &opt, &ok
			default:
				continue
			}
			if err := store.Responses().Upsert(ctx, resp); err != nil {
				t.Fatalf("upsert: %v", err)
			}
		}

		// Inside a transaction the function runs in a savepoint.
		var score float64
		err := store.WithTx(ctx, func(tx Store) error {
			var err error
			score, err = tx.Responses().AggregateScore(ctx, sess.ID)
			return err
		})
		if err != nil {
			t.Fatalf("aggregate: %v", err)
		}
		if score != 70 {
			t.Fatalf("score = %v, want 70", score)
		}
	})

	t.Run("no scorable questions", func(t *testing.T) {
		f := seed(t, store, 0, 2)
		sess := startSession(t, store, f)
		score, err := store.Responses().AggregateScore(ctx, sess.ID)
		if err != nil || score != 0 {
			t.Fatalf("score = %v, %v; want 0", score, err)
		}
	})

	t.Run("unknown session", func(t *testing.T) {
		if _, err := store.Responses().AggregateScore(ctx, uuid.New()); err == nil {
			t.Fatal("expected an error for an unknown session")
		}
	})
}

func insertSnapshots(t *testing.T, store *PGStore, sessionID uuid.UUID, n int, base time.Time) []*model.SessionSnapshot {
	t.Helper()
	snaps := make([]*model.SessionSnapshot, 0, n)
	for i := 0; i < n; i++ {
		snap, err := model.NewSessionSnapshot(sessionID,
			model.SnapshotData{CurrentQuestionIndex: i}, base.Add(time.Duration(i)*time.Second))
		if err != nil {
			t.Fatalf("new snapshot: %v", err)
		}
		snaps = append(snaps, snap)
	}
	if _, err := store.Snapshots().InsertBatch(context.Background(), snaps); err != nil {
		t.Fatalf("insert batch: %v", err)
	}
	return snaps
}

func countSnapshots(t *testing.T, pool *pgxpool.Pool, sessionID uuid.UUID) int {
	t.Helper()
	var n int
	if err := pool.QueryRow(context.Background(),
		`SELECT COUNT(*) FROM session_snapshots WHERE session_id = $1`, sessionID).Scan(&n); err != nil {
		t.Fatalf("count snapshots: %v", err)
	}
	return n
}

func TestPruneKeepsNewestOfCompleted(t *testing.T) {
	store, pool := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	done := startSession(t, store, seed(t, store, 1, 0))
	open := startSession(t, store, seed(t, store, 1, 0))
	insertSnapshots(t, store, done.ID, 5, base)
	insertSnapshots(t, store, open.ID, 5, base)
	if err := completeSession(ctx, store, done); err != nil {
		t.Fatalf("complete: %v", err)
	}

	pruned, err := store.Snapshots().Prune(ctx, 2)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if pruned < 3 {
		t.Fatalf("pruned = %d, want at least 3", pruned)
	}
	if got := countSnapshots(t, pool, done.ID); got != 2 {
		t.Fatalf("completed session keeps %d snapshots, want 2", got)
	}
	if got := countSnapshots(t, pool, open.ID); got != 5 {
		t.Fatalf("in-progress session keeps %d snapshots, want 5", got)
	}

	latest, err := store.Snapshots().Latest(ctx, done.ID)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.CurrentQuestionIndex != 4 {
		t.Fatalf("latest index after prune = %d, want 4", latest.CurrentQuestionIndex)
	}
}

func TestInsertBatch(t *testing.T) {
	store, pool := newTestStore(t)
	ctx := context.Background()
	sess := startSession(t, store, seed(t, store, 1, 0))
	base := time.Now().UTC().Truncate(time.Microsecond)

	body := []byte(`{"responses":{},"timeRemaining":90.5,"flaggedQuestions":["q3"]}`)
	var data model.SnapshotData
	if err := json.Unmarshal(body, &data); err != nil {
		t.Fatalf("decode: %v", err)
	}
	newest, err := model.NewSessionSnapshot(sess.ID, data, base.Add(time.Minute))
	if err != nil {
		t.Fatalf("new snapshot: %v", err)
	}
	older := insertSnapshots(t, store, sess.ID, 2, base)
	if n, err := store.Snapshots().InsertBatch(ctx, []*model.SessionSnapshot{newest}); err != nil || n != 1 {
		t.Fatalf("insert batch = %d, %v", n, err)
	}
	if got := countSnapshots(t, pool, sess.ID); got != len(older)+1 {
		t.Fatalf("rows = %d, want %d", got, len(older)+1)
	}

	latest, err := store.Snapshots().Latest(ctx, sess.ID)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if !latest.CreatedAt.Equal(newest.CreatedAt) || latest.TimeRemaining != 91 {
		t.Fatalf("latest = %+v", latest)
	}
	var got, want any
	_ = json.Unmarshal(latest.Data, &got)
	_ = json.Unmarshal(body, &want)
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("snapshot_data = %s, want %s", latest.Data, body)
	}

	// COPY is all or nothing: one orphan row rejects the whole batch.
	orphan, _ := model.NewSessionSnapshot(uuid.New(), model.SnapshotData{}, base)
	valid, _ := model.NewSessionSnapshot(sess.ID, model.SnapshotData{}, base)
	_, err = store.Snapshots().InsertBatch(ctx, []*model.SessionSnapshot{valid, orphan})
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23503" {
		t.Fatalf("orphan batch: err = %v, want foreign key violation", err)
	}
	if got := countSnapshots(t, pool, sess.ID); got != len(older)+1 {
		t.Fatalf("rows after rejected batch = %d, want %d", got, len(older)+1)
	}
}
