package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/model"
)

type memCache struct {
	mu      sync.Mutex
	entries map[uuid.UUID]model.SessionSnapshot
	gets    int
}

func newMemCache() *memCache {
	return &memCache{entries: map[uuid.UUID]model.SessionSnapshot{}}
}

func (c *memCache) Put(ctx context.Context, snap *model.SessionSnapshot) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.entries[snap.SessionID]; ok && cur.CreatedAt.After(snap.CreatedAt) {
		return false, nil
	}
	c.entries[snap.SessionID] = *snap
	return true, nil
}

func (c *memCache) Get(ctx context.Context, sessionID uuid.UUID) (*model.SessionSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	snap, ok := c.entries[sessionID]
	if !ok {
		return nil, nil
	}
	return &snap, nil
}

func (c *memCache) Delete(ctx context.Context, sessionID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, sessionID)
	return nil
}

func (c *memCache) has(sessionID uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[sessionID]
	return ok
}

type memQueue struct {
	mu    sync.Mutex
	items []*model.SessionSnapshot
}

func (q *memQueue) Push(ctx context.Context, snap *model.SessionSnapshot) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, snap)
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.MonitorEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, examID uuid.UUID, ev model.MonitorEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) types() []model.MonitorEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.MonitorEventType, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

// testEnv wires every service onto one in-memory store.
type testEnv struct {
	db        *memDB
	cache     *memCache
	publisher *recordingPublisher

	access     *AccessService
	exams      *ExamService
	groups     *GroupService
	sessions   *ExamSessionService
	snapshots  *SnapshotService
	violations *ViolationService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := zerolog.Nop()
	db := newMemDB()
	store := db.store()
	cache := newMemCache()
	pub := &recordingPublisher{}

	snapshots := NewSnapshotService(store, cache, nil, log)

	return &testEnv{
		db:         db,
		cache:      cache,
		publisher:  pub,
		access:     NewAccessService(store),
		exams:      NewExamService(store, log),
		groups:     NewGroupService(store, log),
		sessions:   NewExamSessionService(store, NewScoreService(log), snapshots, pub, log),
		snapshots:  snapshots,
		violations: NewViolationService(store, pub, log),
	}
}

func (e *testEnv) addStudent(t *testing.T, authorized bool) *model.Student {
	t.Helper()
	st := &model.Student{
		Email:        uuid.NewString()[:8] + "@school.test",
		Name:         "Student " + uuid.NewString()[:4],
		PasswordHash: "x",
		IsAuthorized: authorized,
	}
	if err := e.db.store().Students().Create(context.Background(), st); err != nil {
		t.Fatalf("create student: %v", err)
	}
	return st
}

// addExam creates an active exam with mc multiple-choice questions (correct
// option 0) and text free-text questions.
func (e *testEnv) addExam(t *testing.T, maxViolations, mc, text int, useGroups bool) (*model.Exam, []model.Question) {
	t.Helper()
	ctx := context.Background()
	exam, err := e.exams.Create(ctx, model.CreateExamRequest{
		Title:           "Exam " + uuid.NewString()[:4],
		DurationMinutes: 60,
		MaxViolations:   maxViolations,
		UseGroupAccess:  useGroups,
	})
	if err != nil {
		t.Fatalf("create exam: %v", err)
	}
	if exam, err = e.exams.Activate(ctx, exam.ID); err != nil {
		t.Fatalf("activate exam: %v", err)
	}

	options, _ := json.Marshal([]string{"a", "b", "c", "d"})
	var questions []model.Question
	zero := 0
	for i := 0; i < mc; i++ {
		q, err := e.exams.AddQuestion(ctx, exam.ID, model.AddQuestionRequest{
			QuestionText:       "mc",
			QuestionType:       string(model.QuestionTypeMultipleChoice),
			Options:            options,
			CorrectOptionIndex: &zero,
			OrderNum:           i,
		})
		if err != nil {
			t.Fatalf("add question: %v", err)
		}
		questions = append(questions, *q)
	}
	for i := 0; i < text; i++ {
		q, err := e.exams.AddQuestion(ctx, exam.ID, model.AddQuestionRequest{
			QuestionText: "essay",
			QuestionType: string(model.QuestionTypeText),
			OrderNum:     mc + i,
		})
		if err != nil {
			t.Fatalf("add question: %v", err)
		}
		questions = append(questions, *q)
	}
	return exam, questions
}

func (e *testEnv) startSession(t *testing.T, student *model.Student, exam *model.Exam) *model.ExamSession {
	t.Helper()
	sess, created, err := e.sessions.Create(context.Background(), student.ID, exam.ID, "test-browser", "127.0.0.1")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if !created {
		t.Fatal("expected a new session")
	}
	return sess
}

func (e *testEnv) answer(t *testing.T, sess *model.ExamSession, q model.Question, option int) {
	t.Helper()
	_, err := e.sessions.SaveResponse(context.Background(), sess.ID, sess.StudentID, model.SaveResponseRequest{
		QuestionID:          q.ID.String(),
		ResponseOptionIndex: &option,
	})
	if err != nil {
		t.Fatalf("save response: %v", err)
	}
}

func (e *testEnv) logViolation(t *testing.T, sessionID uuid.UUID, violationType string) *model.ViolationResult {
	t.Helper()
	res, err := e.violations.Log(context.Background(), sessionID, model.LogViolationRequest{ViolationType: violationType})
	if err != nil {
		t.Fatalf("log violation: %v", err)
	}
	return res
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}
