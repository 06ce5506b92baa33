package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stemsi/exstem-proctor/internal/database"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// Lookups that find nothing return pgx.ErrNoRows, matching what pgx itself
// returns from QueryRow().Scan().

// ExamStore persists exams.
type ExamStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error)
	GetActive(ctx context.Context) (*model.Exam, error)
	List(ctx context.Context, limit, offset int) ([]model.Exam, int, error)
	Create(ctx context.Context, e *model.Exam) error
	Update(ctx context.Context, e *model.Exam) error
	Delete(ctx context.Context, id uuid.UUID) error
	DeactivateOthers(ctx context.Context, keepID uuid.UUID) error
	SetActive(ctx context.Context, id uuid.UUID) error
}

// QuestionStore persists exam questions.
type QuestionStore interface {
	Create(ctx context.Context, q *model.Question) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Question, error)
	ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Question, error)
	CountByExam(ctx context.Context, examID uuid.UUID) (int, error)
	CountScorableByExam(ctx context.Context, examID uuid.UUID) (int, error)
}

// StudentStore persists student accounts.
type StudentStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Student, error)
	GetByEmail(ctx context.Context, email string) (*model.Student, error)
	Create(ctx context.Context, s *model.Student) error
	List(ctx context.Context, limit, offset int) ([]model.Student, int, error)
	SetAuthorized(ctx context.Context, id uuid.UUID, authorized bool) error
}

// AdminStore persists admin accounts.
type AdminStore interface {
	GetByEmail(ctx context.Context, email string) (*model.Admin, error)
	Create(ctx context.Context, a *model.Admin) error
}

// GroupStore persists student groups, memberships and exam access grants.
type GroupStore interface {
	Create(ctx context.Context, g *model.StudentGroup) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.StudentGroup, error)
	List(ctx context.Context) ([]model.StudentGroup, error)
	Delete(ctx context.Context, id uuid.UUID) error
	AddMember(ctx context.Context, groupID, studentID uuid.UUID) (bool, error)
	RemoveMember(ctx context.Context, groupID, studentID uuid.UUID) (bool, error)
	ListMembers(ctx context.Context, groupID uuid.UUID) ([]model.GroupMember, error)
	GrantExam(ctx context.Context, groupID, examID uuid.UUID) error
	RevokeExam(ctx context.Context, groupID, examID uuid.UUID) (bool, error)
	ListGroupsForExam(ctx context.Context, examID uuid.UUID) ([]model.StudentGroup, error)
	HasExamAccess(ctx context.Context, studentID, examID uuid.UUID) (bool, error)
}

// SessionStore persists exam sessions.
type SessionStore interface {
	// Create returns false when another in-progress session for the same
	// (student, exam) already exists.
	Create(ctx context.Context, s *model.ExamSession) (bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.ExamSession, error)
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.ExamSession, error)
	GetLatestInProgress(ctx context.Context, studentID, examID uuid.UUID) (*model.ExamSession, error)
	ListByExam(ctx context.Context, examID uuid.UUID) ([]model.ExamSession, error)
	IncrementViolations(ctx context.Context, id uuid.UUID) (int, error)
	MarkResumed(ctx context.Context, id uuid.UUID) (int, error)
	UpdateProgress(ctx context.Context, id uuid.UUID, completion float64) error
	UpdateStats(ctx context.Context, id uuid.UUID, completion float64, violations int) error
	Complete(ctx context.Context, s *model.ExamSession) error
}

// EventStore persists the append-only session timeline.
type EventStore interface {
	Append(ctx context.Context, e *model.SessionEvent) error
	ListBySession(ctx context.Context, sessionID uuid.UUID, kind model.EventKind) ([]model.SessionEvent, error)
	CountBySession(ctx context.Context, sessionID uuid.UUID, kind model.EventKind) (int, error)
}

// SnapshotStore persists the append-only snapshot log.
type SnapshotStore interface {
	Insert(ctx context.Context, s *model.SessionSnapshot) error
	InsertBatch(ctx context.Context, snaps []*model.SessionSnapshot) (int64, error)
	Latest(ctx context.Context, sessionID uuid.UUID) (*model.SessionSnapshot, error)
	// Prune keeps the newest keep snapshots of every completed session.
	Prune(ctx context.Context, keep int) (int64, error)
}

// ResponseStore persists answers and exposes the scoring aggregates.
type ResponseStore interface {
	Upsert(ctx context.Context, r *model.Response) error
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]model.Response, error)
	CountAnswered(ctx context.Context, sessionID uuid.UUID) (int, error)
	CountCorrect(ctx context.Context, sessionID uuid.UUID) (int, error)
	AggregateScore(ctx context.Context, sessionID uuid.UUID) (float64, error)
}

// ReportStore persists write-once proctoring reports.
type ReportStore interface {
	Create(ctx context.Context, r *model.ProctoringReport) error
	GetBySession(ctx context.Context, sessionID uuid.UUID) (*model.ProctoringReport, error)
	ListByExam(ctx context.Context, examID uuid.UUID) ([]model.ProctoringReport, error)
}

// Store groups every repository behind one handle. WithTx hands fn a Store
// whose repositories all run on the same transaction.
type Store interface {
	Exams() ExamStore
	Questions() QuestionStore
	Students() StudentStore
	Admins() AdminStore
	Groups() GroupStore
	Sessions() SessionStore
	Events() EventStore
	Snapshots() SnapshotStore
	Responses() ResponseStore
	Reports() ReportStore
	WithTx(ctx context.Context, fn func(Store) error) error
}

// PGStore is the PostgreSQL implementation of Store.
type PGStore struct {
	db        database.DBTX
	exams     *ExamRepository
	questions *QuestionRepository
	students  *StudentRepository
	admins    *AdminRepository
	groups    *GroupRepository
	sessions  *ExamSessionRepository
	events    *SessionEventRepository
	snapshots *SnapshotRepository
	responses *ResponseRepository
	reports   *ReportRepository
}

// NewStore creates a PGStore on a pool or an open transaction.
func NewStore(db database.DBTX) *PGStore {
	return &PGStore{
		db:        db,
		exams:     NewExamRepository(db),
		questions: NewQuestionRepository(db),
		students:  NewStudentRepository(db),
		admins:    NewAdminRepository(db),
		groups:    NewGroupRepository(db),
		sessions:  NewExamSessionRepository(db),
		events:    NewSessionEventRepository(db),
		snapshots: NewSnapshotRepository(db),
		responses: NewResponseRepository(db),
		reports:   NewReportRepository(db),
	}
}

func (s *PGStore) Exams() ExamStore         { return s.exams }
func (s *PGStore) Questions() QuestionStore { return s.questions }
func (s *PGStore) Students() StudentStore   { return s.students }
func (s *PGStore) Admins() AdminStore       { return s.admins }
func (s *PGStore) Groups() GroupStore       { return s.groups }
func (s *PGStore) Sessions() SessionStore   { return s.sessions }
func (s *PGStore) Events() EventStore       { return s.events }
func (s *PGStore) Snapshots() SnapshotStore { return s.snapshots }
func (s *PGStore) Responses() ResponseStore { return s.responses }
func (s *PGStore) Reports() ReportStore     { return s.reports }

// WithTx runs fn in a transaction. Calling it on a Store that is already
// inside a transaction opens a savepoint.
func (s *PGStore) WithTx(ctx context.Context, fn func(Store) error) error {
	return database.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		return fn(NewStore(tx))
	})
}

var _ Store = (*PGStore)(nil)
