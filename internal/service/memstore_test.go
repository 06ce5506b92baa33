package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/repository"
)

// memDB is an in-memory repository.Store for service tests. Transactions
// run on a copy of the data that replaces the original on success, so a
// failing fn leaves nothing behind.
type memDB struct {
	mu   sync.Mutex
	data *memData

	aggregateErr error
	reportErr    error
}

type pair [2]uuid.UUID

type memData struct {
	exams     map[uuid.UUID]model.Exam
	questions map[uuid.UUID]model.Question
	students  map[uuid.UUID]model.Student
	admins    map[uuid.UUID]model.Admin
	groups    map[uuid.UUID]model.StudentGroup
	members   map[pair]time.Time // group, student
	grants    map[pair]time.Time // exam, group
	sessions  map[uuid.UUID]model.ExamSession
	events    []model.SessionEvent
	snapshots []model.SessionSnapshot
	responses map[pair]model.Response // session, question
	reports   map[uuid.UUID]model.ProctoringReport

	nextEventID    int64
	nextSnapshotID int64
}

func newMemDB() *memDB {
	return &memDB{data: &memData{
		exams:     map[uuid.UUID]model.Exam{},
		questions: map[uuid.UUID]model.Question{},
		students:  map[uuid.UUID]model.Student{},
		admins:    map[uuid.UUID]model.Admin{},
		groups:    map[uuid.UUID]model.StudentGroup{},
		members:   map[pair]time.Time{},
		grants:    map[pair]time.Time{},
		sessions:  map[uuid.UUID]model.ExamSession{},
		responses: map[pair]model.Response{},
		reports:   map[uuid.UUID]model.ProctoringReport{},
	}}
}

func (d *memData) clone() *memData {
	c := *d
	c.exams = cloneMap(d.exams)
	c.questions = cloneMap(d.questions)
	c.students = cloneMap(d.students)
	c.admins = cloneMap(d.admins)
	c.groups = cloneMap(d.groups)
	c.members = cloneMap(d.members)
	c.grants = cloneMap(d.grants)
	c.sessions = cloneMap(d.sessions)
	c.events = append([]model.SessionEvent(nil), d.events...)
	c.snapshots = append([]model.SessionSnapshot(nil), d.snapshots...)
	c.responses = cloneMap(d.responses)
	c.reports = cloneMap(d.reports)
	return &c
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	c := make(map[K]V, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

// memStore is a view of memDB. Outside a transaction every call takes the
// lock; inside one the goroutine already holds it and works on tx.
type memStore struct {
	db *memDB
	tx *memData
}

func (db *memDB) store() *memStore { return &memStore{db: db} }

func (s *memStore) do(fn func(d *memData) error) error {
	if s.tx != nil {
		return fn(s.tx)
	}
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	return fn(s.db.data)
}

func (s *memStore) WithTx(ctx context.Context, fn func(repository.Store) error) error {
	if s.tx != nil {
		sp := s.tx.clone()
		if err := fn(&memStore{db: s.db, tx: sp}); err != nil {
			return err
		}
		*s.tx = *sp
		return nil
	}

	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	work := s.db.data.clone()
	if err := fn(&memStore{db: s.db, tx: work}); err != nil {
		return err
	}
	s.db.data = work
	return nil
}

func (s *memStore) Exams() repository.ExamStore         { return memExams{s} }
func (s *memStore) Questions() repository.QuestionStore { return memQuestions{s} }
func (s *memStore) Students() repository.StudentStore   { return memStudents{s} }
func (s *memStore) Admins() repository.AdminStore       { return memAdmins{s} }
func (s *memStore) Groups() repository.GroupStore       { return memGroups{s} }
func (s *memStore) Sessions() repository.SessionStore   { return memSessions{s} }
func (s *memStore) Events() repository.EventStore       { return memEvents{s} }
func (s *memStore) Snapshots() repository.SnapshotStore { return memSnapshots{s} }
func (s *memStore) Responses() repository.ResponseStore { return memResponses{s} }
func (s *memStore) Reports() repository.ReportStore     { return memReports{s} }

var _ repository.Store = (*memStore)(nil)

// ─── Exams ──────────────────────────────────────────────────────────

type memExams struct{ s *memStore }

func (r memExams) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	var out *model.Exam
	err := r.s.do(func(d *memData) error {
		e, ok := d.exams[id]
		if !ok {
			return pgx.ErrNoRows
		}
		out = &e
		return nil
	})
	return out, err
}

func (r memExams) GetActive(ctx context.Context) (*model.Exam, error) {
	var out *model.Exam
	err := r.s.do(func(d *memData) error {
		for _, e := range d.exams {
			if e.IsActive {
				e := e
				out = &e
				return nil
			}
		}
		return pgx.ErrNoRows
	})
	return out, err
}

func (r memExams) List(ctx context.Context, limit, offset int) ([]model.Exam, int, error) {
	var out []model.Exam
	total := 0
	err := r.s.do(func(d *memData) error {
		all := make([]model.Exam, 0, len(d.exams))
		for _, e := range d.exams {
			all = append(all, e)
		}
		sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
		total = len(all)
		if offset < len(all) {
			all = all[offset:]
			if len(all) > limit {
				all = all[:limit]
			}
			out = all
		}
		return nil
	})
	return out, total, err
}

func (r memExams) Create(ctx context.Context, e *model.Exam) error {
	return r.s.do(func(d *memData) error {
		e.ID = uuid.New()
		e.CreatedAt = time.Now()
		e.UpdatedAt = e.CreatedAt
		d.exams[e.ID] = *e
		return nil
	})
}

func (r memExams) Update(ctx context.Context, e *model.Exam) error {
	return r.s.do(func(d *memData) error {
		if _, ok := d.exams[e.ID]; !ok {
			return pgx.ErrNoRows
		}
		e.UpdatedAt = time.Now()
		d.exams[e.ID] = *e
		return nil
	})
}

func (r memExams) Delete(ctx context.Context, id uuid.UUID) error {
	return r.s.do(func(d *memData) error {
		if _, ok := d.exams[id]; !ok {
			return pgx.ErrNoRows
		}
		delete(d.exams, id)
		return nil
	})
}

func (r memExams) DeactivateOthers(ctx context.Context, keepID uuid.UUID) error {
	return r.s.do(func(d *memData) error {
		for id, e := range d.exams {
			if id != keepID && e.IsActive {
				e.IsActive = false
				d.exams[id] = e
			}
		}
		return nil
	})
}

func (r memExams) SetActive(ctx context.Context, id uuid.UUID) error {
	return r.s.do(func(d *memData) error {
		e, ok := d.exams[id]
		if !ok {
			return pgx.ErrNoRows
		}
		for otherID, other := range d.exams {
			if otherID != id && other.IsActive {
				return &pgconn.PgError{Code: pgUniqueViolation}
			}
		}
		e.IsActive = true
		d.exams[id] = e
		return nil
	})
}

// ─── Questions ──────────────────────────────────────────────────────

type memQuestions struct{ s *memStore }

func (r memQuestions) Create(ctx context.Context, q *model.Question) error {
	return r.s.do(func(d *memData) error {
		q.ID = uuid.New()
		d.questions[q.ID] = *q
		return nil
	})
}

func (r memQuestions) GetByID(ctx context.Context, id uuid.UUID) (*model.Question, error) {
	var out *model.Question
	err := r.s.do(func(d *memData) error {
		q, ok := d.questions[id]
		if !ok {
			return pgx.ErrNoRows
		}
		out = &q
		return nil
	})
	return out, err
}

func (r memQuestions) ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	var out []model.Question
	err := r.s.do(func(d *memData) error {
		for _, q := range d.questions {
			if q.ExamID == examID {
				out = append(out, q)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].OrderNum < out[j].OrderNum })
		return nil
	})
	return out, err
}

func (r memQuestions) CountByExam(ctx context.Context, examID uuid.UUID) (int, error) {
	qs, err := r.ListByExam(ctx, examID)
	return len(qs), err
}

func (r memQuestions) CountScorableByExam(ctx context.Context, examID uuid.UUID) (int, error) {
	qs, err := r.ListByExam(ctx, examID)
	n := 0
	for _, q := range qs {
		if q.QuestionType == model.QuestionTypeMultipleChoice {
			n++
		}
	}
	return n, err
}

// ─── Students & admins ──────────────────────────────────────────────

type memStudents struct{ s *memStore }

func (r memStudents) GetByID(ctx context.Context, id uuid.UUID) (*model.Student, error) {
	var out *model.Student
	err := r.s.do(func(d *memData) error {
		st, ok := d.students[id]
		if !ok {
			return pgx.ErrNoRows
		}
		out = &st
		return nil
	})
	return out, err
}

func (r memStudents) GetByEmail(ctx context.Context, email string) (*model.Student, error) {
	var out *model.Student
	err := r.s.do(func(d *memData) error {
		for _, st := range d.students {
			if strings.EqualFold(st.Email, email) {
				st := st
				out = &st
				return nil
			}
		}
		return pgx.ErrNoRows
	})
	return out, err
}

func (r memStudents) Create(ctx context.Context, st *model.Student) error {
	return r.s.do(func(d *memData) error {
		for _, other := range d.students {
			if strings.EqualFold(other.Email, st.Email) {
				return &pgconn.PgError{Code: pgUniqueViolation, ConstraintName: "students_email_key"}
			}
		}
		st.ID = uuid.New()
		st.CreatedAt = time.Now()
		d.students[st.ID] = *st
		return nil
	})
}

func (r memStudents) List(ctx context.Context, limit, offset int) ([]model.Student, int, error) {
	var out []model.Student
	var total int
	err := r.s.do(func(d *memData) error {
		all := make([]model.Student, 0, len(d.students))
		for _, st := range d.students {
			all = append(all, st)
		}
		sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
		total = len(all)
		if offset < len(all) {
			end := offset + limit
			if end > len(all) {
				end = len(all)
			}
			out = all[offset:end]
		}
		return nil
	})
	return out, total, err
}

func (r memStudents) SetAuthorized(ctx context.Context, id uuid.UUID, authorized bool) error {
	return r.s.do(func(d *memData) error {
		st, ok := d.students[id]
		if !ok {
			return pgx.ErrNoRows
		}
		st.IsAuthorized = authorized
		d.students[id] = st
		return nil
	})
}

type memAdmins struct{ s *memStore }

func (r memAdmins) GetByEmail(ctx context.Context, email string) (*model.Admin, error) {
	var out *model.Admin
	err := r.s.do(func(d *memData) error {
		for _, a := range d.admins {
			if strings.EqualFold(a.Email, email) {
				a := a
				out = &a
				return nil
			}
		}
		return pgx.ErrNoRows
	})
	return out, err
}

func (r memAdmins) Create(ctx context.Context, a *model.Admin) error {
	return r.s.do(func(d *memData) error {
		for _, other := range d.admins {
			if strings.EqualFold(other.Email, a.Email) {
				return &pgconn.PgError{Code: pgUniqueViolation, ConstraintName: "admins_email_key"}
			}
		}
		a.ID = uuid.New()
		a.CreatedAt = time.Now()
		d.admins[a.ID] = *a
		return nil
	})
}

// ─── Groups ─────────────────────────────────────────────────────────

type memGroups struct{ s *memStore }

func (r memGroups) Create(ctx context.Context, g *model.StudentGroup) error {
	return r.s.do(func(d *memData) error {
		for _, other := range d.groups {
			if other.Name == g.Name {
				return &pgconn.PgError{Code: pgUniqueViolation, ConstraintName: "student_groups_name_key"}
			}
		}
		g.ID = uuid.New()
		g.CreatedAt = time.Now()
		d.groups[g.ID] = *g
		return nil
	})
}

func (d *memData) memberCount(groupID uuid.UUID) int {
	n := 0
	for k := range d.members {
		if k[0] == groupID {
			n++
		}
	}
	return n
}

func (r memGroups) GetByID(ctx context.Context, id uuid.UUID) (*model.StudentGroup, error) {
	var out *model.StudentGroup
	err := r.s.do(func(d *memData) error {
		g, ok := d.groups[id]
		if !ok {
			return pgx.ErrNoRows
		}
		g.MemberCount = d.memberCount(id)
		out = &g
		return nil
	})
	return out, err
}

func (r memGroups) List(ctx context.Context) ([]model.StudentGroup, error) {
	var out []model.StudentGroup
	err := r.s.do(func(d *memData) error {
		for id, g := range d.groups {
			g.MemberCount = d.memberCount(id)
			out = append(out, g)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
		return nil
	})
	return out, err
}

func (r memGroups) Delete(ctx context.Context, id uuid.UUID) error {
	return r.s.do(func(d *memData) error {
		if _, ok := d.groups[id]; !ok {
			return pgx.ErrNoRows
		}
		delete(d.groups, id)
		for k := range d.members {
			if k[0] == id {
				delete(d.members, k)
			}
		}
		for k := range d.grants {
			if k[1] == id {
				delete(d.grants, k)
			}
		}
		return nil
	})
}

func (r memGroups) AddMember(ctx context.Context, groupID, studentID uuid.UUID) (bool, error) {
	added := false
	err := r.s.do(func(d *memData) error {
		k := pair{groupID, studentID}
		if _, ok := d.members[k]; ok {
			return nil
		}
		d.members[k] = time.Now()
		added = true
		return nil
	})
	return added, err
}

func (r memGroups) RemoveMember(ctx context.Context, groupID, studentID uuid.UUID) (bool, error) {
	removed := false
	err := r.s.do(func(d *memData) error {
		k := pair{groupID, studentID}
		if _, ok := d.members[k]; ok {
			delete(d.members, k)
			removed = true
		}
		return nil
	})
	return removed, err
}

func (r memGroups) ListMembers(ctx context.Context, groupID uuid.UUID) ([]model.GroupMember, error) {
	var out []model.GroupMember
	err := r.s.do(func(d *memData) error {
		for k, at := range d.members {
			if k[0] != groupID {
				continue
			}
			st := d.students[k[1]]
			out = append(out, model.GroupMember{GroupID: groupID, StudentID: k[1], Name: st.Name, Email: st.Email, AddedAt: at})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
		return nil
	})
	return out, err
}

func (r memGroups) GrantExam(ctx context.Context, groupID, examID uuid.UUID) error {
	return r.s.do(func(d *memData) error {
		k := pair{examID, groupID}
		if _, ok := d.grants[k]; !ok {
			d.grants[k] = time.Now()
		}
		return nil
	})
}

func (r memGroups) RevokeExam(ctx context.Context, groupID, examID uuid.UUID) (bool, error) {
	removed := false
	err := r.s.do(func(d *memData) error {
		k := pair{examID, groupID}
		if _, ok := d.grants[k]; ok {
			delete(d.grants, k)
			removed = true
		}
		return nil
	})
	return removed, err
}

func (r memGroups) ListGroupsForExam(ctx context.Context, examID uuid.UUID) ([]model.StudentGroup, error) {
	var out []model.StudentGroup
	err := r.s.do(func(d *memData) error {
		for k := range d.grants {
			if k[0] == examID {
				g := d.groups[k[1]]
				g.MemberCount = d.memberCount(g.ID)
				out = append(out, g)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
		return nil
	})
	return out, err
}

func (r memGroups) HasExamAccess(ctx context.Context, studentID, examID uuid.UUID) (bool, error) {
	ok := false
	err := r.s.do(func(d *memData) error {
		for k := range d.members {
			if k[1] != studentID {
				continue
			}
			if _, granted := d.grants[pair{examID, k[0]}]; granted {
				ok = true
				return nil
			}
		}
		return nil
	})
	return ok, err
}

// ─── Sessions ───────────────────────────────────────────────────────

type memSessions struct{ s *memStore }

func (r memSessions) Create(ctx context.Context, sess *model.ExamSession) (bool, error) {
	created := false
	err := r.s.do(func(d *memData) error {
		for _, other := range d.sessions {
			if other.StudentID == sess.StudentID && other.ExamID == sess.ExamID && other.InProgress() {
				return nil
			}
		}
		sess.ID = uuid.New()
		sess.Status = model.SessionStatusInProgress
		d.sessions[sess.ID] = *sess
		created = true
		return nil
	})
	return created, err
}

func (r memSessions) GetByID(ctx context.Context, id uuid.UUID) (*model.ExamSession, error) {
	var out *model.ExamSession
	err := r.s.do(func(d *memData) error {
		sess, ok := d.sessions[id]
		if !ok {
			return pgx.ErrNoRows
		}
		out = &sess
		return nil
	})
	return out, err
}

func (r memSessions) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.ExamSession, error) {
	return r.GetByID(ctx, id)
}

func (r memSessions) GetLatestInProgress(ctx context.Context, studentID, examID uuid.UUID) (*model.ExamSession, error) {
	var out *model.ExamSession
	err := r.s.do(func(d *memData) error {
		for _, sess := range d.sessions {
			if sess.StudentID == studentID && sess.ExamID == examID && sess.InProgress() {
				if out == nil || sess.StartTime.After(out.StartTime) {
					sess := sess
					out = &sess
				}
			}
		}
		if out == nil {
			return pgx.ErrNoRows
		}
		return nil
	})
	return out, err
}

func (r memSessions) ListByExam(ctx context.Context, examID uuid.UUID) ([]model.ExamSession, error) {
	var out []model.ExamSession
	err := r.s.do(func(d *memData) error {
		for _, sess := range d.sessions {
			if sess.ExamID == examID {
				out = append(out, sess)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
		return nil
	})
	return out, err
}

func (r memSessions) update(id uuid.UUID, inProgressOnly bool, fn func(sess *model.ExamSession)) error {
	return r.s.do(func(d *memData) error {
		sess, ok := d.sessions[id]
		if !ok || (inProgressOnly && !sess.InProgress()) {
			return pgx.ErrNoRows
		}
		fn(&sess)
		d.sessions[id] = sess
		return nil
	})
}

func (r memSessions) IncrementViolations(ctx context.Context, id uuid.UUID) (int, error) {
	total := 0
	err := r.update(id, true, func(sess *model.ExamSession) {
		sess.TotalViolations++
		total = sess.TotalViolations
	})
	return total, err
}

func (r memSessions) MarkResumed(ctx context.Context, id uuid.UUID) (int, error) {
	count := 0
	err := r.update(id, true, func(sess *model.ExamSession) {
		sess.WasResumed = true
		sess.ResumeCount++
		count = sess.ResumeCount
	})
	return count, err
}

func (r memSessions) UpdateProgress(ctx context.Context, id uuid.UUID, completion float64) error {
	return r.update(id, true, func(sess *model.ExamSession) {
		sess.CompletionPercentage = completion
	})
}

func (r memSessions) UpdateStats(ctx context.Context, id uuid.UUID, completion float64, violations int) error {
	return r.update(id, false, func(sess *model.ExamSession) {
		sess.CompletionPercentage = completion
		sess.TotalViolations = violations
	})
}

func (r memSessions) Complete(ctx context.Context, in *model.ExamSession) error {
	err := r.update(in.ID, true, func(sess *model.ExamSession) {
		sess.Status = model.SessionStatusCompleted
		sess.EndTime = in.EndTime
		sess.ActualDurationSeconds = in.ActualDurationSeconds
		sess.Score = in.Score
		sess.SubmissionType = in.SubmissionType
		sess.CompletionPercentage = in.CompletionPercentage
		sess.TotalViolations = in.TotalViolations
	})
	if err == nil {
		in.Status = model.SessionStatusCompleted
	}
	return err
}

// ─── Events ─────────────────────────────────────────────────────────

type memEvents struct{ s *memStore }

func (r memEvents) Append(ctx context.Context, e *model.SessionEvent) error {
	return r.s.do(func(d *memData) error {
		if _, ok := d.sessions[e.SessionID]; !ok {
			return errors.New("foreign key violation: session_events.session_id")
		}
		d.nextEventID++
		e.ID = d.nextEventID
		if e.DetectedAt.IsZero() {
			e.DetectedAt = time.Now()
		}
		d.events = append(d.events, *e)
		return nil
	})
}

func (r memEvents) ListBySession(ctx context.Context, sessionID uuid.UUID, kind model.EventKind) ([]model.SessionEvent, error) {
	var out []model.SessionEvent
	err := r.s.do(func(d *memData) error {
		for _, e := range d.events {
			if e.SessionID == sessionID && (kind == "" || e.Kind == kind) {
				out = append(out, e)
			}
		}
		sort.SliceStable(out, func(i, j int) bool { return out[i].DetectedAt.Before(out[j].DetectedAt) })
		return nil
	})
	return out, err
}

func (r memEvents) CountBySession(ctx context.Context, sessionID uuid.UUID, kind model.EventKind) (int, error) {
	events, err := r.ListBySession(ctx, sessionID, kind)
	return len(events), err
}

// ─── Snapshots ──────────────────────────────────────────────────────

type memSnapshots struct{ s *memStore }

func (r memSnapshots) Insert(ctx context.Context, snap *model.SessionSnapshot) error {
	return r.s.do(func(d *memData) error {
		d.nextSnapshotID++
		snap.ID = d.nextSnapshotID
		d.snapshots = append(d.snapshots, *snap)
		return nil
	})
}

func (r memSnapshots) InsertBatch(ctx context.Context, snaps []*model.SessionSnapshot) (int64, error) {
	err := r.s.do(func(d *memData) error {
		for _, snap := range snaps {
			d.nextSnapshotID++
			snap.ID = d.nextSnapshotID
			d.snapshots = append(d.snapshots, *snap)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return int64(len(snaps)), nil
}

func newer(a, b model.SessionSnapshot) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.ID > b.ID
	}
	return a.CreatedAt.After(b.CreatedAt)
}

func (r memSnapshots) Latest(ctx context.Context, sessionID uuid.UUID) (*model.SessionSnapshot, error) {
	var out *model.SessionSnapshot
	err := r.s.do(func(d *memData) error {
		for _, snap := range d.snapshots {
			if snap.SessionID != sessionID {
				continue
			}
			if out == nil || newer(snap, *out) {
				snap := snap
				out = &snap
			}
		}
		if out == nil {
			return pgx.ErrNoRows
		}
		return nil
	})
	return out, err
}

func (r memSnapshots) Prune(ctx context.Context, keep int) (int64, error) {
	var removed int64
	err := r.s.do(func(d *memData) error {
		bySession := map[uuid.UUID][]model.SessionSnapshot{}
		for _, snap := range d.snapshots {
			bySession[snap.SessionID] = append(bySession[snap.SessionID], snap)
		}
		drop := map[int64]bool{}
		for sessionID, snaps := range bySession {
			if sess, ok := d.sessions[sessionID]; !ok || sess.InProgress() {
				continue
			}
			sort.Slice(snaps, func(i, j int) bool { return newer(snaps[i], snaps[j]) })
			for _, snap := range snaps[min(keep, len(snaps)):] {
				drop[snap.ID] = true
			}
		}
		kept := d.snapshots[:0:0]
		for _, snap := range d.snapshots {
			if drop[snap.ID] {
				removed++
				continue
			}
			kept = append(kept, snap)
		}
		d.snapshots = kept
		return nil
	})
	return removed, err
}

// ─── Responses ──────────────────────────────────────────────────────

type memResponses struct{ s *memStore }

func (r memResponses) Upsert(ctx context.Context, resp *model.Response) error {
	return r.s.do(func(d *memData) error {
		resp.AnsweredAt = time.Now()
		d.responses[pair{resp.SessionID, resp.QuestionID}] = *resp
		return nil
	})
}

func (r memResponses) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]model.Response, error) {
	var out []model.Response
	err := r.s.do(func(d *memData) error {
		for k, resp := range d.responses {
			if k[0] == sessionID {
				out = append(out, resp)
			}
		}
		return nil
	})
	return out, err
}

func (r memResponses) CountAnswered(ctx context.Context, sessionID uuid.UUID) (int, error) {
	resps, err := r.ListBySession(ctx, sessionID)
	return len(resps), err
}

func (r memResponses) CountCorrect(ctx context.Context, sessionID uuid.UUID) (int, error) {
	n := 0
	err := r.s.do(func(d *memData) error {
		for k, resp := range d.responses {
			q := d.questions[k[1]]
			if k[0] == sessionID && q.QuestionType == model.QuestionTypeMultipleChoice &&
				resp.IsCorrect != nil && *resp.IsCorrect {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r memResponses) AggregateScore(ctx context.Context, sessionID uuid.UUID) (float64, error) {
	if r.s.db.aggregateErr != nil {
		return 0, r.s.db.aggregateErr
	}
	var examID uuid.UUID
	err := r.s.do(func(d *memData) error {
		sess, ok := d.sessions[sessionID]
		if !ok {
			return pgx.ErrNoRows
		}
		examID = sess.ExamID
		return nil
	})
	if err != nil {
		return 0, err
	}
	total, err := memQuestions(r).CountScorableByExam(ctx, examID)
	if err != nil {
		return 0, err
	}
	correct, err := r.CountCorrect(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	return ComputeScore(correct, total), nil
}

// ─── Reports ────────────────────────────────────────────────────────

type memReports struct{ s *memStore }

func (r memReports) Create(ctx context.Context, rep *model.ProctoringReport) error {
	if r.s.db.reportErr != nil {
		return r.s.db.reportErr
	}
	return r.s.do(func(d *memData) error {
		if _, ok := d.reports[rep.SessionID]; ok {
			return &pgconn.PgError{Code: pgUniqueViolation, ConstraintName: "proctoring_reports_session_id_key"}
		}
		rep.ID = uuid.New()
		rep.CreatedAt = time.Now()
		d.reports[rep.SessionID] = *rep
		return nil
	})
}

func (r memReports) GetBySession(ctx context.Context, sessionID uuid.UUID) (*model.ProctoringReport, error) {
	var out *model.ProctoringReport
	err := r.s.do(func(d *memData) error {
		rep, ok := d.reports[sessionID]
		if !ok {
			return pgx.ErrNoRows
		}
		out = &rep
		return nil
	})
	return out, err
}

func (r memReports) ListByExam(ctx context.Context, examID uuid.UUID) ([]model.ProctoringReport, error) {
	var out []model.ProctoringReport
	err := r.s.do(func(d *memData) error {
		for _, rep := range d.reports {
			if rep.ExamID == examID {
				out = append(out, rep)
			}
		}
		return nil
	})
	return out, err
}
