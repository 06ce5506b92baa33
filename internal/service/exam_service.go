package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/repository"
)

const defaultMaxViolations = 5

// ExamService handles exam and question administration.
type ExamService struct {
	store repository.Store
	log   zerolog.Logger
}

// NewExamService creates a new ExamService.
func NewExamService(store repository.Store, log zerolog.Logger) *ExamService {
	return &ExamService{
		store: store,
		log:   log.With().Str("component", "exam_service").Logger(),
	}
}

// Create inserts a new, inactive exam.
func (s *ExamService) Create(ctx context.Context, req model.CreateExamRequest) (*model.Exam, error) {
	maxViolations := req.MaxViolations
	if maxViolations <= 0 {
		maxViolations = defaultMaxViolations
	}
	exam := &model.Exam{
		Title:           req.Title,
		Description:     req.Description,
		DurationMinutes: req.DurationMinutes,
		MaxViolations:   maxViolations,
		UseGroupAccess:  req.UseGroupAccess,
	}
	if err := s.store.Exams().Create(ctx, exam); err != nil {
		return nil, fmt.Errorf("create exam: %w", err)
	}
	return exam, nil
}

// GetByID returns an exam.
func (s *ExamService) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	exam, err := s.store.Exams().GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("get exam: %w", err)
	}
	return exam, nil
}

// List returns a page of exams and the total count.
func (s *ExamService) List(ctx context.Context, page, perPage int) ([]model.Exam, int, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	exams, total, err := s.store.Exams().List(ctx, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, fmt.Errorf("list exams: %w", err)
	}
	if exams == nil {
		exams = []model.Exam{}
	}
	return exams, total, nil
}

// Update applies a partial update. An empty or no-op patch returns the
// exam unchanged without writing.
func (s *ExamService) Update(ctx context.Context, id uuid.UUID, patch model.ExamPatch) (*model.Exam, error) {
	exam, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !patch.Apply(exam) {
		return exam, nil
	}
	if err := s.store.Exams().Update(ctx, exam); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("update exam: %w", err)
	}
	return exam, nil
}

// Activate makes the exam the single active one. Activating the already
// active exam is a no-op.
func (s *ExamService) Activate(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	var exam *model.Exam
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		var err error
		exam, err = tx.Exams().GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrExamNotFound
			}
			return fmt.Errorf("get exam: %w", err)
		}
		if err := tx.Exams().DeactivateOthers(ctx, id); err != nil {
			return fmt.Errorf("deactivate exams: %w", err)
		}
		if exam.IsActive {
			return nil
		}
		if err := tx.Exams().SetActive(ctx, id); err != nil {
			return fmt.Errorf("activate exam: %w", err)
		}
		exam.IsActive = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("exam_id", id.String()).Msg("Exam activated")
	return exam, nil
}

// Delete removes an exam with its questions and sessions.
func (s *ExamService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.store.Exams().Delete(ctx, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrExamNotFound
		}
		return fmt.Errorf("delete exam: %w", err)
	}
	return nil
}

// AddQuestion appends a question to an exam. Multiple-choice questions
// need a JSON array of options and a correct index within it.
func (s *ExamService) AddQuestion(ctx context.Context, examID uuid.UUID, req model.AddQuestionRequest) (*model.Question, error) {
	if err := examExists(ctx, s.store, examID); err != nil {
		return nil, err
	}

	q := &model.Question{
		ExamID:       examID,
		QuestionText: req.QuestionText,
		QuestionType: model.QuestionType(req.QuestionType),
		Options:      req.Options,
		OrderNum:     req.OrderNum,
	}

	if q.QuestionType == model.QuestionTypeMultipleChoice {
		var options []json.RawMessage
		if err := json.Unmarshal(req.Options, &options); err != nil || len(options) < 2 {
			return nil, ErrInvalidQuestion
		}
		if req.CorrectOptionIndex == nil || *req.CorrectOptionIndex >= len(options) {
			return nil, ErrInvalidQuestion
		}
		q.CorrectOptionIndex = req.CorrectOptionIndex
	}

	if err := s.store.Questions().Create(ctx, q); err != nil {
		return nil, fmt.Errorf("create question: %w", err)
	}
	return q, nil
}

// ListQuestions returns an exam's questions in display order.
func (s *ExamService) ListQuestions(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	if err := examExists(ctx, s.store, examID); err != nil {
		return nil, err
	}
	questions, err := s.store.Questions().ListByExam(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	if questions == nil {
		questions = []model.Question{}
	}
	return questions, nil
}

// ActiveExam is the active exam as shown to a student, with questions
// stripped of their answer keys.
type ActiveExam struct {
	Exam      *model.Exam      `json:"exam"`
	Questions []model.Question `json:"questions"`
}

// GetActiveForStudent returns the active exam if the student may take it.
func (s *ExamService) GetActiveForStudent(ctx context.Context, studentID uuid.UUID) (*ActiveExam, error) {
	exam, err := s.store.Exams().GetActive(ctx)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoActiveExam
		}
		return nil, fmt.Errorf("get active exam: %w", err)
	}

	ok, err := canAccess(ctx, s.store, studentID, exam.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAccessDeniedToExam
	}

	questions, err := s.store.Questions().ListByExam(ctx, exam.ID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	for i := range questions {
		questions[i].CorrectOptionIndex = nil
	}
	if questions == nil {
		questions = []model.Question{}
	}
	return &ActiveExam{Exam: exam, Questions: questions}, nil
}
