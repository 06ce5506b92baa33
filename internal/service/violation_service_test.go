package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-proctor/internal/model"
)

func TestDetermineSeverity(t *testing.T) {
	tests := []struct {
		violationType string
		want          model.Severity
	}{
		{"Developer Tools Opened", model.SeverityCritical},
		{"console access", model.SeverityCritical},
		{"Exam terminated by proctor", model.SeverityCritical},
		{"multiple violations detected", model.SeverityCritical},
		{"Paste attempt", model.SeverityHigh},
		{"COPY attempt", model.SeverityHigh},
		{"right-click", model.SeverityHigh},
		{"View Source", model.SeverityHigh},
		{"Tab Switch", model.SeverityMedium},
		{"window blur", model.SeverityMedium},
		{"Lost focus", model.SeverityMedium},
		{"fullscreen exit", model.SeverityLow},
		{"", model.SeverityLow},
		// critical keywords win over later categories
		{"copy from console", model.SeverityCritical},
		{"paste into new tab", model.SeverityHigh},
	}

	for _, tt := range tests {
		t.Run(tt.violationType, func(t *testing.T) {
			if got := DetermineSeverity(tt.violationType); got != tt.want {
				t.Fatalf("DetermineSeverity(%q) = %q, want %q", tt.violationType, got, tt.want)
			}
		})
	}
}

func TestLogViolationSignalsTerminationAtThreshold(t *testing.T) {
	env := newTestEnv(t)
	student := env.addStudent(t, true)
	exam, _ := env.addExam(t, 5, 1, 0, false)
	sess := env.startSession(t, student, exam)

	for i := 1; i <= 4; i++ {
		res := env.logViolation(t, sess.ID, "Tab switch")
		if res.TotalViolations != i {
			t.Fatalf("violation %d: total = %d", i, res.TotalViolations)
		}
		if res.ShouldTerminate {
			t.Fatalf("violation %d: should not terminate yet", i)
		}
		if res.Severity != model.SeverityMedium {
			t.Fatalf("violation %d: severity = %q", i, res.Severity)
		}
	}

	res := env.logViolation(t, sess.ID, "Tab switch")
	if res.TotalViolations != 5 || !res.ShouldTerminate {
		t.Fatalf("5th violation: got total=%d terminate=%v", res.TotalViolations, res.ShouldTerminate)
	}

	// The ledger only signals; the session is still open.
	got, err := env.sessions.Get(context.Background(), sess.ID, student.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if !got.InProgress() {
		t.Fatal("logging a violation must not complete the session")
	}
}

func TestLogViolationKeepsExplicitSeverity(t *testing.T) {
	env := newTestEnv(t)
	student := env.addStudent(t, true)
	exam, _ := env.addExam(t, 5, 1, 0, false)
	sess := env.startSession(t, student, exam)

	res, err := env.violations.Log(context.Background(), sess.ID, model.LogViolationRequest{
		ViolationType: "Tab switch",
		Severity:      model.SeverityCritical,
	})
	if err != nil {
		t.Fatalf("log: %v", err)
	}
	if res.Severity != model.SeverityCritical {
		t.Fatalf("severity = %q, want critical", res.Severity)
	}
	if res.ViolationID == 0 || res.DetectedAt.IsZero() {
		t.Fatalf("missing id or timestamp: %+v", res)
	}
}

func TestLogViolationConcurrentCount(t *testing.T) {
	env := newTestEnv(t)
	student := env.addStudent(t, true)
	exam, _ := env.addExam(t, 1000, 1, 0, false)
	sess := env.startSession(t, student, exam)

	const n = 25
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.violations.Log(context.Background(), sess.ID, model.LogViolationRequest{ViolationType: "focus lost"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("log: %v", err)
		}
	}

	got, _ := env.sessions.Get(context.Background(), sess.ID, student.ID)
	if got.TotalViolations != n {
		t.Fatalf("total_violations = %d, want %d", got.TotalViolations, n)
	}
	list, err := env.violations.List(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != n {
		t.Fatalf("violation rows = %d, want %d", len(list), n)
	}
}

func TestLogViolationRejectsCompletedSession(t *testing.T) {
	env := newTestEnv(t)
	student := env.addStudent(t, true)
	exam, _ := env.addExam(t, 5, 1, 0, false)
	sess := env.startSession(t, student, exam)

	if _, err := env.sessions.Complete(context.Background(), sess.ID, model.SubmissionManual); err != nil {
		t.Fatalf("complete: %v", err)
	}

	_, err := env.violations.Log(context.Background(), sess.ID, model.LogViolationRequest{ViolationType: "paste"})
	if !errors.Is(err, ErrSessionCompleted) {
		t.Fatalf("err = %v, want ErrSessionCompleted", err)
	}
}

func TestLogViolationUnknownSession(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.violations.Log(context.Background(), uuid.New(), model.LogViolationRequest{ViolationType: "paste"})
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestListViolationsExcludesLifecycleEvents(t *testing.T) {
	env := newTestEnv(t)
	student := env.addStudent(t, true)
	exam, _ := env.addExam(t, 5, 1, 0, false)
	sess := env.startSession(t, student, exam)

	env.logViolation(t, sess.ID, "copy")
	env.logViolation(t, sess.ID, "tab switch")

	list, err := env.violations.ListOwned(context.Background(), sess.ID, student.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("got %d events, want 2", len(list))
	}
	if list[0].EventType != "copy" || list[1].EventType != "tab switch" {
		t.Fatalf("unexpected order: %q, %q", list[0].EventType, list[1].EventType)
	}
	for _, ev := range list {
		if ev.Kind != model.EventKindViolation {
			t.Fatalf("unexpected kind %q", ev.Kind)
		}
	}

	if _, err := env.violations.ListOwned(context.Background(), sess.ID, uuid.New()); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("foreign student: err = %v, want ErrSessionNotFound", err)
	}

	if got := env.publisher.types(); got[len(got)-1] != model.MonitorViolation {
		t.Fatalf("last monitor event = %q, want violation", got[len(got)-1])
	}
}
