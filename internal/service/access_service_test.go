package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-proctor/internal/model"
)

func TestCanAccessWithoutGroups(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	exam, _ := env.addExam(t, 5, 1, 0, false)

	authorized := env.addStudent(t, true)
	unauthorized := env.addStudent(t, false)

	tests := []struct {
		name      string
		studentID uuid.UUID
		want      bool
	}{
		{"authorized student", authorized.ID, true},
		{"unauthorized student", unauthorized.ID, false},
		{"unknown student", uuid.New(), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := env.access.CanAccess(ctx, tt.studentID, exam.ID)
			if err != nil {
				t.Fatalf("CanAccess: %v", err)
			}
			if got != tt.want {
				t.Fatalf("CanAccess = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCanAccessWithGroups(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	exam, _ := env.addExam(t, 5, 1, 0, true)

	// The global flag is ignored for group-gated exams.
	student := env.addStudent(t, true)
	if ok, _ := env.access.CanAccess(ctx, student.ID, exam.ID); ok {
		t.Fatal("student outside any granted group must be denied")
	}

	group, err := env.groups.Create(ctx, model.CreateGroupRequest{Name: "Class 12A"})
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	if err := env.groups.AddMember(ctx, group.ID, student.ID); err != nil {
		t.Fatalf("add member: %v", err)
	}
	if ok, _ := env.access.CanAccess(ctx, student.ID, exam.ID); ok {
		t.Fatal("membership alone must not grant access")
	}

	if err := env.groups.GrantExam(ctx, group.ID, exam.ID); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if ok, _ := env.access.CanAccess(ctx, student.ID, exam.ID); !ok {
		t.Fatal("student in granted group must be allowed")
	}

	if err := env.groups.RevokeExam(ctx, group.ID, exam.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if ok, _ := env.access.CanAccess(ctx, student.ID, exam.ID); ok {
		t.Fatal("revoked grant must deny on the next call")
	}
}

func TestCanAccessUnknownExam(t *testing.T) {
	env := newTestEnv(t)
	student := env.addStudent(t, true)

	_, err := env.access.CanAccess(context.Background(), student.ID, uuid.New())
	if !errors.Is(err, ErrExamNotFound) {
		t.Fatalf("err = %v, want ErrExamNotFound", err)
	}
}
