package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/database"
	"github.com/stemsi/exstem-proctor/internal/logger"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/repository"
	"github.com/stemsi/exstem-proctor/internal/service"
)

var names = []string{
	"Budi Santoso", "Siti Aminah", "Andi Pratama", "Rina Wati", "Joko Susilo",
	"Ayu Lestari", "Dodi Kusuma", "Eka Putri", "Fahri Hamzah", "Gita Savitri",
	"Hendra Gunawan", "Ika Sari", "Jamal Mirdad", "Kiki Fatmala", "Lukman Hakim",
	"Maya Septiana", "Nanda Pratama", "Oki Setiana", "Putri Dian", "Qori Maharani",
	"Rafi Ahmad", "Siska Saraswati", "Toni Setiawan", "Umi Kalsum", "Vina Panduwinata",
	"Wahyu Hidayat", "Xena Maharani", "Yudi Pratama", "Zaki Anwar", "Alifia Zahra",
}

type seedQuestion struct {
	text    string
	options []string
	correct int
}

var questions = []seedQuestion{
	{"Which protocol upgrades an HTTP connection to a full-duplex channel?", []string{"SMTP", "WebSocket", "FTP", "SNMP"}, 1},
	{"What does the 'C' in ACID stand for?", []string{"Concurrency", "Caching", "Consistency", "Commit"}, 2},
	{"Which HTTP status code means 'Conflict'?", []string{"404", "409", "422", "503"}, 1},
	{"Which data structure is FIFO?", []string{"Queue", "Stack", "Heap", "Trie"}, 0},
}

func main() {
	count := flag.Int("students", 20, "Number of demo students to create")
	password := flag.String("password", "password123", "Password for every demo student")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	store := repository.NewStore(pool)
	authService := service.NewAuthService(cfg, store, nil, log)
	accountService := service.NewAccountService(store, authService, log)
	examService := service.NewExamService(store, log)
	groupService := service.NewGroupService(store, log)

	if *count > len(names) {
		*count = len(names)
	}

	fmt.Printf("=== Seeding %d students ===\n", *count)
	studentIDs := make([]uuid.UUID, 0, *count)
	for i := 0; i < *count; i++ {
		student, err := accountService.CreateStudent(ctx, model.CreateStudentRequest{
			Email:    fmt.Sprintf("student%02d@exstem.test", i+1),
			Name:     names[i],
			Password: *password,
		})
		if errors.Is(err, service.ErrEmailExists) {
			fmt.Printf("Skipping student%02d: already exists\n", i+1)
			continue
		}
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create student")
		}
		studentIDs = append(studentIDs, student.ID)
	}

	exam, err := examService.Create(ctx, model.CreateExamRequest{
		Title:           "Demo Exam",
		Description:     "Seeded exam for local testing",
		DurationMinutes: 60,
		MaxViolations:   3,
		UseGroupAccess:  true,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create exam")
	}
	fmt.Printf("Created exam %s\n", exam.ID)

	for i, q := range questions {
		opts, _ := json.Marshal(q.options)
		correct := q.correct
		if _, err := examService.AddQuestion(ctx, exam.ID, model.AddQuestionRequest{
			QuestionText:       q.text,
			QuestionType:       string(model.QuestionTypeMultipleChoice),
			Options:            opts,
			CorrectOptionIndex: &correct,
			OrderNum:           i + 1,
		}); err != nil {
			log.Fatal().Err(err).Msg("Failed to add question")
		}
	}
	if _, err := examService.AddQuestion(ctx, exam.ID, model.AddQuestionRequest{
		QuestionText: "Describe how you would recover an interrupted exam session.",
		QuestionType: string(model.QuestionTypeText),
		OrderNum:     len(questions) + 1,
	}); err != nil {
		log.Fatal().Err(err).Msg("Failed to add question")
	}

	group, err := groupService.Create(ctx, model.CreateGroupRequest{
		Name:        fmt.Sprintf("Demo Group %s", time.Now().Format("20060102-150405")),
		Description: "Seeded students",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create group")
	}
	if len(studentIDs) > 0 {
		if err := groupService.AddMembers(ctx, group.ID, studentIDs); err != nil {
			log.Fatal().Err(err).Msg("Failed to add group members")
		}
	}
	if err := groupService.GrantExam(ctx, group.ID, exam.ID); err != nil {
		log.Fatal().Err(err).Msg("Failed to grant exam to group")
	}

	if _, err := examService.Activate(ctx, exam.ID); err != nil {
		log.Fatal().Err(err).Msg("Failed to activate exam")
	}

	fmt.Printf("\nSeed completed! %d students in group %q, exam %q is active.\n", len(studentIDs), group.Name, exam.Title)
}
