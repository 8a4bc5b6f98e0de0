package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/examina/examina-backend/internal/config"
	"github.com/examina/examina-backend/internal/database"
	"github.com/examina/examina-backend/internal/logger"
	"github.com/examina/examina-backend/internal/service"
)

// Seeds a published exam with a small question set and prints a student
// JWT, so the engine can be exercised locally without the authoring and
// identity services running.
func main() {
	var studentID int
	var durationMin int
	flag.IntVar(&studentID, "student", 1, "Student ID to mint a token for")
	flag.IntVar(&durationMin, "duration", 60, "Exam duration in minutes")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	examID := uuid.New()
	now := time.Now().UTC()

	_, err = pool.Exec(ctx,
		`INSERT INTO exams
			(id, title, start_time, end_time, duration_minutes, total_marks,
			 passing_marks, randomize_questions, randomize_options,
			 max_violation_count, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE, TRUE, 5, 'PUBLISHED')`,
		examID, "Seeded Practice Exam", now.Add(-time.Hour), now.Add(24*time.Hour),
		durationMin, 10.0, 6.0)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to insert exam")
	}

	type seedQuestion struct {
		text    string
		qType   string
		options []map[string]string
		keys    []string
		points  float64
	}

	abcd := []map[string]string{
		{"key": "a", "text": "Option A"},
		{"key": "b", "text": "Option B"},
		{"key": "c", "text": "Option C"},
		{"key": "d", "text": "Option D"},
	}
	tf := []map[string]string{
		{"key": "true", "text": "True"},
		{"key": "false", "text": "False"},
	}

	questions := []seedQuestion{
		{"What is 2 + 2?", "SINGLE_CHOICE", abcd, []string{"b"}, 2},
		{"Select the prime numbers.", "MULTI_CHOICE", abcd, []string{"a", "c"}, 2},
		{"The earth is flat.", "TRUE_FALSE", tf, []string{"false"}, 2},
		{"Pick the largest value.", "SINGLE_CHOICE", abcd, []string{"d"}, 2},
		{"Explain your reasoning for question 4.", "ESSAY", nil, nil, 2},
	}

	for i, q := range questions {
		options, _ := json.Marshal(q.options)
		keys, _ := json.Marshal(q.keys)
		_, err := pool.Exec(ctx,
			`INSERT INTO questions
				(id, exam_id, question_text, question_type, options, correct_keys, points, order_num)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			uuid.New(), examID, q.text, q.qType, options, keys, q.points, i+1)
		if err != nil {
			log.Fatal().Err(err).Int("order", i+1).Msg("Failed to insert question")
		}
	}

	token, err := service.NewAuthService(cfg).MintStudentToken(studentID, 12*time.Hour)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to mint student token")
	}

	fmt.Printf("Exam seeded: %s\n", examID)
	fmt.Printf("Student JWT (id=%d):\n%s\n", studentID, token)
	fmt.Printf("\nStart a session with:\n")
	fmt.Printf("  curl -X POST -H 'Authorization: Bearer <jwt>' \\\n")
	fmt.Printf("    http://localhost:%s/api/v1/exams/%s/sessions\n", cfg.ServerPort, examID)
}
