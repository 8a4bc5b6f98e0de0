package engine

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/examina/examina-backend/internal/model"
)

func boolPtr(b bool) *bool { return &b }

func strPtr(s string) *string { return &s }

func answerWith(opts ...string) *model.Answer {
	return &model.Answer{SelectedOptions: opts}
}

func TestGradeAnswer_SingleChoice(t *testing.T) {
	q := model.Question{
		QuestionType: model.QuestionTypeSingleChoice,
		CorrectKeys:  []string{"B"},
		Points:       2,
	}

	tests := []struct {
		name      string
		answer    *model.Answer
		isCorrect *bool
		points    float64
	}{
		{name: "correct", answer: answerWith("B"), isCorrect: boolPtr(true), points: 2},
		{name: "wrong", answer: answerWith("A"), isCorrect: boolPtr(false), points: 0},
		{name: "multiple selected is wrong", answer: answerWith("A", "B"), isCorrect: boolPtr(false), points: 0},
		{name: "unanswered", answer: nil, isCorrect: boolPtr(false), points: 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := GradeAnswer(q, tc.answer)
			if got.ManualRequired {
				t.Fatal("single choice must be auto-gradable")
			}
			if *got.IsCorrect != *tc.isCorrect {
				t.Errorf("is_correct = %v, want %v", *got.IsCorrect, *tc.isCorrect)
			}
			if *got.PointsAwarded != tc.points {
				t.Errorf("points = %v, want %v", *got.PointsAwarded, tc.points)
			}
		})
	}
}

func TestGradeAnswer_TrueFalse(t *testing.T) {
	q := model.Question{
		QuestionType: model.QuestionTypeTrueFalse,
		CorrectKeys:  []string{"true"},
		Points:       1,
	}

	if got := GradeAnswer(q, answerWith("true")); !*got.IsCorrect {
		t.Error("exact match should be correct")
	}
	if got := GradeAnswer(q, answerWith("false")); *got.IsCorrect {
		t.Error("mismatch should be incorrect")
	}
}

func TestGradeAnswer_MultiChoice(t *testing.T) {
	q := model.Question{
		QuestionType: model.QuestionTypeMultiChoice,
		CorrectKeys:  []string{"A", "D"},
		Points:       4,
	}

	tests := []struct {
		name    string
		answer  *model.Answer
		correct bool
	}{
		{name: "exact set any order", answer: answerWith("D", "A"), correct: true},
		{name: "duplicates collapse", answer: answerWith("A", "D", "A"), correct: true},
		{name: "missing one", answer: answerWith("A"), correct: false},
		{name: "extra one", answer: answerWith("A", "D", "B"), correct: false},
		{name: "empty selection", answer: answerWith(), correct: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := GradeAnswer(q, tc.answer)
			if *got.IsCorrect != tc.correct {
				t.Errorf("is_correct = %v, want %v", *got.IsCorrect, tc.correct)
			}
		})
	}
}

func TestGradeAnswer_EssayRequiresManual(t *testing.T) {
	q := model.Question{QuestionType: model.QuestionTypeEssay, Points: 10}
	got := GradeAnswer(q, &model.Answer{FreeText: strPtr("my long essay")})
	if !got.ManualRequired {
		t.Fatal("essay must require manual grading")
	}
	if got.IsCorrect != nil || got.PointsAwarded != nil {
		t.Error("essay must leave is_correct and points_awarded nil")
	}
}

// Ten one-point questions, eight answered correctly: total 8.00, 80.00%,
// fully graded, passed with passing marks 6.
func TestScoreSession_AllAnswered(t *testing.T) {
	exam := &model.Exam{TotalMarks: 10, PassingMarks: 6}
	questions := make([]model.Question, 10)
	finals := make(map[uuid.UUID]*model.Answer, 10)

	for i := range questions {
		questions[i] = model.Question{
			ID:           uuid.New(),
			QuestionType: model.QuestionTypeSingleChoice,
			CorrectKeys:  []string{"A"},
			Points:       1,
		}
		selected := "A"
		if i >= 8 {
			selected = "B" // two wrong
		}
		finals[questions[i].ID] = answerWith(selected)
	}

	score := ScoreSession(exam, questions, finals)
	if score.TotalScore != 8.00 {
		t.Errorf("total = %v, want 8.00", score.TotalScore)
	}
	if score.Percentage != 80.00 {
		t.Errorf("percentage = %v, want 80.00", score.Percentage)
	}
	if !score.FullyGraded {
		t.Error("all-choice exam must be fully graded")
	}
	if score.Passed == nil || !*score.Passed {
		t.Error("8 >= 6 must pass")
	}
}

// Three answered out of ten: the remaining seven score as incorrect/zero.
func TestScoreSession_PartiallyAnswered(t *testing.T) {
	exam := &model.Exam{TotalMarks: 10, PassingMarks: 6}
	questions := make([]model.Question, 10)
	finals := make(map[uuid.UUID]*model.Answer, 3)

	for i := range questions {
		questions[i] = model.Question{
			ID:           uuid.New(),
			QuestionType: model.QuestionTypeSingleChoice,
			CorrectKeys:  []string{"A"},
			Points:       1,
		}
		if i < 3 {
			finals[questions[i].ID] = answerWith("A")
		}
	}

	score := ScoreSession(exam, questions, finals)
	if score.TotalScore != 3.00 {
		t.Errorf("total = %v, want 3.00", score.TotalScore)
	}
	for _, q := range questions[3:] {
		outcome := score.PerQuestion[q.ID]
		if outcome.IsCorrect == nil || *outcome.IsCorrect {
			t.Fatal("unanswered question must be scored incorrect")
		}
	}
	if score.Passed == nil || *score.Passed {
		t.Error("3 < 6 must not pass")
	}
}

// An essay in the mix leaves the score provisional: fully_graded false,
// passed undecided, essay excluded from the automatic total.
func TestScoreSession_EssayMixProvisional(t *testing.T) {
	exam := &model.Exam{TotalMarks: 12, PassingMarks: 6}
	choice := model.Question{
		ID:           uuid.New(),
		QuestionType: model.QuestionTypeSingleChoice,
		CorrectKeys:  []string{"C"},
		Points:       2,
	}
	essay := model.Question{
		ID:           uuid.New(),
		QuestionType: model.QuestionTypeEssay,
		Points:       10,
	}
	finals := map[uuid.UUID]*model.Answer{
		choice.ID: answerWith("C"),
		essay.ID:  {FreeText: strPtr("essay body")},
	}

	score := ScoreSession(exam, []model.Question{choice, essay}, finals)
	if score.TotalScore != 2.00 {
		t.Errorf("provisional total = %v, want 2.00", score.TotalScore)
	}
	if score.FullyGraded {
		t.Error("essay exam must not be fully graded automatically")
	}
	if score.Passed != nil {
		t.Error("pass/fail must stay undecided until manual grading closes")
	}
}

func TestScoreSession_PercentageRounding(t *testing.T) {
	exam := &model.Exam{TotalMarks: 3, PassingMarks: 1}
	q := model.Question{
		ID:           uuid.New(),
		QuestionType: model.QuestionTypeSingleChoice,
		CorrectKeys:  []string{"A"},
		Points:       1,
	}
	finals := map[uuid.UUID]*model.Answer{q.ID: answerWith("A")}

	score := ScoreSession(exam, []model.Question{q}, finals)
	// 1/3 * 100 = 33.333... → 33.33
	if score.Percentage != 33.33 {
		t.Errorf("percentage = %v, want 33.33", score.Percentage)
	}
}

func TestWritablePredicate(t *testing.T) {
	now := time.Now()
	s := &model.ExamSession{
		Status:         model.SessionStatusInProgress,
		ScheduledEndAt: now.Add(time.Minute),
	}

	if !s.Writable(now) {
		t.Error("in-progress before deadline must be writable")
	}
	if s.Writable(now.Add(time.Minute)) {
		t.Error("at the deadline the session is no longer writable")
	}

	s.Status = model.SessionStatusSubmitted
	if s.Writable(now) {
		t.Error("terminal session must not be writable")
	}

	s.Status = model.SessionStatusInterrupted
	if s.Writable(now) {
		t.Error("interrupted session is not directly writable")
	}
	if !s.Resumable(now) {
		t.Error("interrupted session before deadline must be resumable")
	}
	if s.Resumable(now.Add(2 * time.Minute)) {
		t.Error("interrupted session past deadline must not be resumable")
	}
}
