package engine

import (
	"math"
	"sort"

	"github.com/google/uuid"

	"github.com/examina/examina-backend/internal/model"
)

// GradeOutcome is the result of grading a single question.
type GradeOutcome struct {
	// IsCorrect is nil when the question awaits manual grading.
	IsCorrect *bool
	// PointsAwarded is nil when the question awaits manual grading.
	PointsAwarded *float64
	// ManualRequired marks essay/matching questions, which are excluded
	// from the automatic total until a human grades them.
	ManualRequired bool
}

// SessionScore aggregates grading across a whole session.
type SessionScore struct {
	TotalScore float64
	Percentage float64
	// FullyGraded is false while any question still needs manual grading;
	// TotalScore is provisional until then.
	FullyGraded bool
	// Passed is nil until grading is complete.
	Passed *bool
	// PerQuestion holds the outcome for every question in the exam,
	// keyed by question ID (unanswered questions included).
	PerQuestion map[uuid.UUID]GradeOutcome
}

// GradeAnswer grades one final answer against its question definition.
// A nil answer means the question was never answered: auto-gradable types
// score zero, manual types still require a human (an examiner may award
// points for a blank essay only explicitly).
func GradeAnswer(q model.Question, a *model.Answer) GradeOutcome {
	if !q.QuestionType.AutoGradable() {
		return GradeOutcome{ManualRequired: true}
	}

	correct := false
	if a != nil {
		switch q.QuestionType {
		case model.QuestionTypeTrueFalse, model.QuestionTypeSingleChoice:
			correct = len(a.SelectedOptions) == 1 &&
				len(q.CorrectKeys) == 1 &&
				a.SelectedOptions[0] == q.CorrectKeys[0]
		case model.QuestionTypeMultiChoice:
			correct = setEqual(a.SelectedOptions, q.CorrectKeys)
		}
	}

	points := 0.0
	if correct {
		points = q.Points
	}
	return GradeOutcome{IsCorrect: &correct, PointsAwarded: &points}
}

// ScoreSession grades the final-answer set of a session. finals maps
// question ID to the final Answer row (absent key = unanswered).
func ScoreSession(exam *model.Exam, questions []model.Question, finals map[uuid.UUID]*model.Answer) SessionScore {
	score := SessionScore{
		FullyGraded: true,
		PerQuestion: make(map[uuid.UUID]GradeOutcome, len(questions)),
	}

	for _, q := range questions {
		outcome := GradeAnswer(q, finals[q.ID])
		score.PerQuestion[q.ID] = outcome

		if outcome.ManualRequired {
			score.FullyGraded = false
			continue
		}
		score.TotalScore += *outcome.PointsAwarded
	}

	score.TotalScore = round2(score.TotalScore)
	if exam.TotalMarks > 0 {
		score.Percentage = round2(score.TotalScore / exam.TotalMarks * 100)
	}

	// Pass/fail is only meaningful once every question is graded; an
	// essay-containing exam yields a provisional score until then.
	if score.FullyGraded {
		passed := score.TotalScore >= exam.PassingMarks
		score.Passed = &passed
	}

	return score
}

// setEqual compares two option-key sets ignoring order and duplicates.
func setEqual(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	as := dedupSorted(a)
	bs := dedupSorted(b)
	if len(as) != len(bs) {
		return false
	}
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

func dedupSorted(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	sort.Strings(out)
	n := 0
	for i, s := range out {
		if i == 0 || s != out[i-1] {
			out[n] = s
			n++
		}
	}
	return out[:n]
}

// round2 rounds to the schema's two-decimal precision.
func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
