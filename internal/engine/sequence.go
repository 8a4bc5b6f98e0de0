package engine

import (
	"math/rand"
	"sort"

	"github.com/google/uuid"

	"github.com/examina/examina-backend/internal/model"
)

// BuildSequence computes the personalized question order for a session.
// Questions are taken in authored order; when randomize is set they are
// shuffled with the session seed so the order is stable across reconnects.
// The result is frozen into the session row for its whole lifetime.
func BuildSequence(questions []model.Question, randomize bool, seed int64) []uuid.UUID {
	ordered := make([]model.Question, len(questions))
	copy(ordered, questions)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].OrderNum < ordered[j].OrderNum
	})

	ids := make([]uuid.UUID, len(ordered))
	for i, q := range ordered {
		ids[i] = q.ID
	}

	if randomize && len(ids) > 1 {
		rng := rand.New(rand.NewSource(seed))
		rng.Shuffle(len(ids), func(i, j int) {
			ids[i], ids[j] = ids[j], ids[i]
		})
	}

	return ids
}

// OptionOrder returns the display permutation of a question's n options
// for one session. The sub-seed mixes in the question ID so every question
// gets its own stable permutation from the same session seed.
func OptionOrder(seed int64, questionID uuid.UUID, n int) []int {
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	if n < 2 {
		return perm
	}

	sub := seed
	for _, b := range questionID {
		sub = sub*31 + int64(b)
	}

	rng := rand.New(rand.NewSource(sub))
	rng.Shuffle(n, func(i, j int) {
		perm[i], perm[j] = perm[j], perm[i]
	})
	return perm
}
