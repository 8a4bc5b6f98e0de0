package engine

import (
	"testing"

	"github.com/google/uuid"

	"github.com/examina/examina-backend/internal/model"
)

func questionSet(n int) []model.Question {
	qs := make([]model.Question, n)
	for i := range qs {
		qs[i] = model.Question{ID: uuid.New(), OrderNum: i}
	}
	return qs
}

func TestBuildSequence_AuthoredOrderWithoutRandomize(t *testing.T) {
	qs := questionSet(5)
	seq := BuildSequence(qs, false, 42)

	if len(seq) != 5 {
		t.Fatalf("sequence length = %d, want 5", len(seq))
	}
	for i, q := range qs {
		if seq[i] != q.ID {
			t.Errorf("position %d: got %s, want authored order", i, seq[i])
		}
	}
}

func TestBuildSequence_DeterministicPerSeed(t *testing.T) {
	qs := questionSet(20)

	first := BuildSequence(qs, true, 1234)
	second := BuildSequence(qs, true, 1234)
	for i := range first {
		if first[i] != second[i] {
			t.Fatal("same seed must reproduce the same order on reconnect")
		}
	}

	other := BuildSequence(qs, true, 5678)
	same := true
	for i := range first {
		if first[i] != other[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("different seeds should almost surely produce different orders")
	}
}

func TestBuildSequence_PermutationComplete(t *testing.T) {
	qs := questionSet(12)
	seq := BuildSequence(qs, true, 99)

	seen := make(map[uuid.UUID]bool, len(seq))
	for _, id := range seq {
		seen[id] = true
	}
	for _, q := range qs {
		if !seen[q.ID] {
			t.Fatalf("question %s missing from shuffled sequence", q.ID)
		}
	}
}

func TestSeedFromToken_Stable(t *testing.T) {
	tok, err := NewSessionToken()
	if err != nil {
		t.Fatalf("token: %v", err)
	}

	if SeedFromToken(tok) != SeedFromToken(tok) {
		t.Error("seed derivation must be deterministic")
	}
	if SeedFromToken(tok) == SeedFromToken(tok+"x") {
		t.Error("distinct tokens should not share a seed")
	}
}

func TestNewSessionToken_UniqueAndOpaque(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		tok, err := NewSessionToken()
		if err != nil {
			t.Fatalf("token: %v", err)
		}
		if len(tok) < 43 { // 32 bytes base64url
			t.Fatalf("token too short: %d chars", len(tok))
		}
		if seen[tok] {
			t.Fatal("duplicate token generated")
		}
		seen[tok] = true
	}
}

func TestOptionOrder_StablePerQuestion(t *testing.T) {
	qID := uuid.New()

	a := OptionOrder(7, qID, 5)
	b := OptionOrder(7, qID, 5)
	for i := range a {
		if a[i] != b[i] {
			t.Fatal("option order must be stable for a session+question")
		}
	}

	seen := make(map[int]bool, 5)
	for _, idx := range a {
		if idx < 0 || idx >= 5 || seen[idx] {
			t.Fatalf("not a permutation: %v", a)
		}
		seen[idx] = true
	}
}
