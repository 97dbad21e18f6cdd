package knol

import (
	"testing"

	"github.com/conorfennell/quizvault/internal/domain"
)

func sample(title, entry string) domain.Exam {
	return domain.Exam{
		Title: title,
		Questions: []domain.Question{
			&domain.Choice{Entry: entry, Options: []domain.Option{{Label: "a", Text: "3"}, {Label: "b", Text: "4"}}, CorrectIndex: 1},
			&domain.Fill{Entry: "Capital?", CorrectAnswer: "Paris"},
		},
	}
}

func TestNormalize(t *testing.T) {
	exam := sample("  Demo \r\n", "2+2=?")
	expected := "demo\nchoice\n2+2=?\n3\n4\n1\nfill\ncapital?\nParis"
	normalized := Normalize(exam)

	if normalized != expected {
		t.Errorf("Expected normalized string to be '%s', but got '%s'", expected, normalized)
	}
}

func TestHash(t *testing.T) {
	t.Run("hash is deterministic", func(t *testing.T) {
		if Hash(sample("Demo", "q")) != Hash(sample("Demo", "q")) {
			t.Error("Expected hashes for identical exams to be the same")
		}
	})

	t.Run("normalization produces same hash", func(t *testing.T) {
		if Hash(sample("  demo ", "Q")) != Hash(sample("Demo", "q")) {
			t.Error("Expected hashes to be the same after normalization, but they were different.")
		}
	})

	t.Run("labels do not affect the hash", func(t *testing.T) {
		relabelled := sample("Demo", "q")
		relabelled.Questions[0].(*domain.Choice).Options[0].Label = "x"
		if Hash(relabelled) != Hash(sample("Demo", "q")) {
			t.Error("Expected relabelled options to hash the same")
		}
	})

	t.Run("different exams have different hashes", func(t *testing.T) {
		if Hash(sample("Exam 1", "q")) == Hash(sample("Exam 2", "q")) {
			t.Error("Expected hashes for different exams to be different")
		}
	})

	t.Run("answer case changes the hash", func(t *testing.T) {
		lower := sample("Demo", "q")
		lower.Questions[1].(*domain.Fill).CorrectAnswer = "paris"
		if Hash(lower) == Hash(sample("Demo", "q")) {
			t.Error("Expected answers differing in case to hash differently")
		}
		upper := sample("Demo", "q")
		upper.Questions[0].(*domain.Choice).Options[1].Text = "Four"
		lowerOpt := sample("Demo", "q")
		lowerOpt.Questions[0].(*domain.Choice).Options[1].Text = "four"
		if Hash(upper) == Hash(lowerOpt) {
			t.Error("Expected options differing in case to hash differently")
		}
	})

	t.Run("id is short and prefixed", func(t *testing.T) {
		id := ID(sample("Demo", "q"))
		if len(id) != len("exam-")+16 || id[:5] != "exam-" {
			t.Errorf("Unexpected id %q", id)
		}
	})
}
