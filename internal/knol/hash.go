package knol

import (
	"crypto/sha256"
	"fmt"
	"strconv"
	"strings"

	"github.com/conorfennell/quizvault/internal/domain"
)

// Normalize flattens an exam's content into one string. Each part is trimmed
// and has its line endings normalized. The title and prompts are also
// lowercased; options and answers keep their case since they are graded.
// Option labels are left out so relabelled options produce the same result.
func Normalize(exam domain.Exam) string {
	normalizePart := func(part string) string {
		p := strings.TrimSpace(part)
		p = strings.ReplaceAll(p, "\r\n", "\n")
		return p
	}
	foldPart := func(part string) string {
		return strings.ToLower(normalizePart(part))
	}

	parts := []string{foldPart(exam.Title)}
	for _, q := range exam.Questions {
		parts = append(parts, string(q.Type()), foldPart(q.Prompt()))
		switch v := q.(type) {
		case *domain.Choice:
			for _, o := range v.Options {
				parts = append(parts, normalizePart(o.Text))
			}
			parts = append(parts, strconv.Itoa(v.CorrectIndex))
		case *domain.Fill:
			parts = append(parts, normalizePart(v.CorrectAnswer))
		}
	}

	// Joined with a newline so adjacent fields cannot run together.
	return strings.Join(parts, "\n")
}

// Hash returns the SHA-256 of the normalized exam as a hex string.
func Hash(exam domain.Exam) string {
	normalized := Normalize(exam)
	hashBytes := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%x", hashBytes)
}

// ID derives a short stable exam id from the content hash.
func ID(exam domain.Exam) string {
	return "exam-" + Hash(exam)[:16]
}
