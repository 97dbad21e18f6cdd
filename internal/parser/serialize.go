package parser

import (
	"fmt"
	"strings"

	"github.com/conorfennell/quizvault/internal/domain"
)

// Serialize renders an exam in the interchange format. Option labels are
// rewritten as a, b, c, ... in their original order. The result ends in
// exactly one newline.
func Serialize(e domain.Exam) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s\n", titleKeyword, oneLine(e.Title))
	for i, q := range e.Questions {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s %d: %s\n", questionKeyword, i+1, oneLine(q.Prompt()))
		switch v := q.(type) {
		case *domain.Fill:
			fmt.Fprintf(&b, "%s: %s\n", typeKeyword, domain.TypeFill)
			fmt.Fprintf(&b, "%s: %s\n", answerKeyword, oneLine(v.CorrectAnswer))
		case *domain.Choice:
			for j, o := range v.Options {
				fmt.Fprintf(&b, "%s. %s\n", Label(j), oneLine(o.Text))
			}
			fmt.Fprintf(&b, "%s: %s\n", answerKeyword, Label(v.CorrectIndex))
		}
	}
	return strings.TrimSpace(b.String()) + "\n"
}

// Label returns the option letter for index i (0 -> "a").
func Label(i int) string {
	return string(rune('a' + i))
}

// oneLine keeps a field on a single line so it cannot break the grammar.
func oneLine(s string) string {
	s = strings.ReplaceAll(s, "\r\n", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	return strings.TrimSpace(s)
}
