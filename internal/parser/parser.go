package parser

import (
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/conorfennell/quizvault/internal/domain"
)

const (
	titleKeyword    = "Title"
	questionKeyword = "Question"
	typeKeyword     = "Type"
	answerKeyword   = "Answer"
)

type state int

const (
	expectTitle state = iota
	expectQuestion
	expectType
	expectOptionOrAnswer
	expectFillAnswer
)

// ParseError reports malformed exam text. Line is 1-based.
type ParseError struct {
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
}

func errorf(line int, format string, args ...any) *ParseError {
	return &ParseError{Line: line, Msg: fmt.Sprintf(format, args...)}
}

// ParseFile reads the exam text at path.
func ParseFile(path string) (*domain.Exam, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return Parse(file)
}

// Parse reads exam text from r. The returned exam has no ID or owner.
func Parse(r io.Reader) (*domain.Exam, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return ParseString(string(raw))
}

// ParseString parses exam text. Either the whole input is accepted or a
// *ParseError is returned.
func ParseString(raw string) (*domain.Exam, error) {
	raw = strings.TrimPrefix(raw, "\ufeff")
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	raw = strings.ReplaceAll(raw, "\r", "\n")

	m := &machine{state: expectTitle}
	lines := strings.Split(raw, "\n")
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if err := m.step(line, i+1); err != nil {
			return nil, err
		}
	}
	if err := m.finish(len(lines)); err != nil {
		return nil, err
	}
	return &m.exam, nil
}

// machine holds the exam built so far and the question block in progress.
type machine struct {
	state state
	exam  domain.Exam

	entry     string
	startLine int
	options   []domain.Option
}

func (m *machine) step(line string, n int) error {
	switch m.state {
	case expectTitle:
		return m.title(line, n)
	case expectQuestion:
		return m.question(line, n)
	case expectType:
		return m.questionType(line, n)
	case expectOptionOrAnswer:
		return m.optionOrAnswer(line, n)
	case expectFillAnswer:
		return m.fillAnswer(line, n)
	}
	return errorf(n, "parser in unknown state %d", m.state)
}

func (m *machine) title(line string, n int) error {
	text, ok := cutKeyword(line, titleKeyword, false)
	if !ok {
		return errorf(n, "expected a %q line before any question", "Title:")
	}
	if text == "" {
		return errorf(n, "title text is empty")
	}
	m.exam.Title = text
	m.state = expectQuestion
	return nil
}

func (m *machine) question(line string, n int) error {
	text, ok := cutKeyword(line, questionKeyword, true)
	if !ok {
		return errorf(n, "expected a %q line, got %q", "Question:", line)
	}
	if text == "" {
		return errorf(n, "question text is empty")
	}
	if len(m.exam.Questions) >= domain.MaxQuestions {
		return errorf(n, "too many questions: at most %d are allowed", domain.MaxQuestions)
	}
	m.entry = text
	m.startLine = n
	m.options = nil
	m.state = expectType
	return nil
}

func (m *machine) questionType(line string, n int) error {
	value, ok := cutKeyword(line, typeKeyword, false)
	if !ok {
		// No Type line: the question is multiple choice.
		m.state = expectOptionOrAnswer
		return m.optionOrAnswer(line, n)
	}
	switch domain.QuestionType(strings.ToLower(value)) {
	case domain.TypeChoice:
		m.state = expectOptionOrAnswer
	case domain.TypeFill:
		m.state = expectFillAnswer
	default:
		return errorf(n, "unknown question type %q (want choice or fill)", value)
	}
	return nil
}

func (m *machine) optionOrAnswer(line string, n int) error {
	if answer, ok := cutKeyword(line, answerKeyword, false); ok {
		return m.choiceAnswer(answer, n)
	}
	if label, text, ok := cutOption(line); ok {
		for _, o := range m.options {
			if o.Label == label {
				return errorf(n, "duplicate option label %q", label)
			}
		}
		m.options = append(m.options, domain.Option{Label: label, Text: text})
		return nil
	}
	if _, ok := cutKeyword(line, questionKeyword, true); ok {
		return m.missingAnswer()
	}
	return errorf(n, "malformed option line %q", line)
}

func (m *machine) choiceAnswer(answer string, n int) error {
	if len(m.options) < 2 {
		return errorf(n, "question at line %d has %d option(s), at least 2 are required (use %q for free-text answers)",
			m.startLine, len(m.options), "Type: fill")
	}
	if answer == "" {
		return errorf(n, "answer is empty")
	}
	letter := strings.ToLower(answer)
	for i, o := range m.options {
		if o.Label == letter {
			m.commit(&domain.Choice{Entry: m.entry, Options: m.options, CorrectIndex: i})
			return nil
		}
	}
	return errorf(n, "answer %q does not match any option of the question at line %d", answer, m.startLine)
}

func (m *machine) fillAnswer(line string, n int) error {
	answer, ok := cutKeyword(line, answerKeyword, false)
	if !ok {
		if _, isQuestion := cutKeyword(line, questionKeyword, true); isQuestion {
			return m.missingAnswer()
		}
		return errorf(n, "expected an %q line, got %q", "Answer:", line)
	}
	if answer == "" {
		return errorf(n, "answer is empty")
	}
	m.commit(&domain.Fill{Entry: m.entry, CorrectAnswer: answer})
	return nil
}

func (m *machine) commit(q domain.Question) {
	m.exam.Questions = append(m.exam.Questions, q)
	m.entry = ""
	m.options = nil
	m.state = expectQuestion
}

func (m *machine) missingAnswer() error {
	return errorf(m.startLine, "question at line %d has no %q line", m.startLine, "Answer:")
}

func (m *machine) finish(lastLine int) error {
	switch m.state {
	case expectTitle:
		return errorf(1, "missing %q line", "Title:")
	case expectQuestion:
		if len(m.exam.Questions) == 0 {
			return errorf(max(lastLine, 1), "exam has no questions")
		}
		return nil
	default:
		return m.missingAnswer()
	}
}

// cutKeyword matches `<keyword> [number] [:-] text` ignoring case and returns
// the trimmed text.
func cutKeyword(line, keyword string, allowNumber bool) (string, bool) {
	if len(line) < len(keyword) || !strings.EqualFold(line[:len(keyword)], keyword) {
		return "", false
	}
	rest := strings.TrimLeft(line[len(keyword):], " \t")
	if allowNumber {
		rest = strings.TrimLeft(rest, "0123456789")
		rest = strings.TrimLeft(rest, " \t")
	}
	if rest == "" || (rest[0] != ':' && rest[0] != '-') {
		return "", false
	}
	return strings.TrimSpace(rest[1:]), true
}

// cutOption matches `letter [).:-] text`. The label is returned lowercase.
func cutOption(line string) (string, string, bool) {
	r, size := utf8.DecodeRuneInString(line)
	if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
		return "", "", false
	}
	rest := strings.TrimLeft(line[size:], " \t")
	if rest == "" || !strings.ContainsRune(").:-", rune(rest[0])) {
		return "", "", false
	}
	text := strings.TrimSpace(rest[1:])
	if text == "" {
		return "", "", false
	}
	return strings.ToLower(string(r)), text, true
}
