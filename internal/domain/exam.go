package domain

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// MaxQuestions is the largest number of questions a single exam may hold.
const MaxQuestions = 1000

// MaxOptions is the number of option letters available (a through z).
const MaxOptions = 26

// QuestionType is the mandatory discriminant of a Question.
type QuestionType string

const (
	TypeChoice QuestionType = "choice"
	TypeFill   QuestionType = "fill"
)

// Question is either a *Choice or a *Fill.
type Question interface {
	Type() QuestionType
	Prompt() string
	isQuestion()
}

// Option is one labelled answer of a Choice question.
type Option struct {
	Label string `json:"label" validate:"notblank"`
	Text  string `json:"text" validate:"notblank"`
}

// Choice is a multiple-choice question whose CorrectIndex points into Options.
type Choice struct {
	Entry        string   `validate:"notblank"`
	Options      []Option `validate:"min=2,max=26,dive"`
	CorrectIndex int      `validate:"gte=0"`
}

func (c *Choice) Type() QuestionType { return TypeChoice }
func (c *Choice) Prompt() string     { return c.Entry }
func (*Choice) isQuestion()          {}

// Correct returns the option the answer key points at.
func (c *Choice) Correct() Option { return c.Options[c.CorrectIndex] }

// Fill is a free-text question.
type Fill struct {
	Entry         string `validate:"notblank"`
	CorrectAnswer string `validate:"notblank"`
}

func (f *Fill) Type() QuestionType { return TypeFill }
func (f *Fill) Prompt() string     { return f.Entry }
func (*Fill) isQuestion()          {}

// Exam is an ordered list of questions under a title.
type Exam struct {
	ID        string
	Title     string
	Questions []Question
	OwnerID   string
}

var validate = newValidator()

// newValidator adds notblank, which rejects strings that are empty after
// trimming. The text format cannot carry such fields.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	}); err != nil {
		panic(err)
	}
	return v
}

// Validate checks the structural invariants of an exam.
func (e Exam) Validate() error {
	if strings.TrimSpace(e.Title) == "" {
		return fmt.Errorf("exam %q: title is required", e.ID)
	}
	if len(e.Questions) == 0 {
		return fmt.Errorf("exam %q: at least one question is required", e.ID)
	}
	if len(e.Questions) > MaxQuestions {
		return fmt.Errorf("exam %q: %d questions exceeds the limit of %d", e.ID, len(e.Questions), MaxQuestions)
	}
	for i, q := range e.Questions {
		if q == nil {
			return fmt.Errorf("exam %q: question %d is empty", e.ID, i+1)
		}
		if err := validate.Struct(q); err != nil {
			return fmt.Errorf("exam %q: question %d: %w", e.ID, i+1, err)
		}
		c, ok := q.(*Choice)
		if !ok {
			continue
		}
		if c.CorrectIndex >= len(c.Options) {
			return fmt.Errorf("exam %q: question %d: correct index %d out of range", e.ID, i+1, c.CorrectIndex)
		}
		seen := make(map[string]bool, len(c.Options))
		for _, o := range c.Options {
			l := strings.ToLower(o.Label)
			if seen[l] {
				return fmt.Errorf("exam %q: question %d: duplicate option label %q", e.ID, i+1, o.Label)
			}
			seen[l] = true
		}
	}
	return nil
}

// questionJSON is the stored shape of a question. Type is always written.
type questionJSON struct {
	Type          QuestionType `json:"type"`
	Entry         string       `json:"entry"`
	Options       []Option     `json:"options,omitempty"`
	CorrectIndex  *int         `json:"correctIndex,omitempty"`
	CorrectAnswer string       `json:"correctAnswer,omitempty"`
}

type examJSON struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Questions []questionJSON `json:"questions"`
	OwnerID   string         `json:"ownerId,omitempty"`
}

// MarshalJSON encodes the exam with an explicit type on every question.
func (e Exam) MarshalJSON() ([]byte, error) {
	out := examJSON{ID: e.ID, Title: e.Title, OwnerID: e.OwnerID, Questions: make([]questionJSON, 0, len(e.Questions))}
	for i, q := range e.Questions {
		switch v := q.(type) {
		case *Choice:
			idx := v.CorrectIndex
			out.Questions = append(out.Questions, questionJSON{Type: TypeChoice, Entry: v.Entry, Options: v.Options, CorrectIndex: &idx})
		case *Fill:
			out.Questions = append(out.Questions, questionJSON{Type: TypeFill, Entry: v.Entry, CorrectAnswer: v.CorrectAnswer})
		default:
			return nil, fmt.Errorf("question %d: unsupported type %T", i+1, q)
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes an exam. A question without a known type is an error.
func (e *Exam) UnmarshalJSON(data []byte) error {
	var in examJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	qs := make([]Question, 0, len(in.Questions))
	for i, q := range in.Questions {
		switch q.Type {
		case TypeChoice:
			c := &Choice{Entry: q.Entry, Options: q.Options}
			if q.CorrectIndex != nil {
				c.CorrectIndex = *q.CorrectIndex
			}
			qs = append(qs, c)
		case TypeFill:
			qs = append(qs, &Fill{Entry: q.Entry, CorrectAnswer: q.CorrectAnswer})
		default:
			return fmt.Errorf("question %d: unknown type %q", i+1, q.Type)
		}
	}
	*e = Exam{ID: in.ID, Title: in.Title, OwnerID: in.OwnerID, Questions: qs}
	return nil
}
