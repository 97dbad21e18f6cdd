package vocab

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/xuri/excelize/v2"

	"github.com/conorfennell/quizvault/internal/domain"
	"github.com/conorfennell/quizvault/internal/parser"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		line string
		want Pair
		ok   bool
	}{
		{"aqua\twater", Pair{Headword: "aqua", Gloss: "water"}, true},
		{"puella : girl", Pair{Headword: "puella", Gloss: "girl"}, true},
		{"rex - king", Pair{Headword: "rex", Gloss: "king"}, true},
		{"bellum   war, conflict", Pair{Headword: "bellum", Gloss: "war, conflict"}, true},
		{"via road", Pair{Headword: "via", Gloss: "road"}, true},
		{"  # comment", Pair{}, false},
		{"", Pair{}, false},
		{"lonely", Pair{}, false},
		{"nihil:", Pair{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, ok := ParseLine(tt.line)
			if ok != tt.ok {
				t.Fatalf("ParseLine(%q) ok = %v, want %v", tt.line, ok, tt.ok)
			}
			if got != tt.want {
				t.Errorf("ParseLine(%q) = %+v, want %+v", tt.line, got, tt.want)
			}
		})
	}
}

func TestLoadTextDedupes(t *testing.T) {
	input := "# latin\naqua: water\nrex - king\naqua: rain\n\n"
	got, err := LoadText(strings.NewReader(input))
	if err != nil {
		t.Fatalf("LoadText: %v", err)
	}
	want := []Pair{{Headword: "aqua", Gloss: "water"}, {Headword: "rex", Gloss: "king"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("LoadText mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "words.xlsx")
	f := excelize.NewFile()
	rows := [][]string{{"Latin", "English"}, {"aqua", "water"}, {"", "orphan"}, {"rex", "king"}}
	for i, row := range rows {
		for j, v := range row {
			cell, err := excelize.CoordinatesToCellName(j+1, i+1)
			if err != nil {
				t.Fatal(err)
			}
			if err := f.SetCellValue("Sheet1", cell, v); err != nil {
				t.Fatal(err)
			}
		}
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}
	f.Close()

	got, err := LoadXLSX(path, "", true)
	if err != nil {
		t.Fatalf("LoadXLSX: %v", err)
	}
	want := []Pair{{Headword: "aqua", Gloss: "water"}, {Headword: "rex", Gloss: "king"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("LoadXLSX mismatch (-want +got):\n%s", diff)
	}

	viaFile, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(viaFile) != 3 {
		t.Errorf("LoadFile without header skip = %d pairs, want 3", len(viaFile))
	}
}

func TestGenerate(t *testing.T) {
	pairs := []Pair{
		{Headword: "aqua", Gloss: "water"}, {Headword: "rex", Gloss: "king"}, {Headword: "puella", Gloss: "girl"},
		{Headword: "via", Gloss: "road"}, {Headword: "bellum", Gloss: "war"},
	}

	exam, err := Generate(pairs, Options{Title: "Latin", Seed: 7})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if err := exam.Validate(); err != nil {
		t.Fatalf("generated exam invalid: %v", err)
	}
	if len(exam.Questions) != len(pairs) {
		t.Fatalf("got %d questions, want %d", len(exam.Questions), len(pairs))
	}
	for i, q := range exam.Questions {
		c, ok := q.(*domain.Choice)
		if !ok {
			t.Fatalf("question %d is %T", i, q)
		}
		if c.Entry != pairs[i].Headword {
			t.Errorf("question %d entry = %q", i, c.Entry)
		}
		if len(c.Options) != 4 {
			t.Errorf("question %d has %d options", i, len(c.Options))
		}
		if c.Correct().Text != pairs[i].Gloss {
			t.Errorf("question %d correct = %q, want %q", i, c.Correct().Text, pairs[i].Gloss)
		}
	}

	again, err := Generate(pairs, Options{Title: "Latin", Seed: 7})
	if err != nil {
		t.Fatal(err)
	}
	if parser.Serialize(exam) != parser.Serialize(again) {
		t.Error("same seed produced different exams")
	}

	if _, err := parser.ParseString(parser.Serialize(exam)); err != nil {
		t.Errorf("generated exam does not parse back: %v", err)
	}
}

func TestGenerateFallbackDistractors(t *testing.T) {
	exam, err := Generate([]Pair{{Headword: "aqua", Gloss: "stone"}}, Options{NoShuffle: true, Distractors: 25})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if exam.Title != "Vocabulary Exam" {
		t.Errorf("default title = %q", exam.Title)
	}
	c := exam.Questions[0].(*domain.Choice)
	if c.CorrectIndex != 0 {
		t.Errorf("NoShuffle correct index = %d", c.CorrectIndex)
	}
	if len(c.Options) != 26 {
		t.Fatalf("got %d options, want 26", len(c.Options))
	}
	seen := map[string]bool{}
	for _, o := range c.Options {
		if seen[o.Text] {
			t.Errorf("duplicate option %q", o.Text)
		}
		seen[o.Text] = true
	}
	if !seen["word1"] {
		t.Error("expected numbered placeholders after the fallback words")
	}
}

func TestGenerateRejects(t *testing.T) {
	if _, err := Generate(nil, Options{}); err == nil {
		t.Error("expected error for empty list")
	}
	if _, err := Generate([]Pair{{Headword: "a", Gloss: "b"}}, Options{Distractors: 26}); err == nil {
		t.Error("expected error for too many distractors")
	}
}

func TestParsePOSLine(t *testing.T) {
	tests := []struct {
		line string
		want Pair
		ok   bool
	}{
		{"circa around preposition acc", Pair{Headword: "circa", Gloss: "around", POS: "preposition"}, true},
		{"coram in presence of preposition abl", Pair{Headword: "coram", Gloss: "in presence of", POS: "preposition"}, true},
		{
			"corripio, corripere, corripui, correptum to seize, snatch verb 3-io",
			Pair{Headword: "corripio, corripere, corripui, correptum", Gloss: "to seize, snatch", POS: "verb"},
			true,
		},
		{"bonus good Adjective", Pair{Headword: "bonus", Gloss: "good", POS: "adjective"}, true},
		{"verb first", Pair{}, false},
		{"sine preposition", Pair{}, false},
		{"to go verb", Pair{}, false},
		{"aqua: water", Pair{}, false},
		{"# comment noun", Pair{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, ok := ParsePOSLine(tt.line)
			if ok != tt.ok {
				t.Fatalf("ParsePOSLine(%q) ok = %v, want %v", tt.line, ok, tt.ok)
			}
			if got != tt.want {
				t.Errorf("ParsePOSLine(%q) = %+v, want %+v", tt.line, got, tt.want)
			}
		})
	}
}

func TestGenerateSamePOS(t *testing.T) {
	input := `amo, amare to love verb 1
moneo, monere to warn verb 2
rego, regere to rule verb 3
audio, audire to hear verb 4
circa around preposition acc
coram in presence of preposition abl
not a vocabulary line
`
	pairs, err := LoadPOSText(strings.NewReader(input))
	if err != nil {
		t.Fatalf("LoadPOSText: %v", err)
	}
	if len(pairs) != 6 {
		t.Fatalf("got %d pairs, want 6", len(pairs))
	}
	posOf := map[string]string{}
	for _, p := range pairs {
		posOf[p.Gloss] = p.POS
	}

	exam, err := Generate(pairs, Options{Seed: 42, SamePOS: true})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	for i, q := range exam.Questions {
		c := q.(*domain.Choice)
		same := 0
		for j, o := range c.Options {
			if j != c.CorrectIndex && posOf[o.Text] == pairs[i].POS {
				same++
			}
		}
		// Four verbs give three verb distractors; two prepositions give one.
		want := 3
		if pairs[i].POS == "preposition" {
			want = 1
		}
		if same != want {
			t.Errorf("question %d (%s): %d same-POS distractors, want %d", i, pairs[i].Headword, same, want)
		}
		if len(c.Options) != 4 {
			t.Errorf("question %d has %d options", i, len(c.Options))
		}
	}
}

func TestGenerateSamePOSPadding(t *testing.T) {
	pairs := []Pair{{Headword: "circa", Gloss: "around", POS: "preposition"}}
	exam, err := Generate(pairs, Options{SamePOS: true, NoShuffle: true})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	c := exam.Questions[0].(*domain.Choice)
	if c.Options[1].Text != noAnswer {
		t.Errorf("first padding option = %q, want %q", c.Options[1].Text, noAnswer)
	}
	if err := exam.Validate(); err != nil {
		t.Errorf("padded exam invalid: %v", err)
	}
}
