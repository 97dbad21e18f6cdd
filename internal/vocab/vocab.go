// Package vocab turns vocabulary lists into multiple-choice exams.
package vocab

import (
	"bufio"
	"fmt"
	"io"
	"math/rand"
	"os"
	"regexp"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/conorfennell/quizvault/internal/domain"
	"github.com/conorfennell/quizvault/internal/parser"
)

// Pair is one vocabulary entry. POS is the part of speech, set only by the
// part-of-speech loader.
type Pair struct {
	Headword string
	Gloss    string
	POS      string
}

// separators are tried in order; the first one that yields two non-empty
// halves wins.
var separators = []*regexp.Regexp{
	regexp.MustCompile(`\t`),
	regexp.MustCompile(`\s*:\s*`),
	regexp.MustCompile(`\s*-\s*`),
	regexp.MustCompile(`\s{2,}`),
}

// partsOfSpeech are the tokens ParsePOSLine recognises.
var partsOfSpeech = map[string]bool{
	"noun": true, "verb": true, "adjective": true, "adverb": true, "preposition": true,
	"conjunction": true, "pronoun": true, "interjection": true, "numeral": true, "participle": true,
}

// noAnswer is the first padding option when SamePOS runs out of glosses.
const noAnswer = "no answer"

// fallbackDistractors top up the options when a list is too short.
var fallbackDistractors = []string{
	"stone", "road", "bird", "forest", "spear", "island", "army",
	"table", "window", "river", "cloud", "field", "gate", "wall",
	"friend", "enemy", "ship", "harbor", "mountain", "city",
}

// ParseLine splits `<headword><sep><gloss>`. Blank lines and # comments are
// rejected.
func ParseLine(line string) (Pair, bool) {
	s := strings.TrimSpace(line)
	if s == "" || strings.HasPrefix(s, "#") {
		return Pair{}, false
	}
	for _, sep := range separators {
		parts := sep.Split(s, 2)
		if len(parts) != 2 {
			continue
		}
		left, right := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
		if left != "" && right != "" {
			return Pair{Headword: left, Gloss: right}, true
		}
	}
	left, right, ok := strings.Cut(s, " ")
	if !ok || strings.TrimSpace(right) == "" {
		return Pair{}, false
	}
	return Pair{Headword: left, Gloss: strings.TrimSpace(right)}, true
}

// ParsePOSLine reads dictionary-style lines such as
//
//	circa around preposition acc
//	corripio, corripere, corripui, correptum to seize, snatch verb 3-io
//
// The last part-of-speech token splits the line; what follows it is ignored.
// Before it, a standalone "to" starts the gloss, otherwise the first word is
// the headword and the rest the gloss.
func ParsePOSLine(line string) (Pair, bool) {
	s := strings.TrimSpace(line)
	if s == "" || strings.HasPrefix(s, "#") {
		return Pair{}, false
	}
	tokens := strings.Fields(s)
	posIdx := -1
	for i := len(tokens) - 1; i >= 0; i-- {
		if partsOfSpeech[strings.ToLower(tokens[i])] {
			posIdx = i
			break
		}
	}
	if posIdx <= 0 {
		return Pair{}, false
	}

	before := tokens[:posIdx]
	split := 1
	for i, tok := range before {
		if tok == "to" {
			split = i
			break
		}
	}
	head := strings.TrimRight(strings.Join(before[:split], " "), ",")
	gloss := strings.Trim(strings.Join(before[split:], " "), ",")
	gloss = strings.TrimSpace(strings.ReplaceAll(gloss, " ,", ","))
	head = strings.TrimSpace(head)
	if head == "" || gloss == "" {
		return Pair{}, false
	}
	return Pair{Headword: head, Gloss: gloss, POS: strings.ToLower(tokens[posIdx])}, true
}

// LoadPOSText reads ParsePOSLine entries, skipping lines it cannot parse.
func LoadPOSText(r io.Reader) ([]Pair, error) {
	return load(r, ParsePOSLine)
}

// LoadText reads one pair per line, keeping the first gloss of a repeated
// headword.
func LoadText(r io.Reader) ([]Pair, error) {
	return load(r, ParseLine)
}

func load(r io.Reader, parse func(string) (Pair, bool)) ([]Pair, error) {
	scanner := bufio.NewScanner(r)
	var pairs []Pair
	for scanner.Scan() {
		if p, ok := parse(scanner.Text()); ok {
			pairs = append(pairs, p)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return dedupe(pairs), nil
}

// LoadFile reads a text vocabulary file, or an .xlsx workbook.
func LoadFile(path string) ([]Pair, error) {
	if strings.HasSuffix(strings.ToLower(path), ".xlsx") {
		return LoadXLSX(path, "", false)
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return LoadText(file)
}

// LoadPOSFile reads a part-of-speech vocabulary file.
func LoadPOSFile(path string) ([]Pair, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return LoadPOSText(file)
}

// LoadXLSX reads headwords from column A and glosses from column B of sheet,
// or of the first sheet when sheet is empty.
func LoadXLSX(path, sheet string, skipHeader bool) ([]Pair, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %w", path, err)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("workbook %s has no sheets", path)
		}
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}

	var pairs []Pair
	for i, row := range rows {
		if i == 0 && skipHeader {
			continue
		}
		if len(row) < 2 {
			continue
		}
		head, gloss := strings.TrimSpace(row[0]), strings.TrimSpace(row[1])
		if head == "" || gloss == "" {
			continue
		}
		pairs = append(pairs, Pair{Headword: head, Gloss: gloss})
	}
	return dedupe(pairs), nil
}

func dedupe(pairs []Pair) []Pair {
	seen := make(map[string]bool, len(pairs))
	out := pairs[:0]
	for _, p := range pairs {
		if seen[p.Headword] {
			continue
		}
		seen[p.Headword] = true
		out = append(out, p)
	}
	return out
}

// Options controls Generate.
type Options struct {
	Title string
	Seed  int64
	// NoShuffle keeps the correct gloss as the first option.
	NoShuffle bool
	// Distractors is the number of wrong options per question, 3 if zero.
	Distractors int
	// SamePOS draws distractors from entries with the same part of speech
	// first, then from the rest, then pads with "no answer".
	SamePOS bool
}

// Generate builds one multiple-choice question per pair. The exam has no ID.
func Generate(pairs []Pair, opts Options) (domain.Exam, error) {
	if len(pairs) == 0 {
		return domain.Exam{}, fmt.Errorf("no vocabulary entries")
	}
	if len(pairs) > domain.MaxQuestions {
		return domain.Exam{}, fmt.Errorf("%d entries exceed the limit of %d questions", len(pairs), domain.MaxQuestions)
	}
	k := opts.Distractors
	if k == 0 {
		k = 3
	}
	if k < 1 || k >= domain.MaxOptions {
		return domain.Exam{}, fmt.Errorf("invalid distractor count %d", k)
	}
	title := opts.Title
	if title == "" {
		title = "Vocabulary Exam"
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	exam := domain.Exam{Title: title}
	for _, p := range pairs {
		texts := append([]string{p.Gloss}, distractors(p, pairs, k, opts.SamePOS, rng)...)
		order := make([]int, len(texts))
		for i := range order {
			order[i] = i
		}
		if !opts.NoShuffle {
			rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		}

		q := &domain.Choice{Entry: p.Headword}
		for i, idx := range order {
			if idx == 0 {
				q.CorrectIndex = i
			}
			q.Options = append(q.Options, domain.Option{Label: parser.Label(i), Text: texts[idx]})
		}
		exam.Questions = append(exam.Questions, q)
	}
	return exam, nil
}

// distractors picks k wrong glosses for target, case-insensitively distinct
// from each other and from the correct gloss. Short pools are topped up from
// the fallback words and then from numbered placeholders.
func distractors(target Pair, pairs []Pair, k int, samePOS bool, rng *rand.Rand) []string {
	taken := map[string]bool{strings.ToLower(target.Gloss): true}
	collect := func(keep func(Pair) bool) []string {
		var pool []string
		for _, p := range pairs {
			key := strings.ToLower(p.Gloss)
			if taken[key] || !keep(p) {
				continue
			}
			taken[key] = true
			pool = append(pool, p.Gloss)
		}
		rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
		return pool
	}

	var chosen []string
	if samePOS && target.POS != "" {
		chosen = collect(func(p Pair) bool { return p.POS == target.POS })
	}
	if len(chosen) < k {
		chosen = append(chosen, collect(func(Pair) bool { return true })...)
	}
	if len(chosen) >= k {
		return chosen[:k]
	}

	padding := fallbackDistractors
	if samePOS {
		padding = append([]string{noAnswer}, fallbackDistractors...)
	}
	for _, w := range padding {
		if len(chosen) == k {
			return chosen
		}
		if !taken[strings.ToLower(w)] {
			taken[strings.ToLower(w)] = true
			chosen = append(chosen, w)
		}
	}
	for i := 1; len(chosen) < k; i++ {
		w := fmt.Sprintf("word%d", i)
		if !taken[w] {
			taken[w] = true
			chosen = append(chosen, w)
		}
	}
	return chosen
}
