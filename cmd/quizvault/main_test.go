package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/conorfennell/quizvault/internal/knol"
	"github.com/conorfennell/quizvault/internal/parser"
)

const capitals = `title - Capitals
QUESTION 1 - France
a) Paris
B) Rome
answer: A

Question 2: Spell water
Type: fill
Answer: water
`

const capitalsCanonical = `Title: Capitals
Question 1: France
a. Paris
b. Rome
Answer: a

Question 2: Spell water
Type: fill
Answer: water
`

func run(t *testing.T, dataDir string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	base := []string{"--data-dir", dataDir, "--env-file", "", "--hash", "sha256", "--log-level", "error"}
	cmd.SetArgs(append(base, args...))
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCheckAndFmt(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "capitals.txt", capitals)
	bad := writeFile(t, dir, "bad.txt", "Title: Broken\nQuestion 1: x\nAnswer: a\n")

	out, err := run(t, dir, "check", good)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !strings.Contains(out, "ok, 2 questions") {
		t.Errorf("check output = %q", out)
	}

	out, err = run(t, dir, "check", good, bad)
	if err == nil {
		t.Fatal("expected check to fail on the broken file")
	}
	if !strings.Contains(out, "bad.txt: line 3:") {
		t.Errorf("check output lacks located error: %q", out)
	}

	out, err = run(t, dir, "fmt", good)
	if err != nil {
		t.Fatalf("fmt: %v", err)
	}
	if out != capitalsCanonical {
		t.Errorf("fmt output:\n%s\nwant:\n%s", out, capitalsCanonical)
	}

	if _, err := run(t, dir, "fmt", "-w", good); err != nil {
		t.Fatalf("fmt -w: %v", err)
	}
	raw, err := os.ReadFile(good)
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != capitalsCanonical {
		t.Errorf("fmt -w left %q", raw)
	}
}

func TestImportListExport(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "capitals.txt", capitals)

	out, err := run(t, dir, "import", path)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if !strings.Contains(out, "Imported 1 exams, 0 errors.") {
		t.Errorf("import output = %q", out)
	}
	// Importing the same content again is an upsert.
	if _, err := run(t, dir, "import", path); err != nil {
		t.Fatalf("second import: %v", err)
	}

	exam, err := parser.ParseString(capitals)
	if err != nil {
		t.Fatal(err)
	}
	id := knol.ID(*exam)

	out, err = run(t, dir, "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if strings.Count(out, id) != 1 || !strings.Contains(out, "Capitals") {
		t.Errorf("list output = %q", out)
	}

	out, err = run(t, dir, "export", id)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if out != capitalsCanonical {
		t.Errorf("export output:\n%s", out)
	}

	if _, err := run(t, dir, "--user", "someone-else", "export", id); err == nil {
		t.Error("exams of one user must not be visible to another")
	}

	if _, err := run(t, dir, "delete", id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if out, _ := run(t, dir, "list"); strings.Contains(out, id) {
		t.Errorf("exam still listed after delete: %q", out)
	}
}

func TestGenerate(t *testing.T) {
	dir := t.TempDir()
	words := writeFile(t, dir, "latin.txt", "aqua: water\nrex - king\npuella\tgirl\n")
	target := filepath.Join(dir, "latin.exam")

	if _, err := run(t, dir, "generate", words, "--seed", "3", "--title", "Latin", "-o", target, "--store"); err != nil {
		t.Fatalf("generate: %v", err)
	}
	exam, err := parser.ParseFile(target)
	if err != nil {
		t.Fatalf("generated file does not parse: %v", err)
	}
	if exam.Title != "Latin" || len(exam.Questions) != 3 {
		t.Errorf("generated exam = %q with %d questions", exam.Title, len(exam.Questions))
	}

	out, err := run(t, dir, "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, knol.ID(*exam)) {
		t.Errorf("stored generated exam missing from list: %q", out)
	}
}

func TestAccountsAndLedger(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "capitals.txt", capitals)

	if _, err := run(t, dir, "--admin-password", "root", "register", "alice", "Alice", "--password", "pw"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := run(t, dir, "register", "Alice", "Again", "--password", "pw"); err == nil {
		t.Error("duplicate login accepted")
	}

	out, err := run(t, dir, "users")
	if err != nil {
		t.Fatalf("users: %v", err)
	}
	if !strings.Contains(out, "admin") || !strings.Contains(out, "alice") {
		t.Errorf("users output = %q", out)
	}

	if _, err := run(t, dir, "login", "alice", "--password", "wrong"); err == nil {
		t.Error("login with a wrong password succeeded")
	}
	out, err = run(t, dir, "login", "alice", "--password", "pw")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	sessionID := strings.TrimSpace(out)
	if sessionID == "" {
		t.Fatal("login printed no session id")
	}
	if _, err := run(t, dir, "logout", sessionID); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := run(t, dir, "--user", "alice", "record-attempt", "exam-1", "--session", sessionID, "--score", "3", "--total", "4", "--took", "90s"); err != nil {
		t.Fatalf("record-attempt: %v", err)
	}

	out, err = run(t, dir, "sessions")
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}
	if !strings.Contains(out, sessionID) || strings.Contains(out, "open") {
		t.Errorf("sessions output = %q", out)
	}
	out, err = run(t, dir, "attempts")
	if err != nil {
		t.Fatalf("attempts: %v", err)
	}
	if !strings.Contains(out, "3/4") || !strings.Contains(out, "exam-1") {
		t.Errorf("attempts output = %q", out)
	}

	if _, err := run(t, dir, "--user", "alice", "import", path); err != nil {
		t.Fatalf("import: %v", err)
	}
	if _, err := run(t, dir, "delete-user", "admin"); err == nil {
		t.Error("administrator was deleted")
	}
	if _, err := run(t, dir, "delete-user", "alice"); err != nil {
		t.Fatalf("delete-user: %v", err)
	}
	out, err = run(t, dir, "users")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out, "alice") {
		t.Errorf("alice still listed: %q", out)
	}
	// With the account gone, "alice" is a plain owner id with no exams.
	out, err = run(t, dir, "--user", "alice", "list")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out, "Capitals") {
		t.Errorf("exams survived account deletion: %q", out)
	}
}

func TestGenerateDefaultsAreReproducible(t *testing.T) {
	dir := t.TempDir()
	words := writeFile(t, dir, "latin.txt", "aqua: water\nrex - king\npuella\tgirl\nvia: road\nbellum: war\n")

	first, err := run(t, dir, "generate", words)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	second, err := run(t, dir, "generate", words)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if first != second {
		t.Error("generate without --seed produced different exams")
	}
}

func TestGeneratePartOfSpeech(t *testing.T) {
	dir := t.TempDir()
	words := writeFile(t, dir, "dictionary.txt",
		"circa around preposition acc\ncoram in presence of preposition abl\ncorripio, corripere, corripui, correptum to seize, snatch verb 3-io\n")

	out, err := run(t, dir, "generate", "--pos", words)
	if err != nil {
		t.Fatalf("generate --pos: %v", err)
	}
	exam, err := parser.ParseString(out)
	if err != nil {
		t.Fatalf("generated exam does not parse: %v", err)
	}
	if got := exam.Questions[2].Prompt(); got != "corripio, corripere, corripui, correptum" {
		t.Errorf("headword = %q", got)
	}
	if !strings.Contains(out, "to seize, snatch") || !strings.Contains(out, "no answer") {
		t.Errorf("unexpected options in:\n%s", out)
	}
}
