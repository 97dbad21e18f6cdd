// Package gitsource imports exam files from local directories and git
// repositories.
package gitsource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5"

	"github.com/conorfennell/quizvault/internal/domain"
	"github.com/conorfennell/quizvault/internal/knol"
	"github.com/conorfennell/quizvault/internal/logging"
	"github.com/conorfennell/quizvault/internal/parser"
)

// Extensions are the file suffixes ImportDir picks up.
var Extensions = []string{".txt", ".exam"}

// Sync clones url into localPath, or pulls when a checkout already exists.
// Progress goes to progress when it is non-nil.
func Sync(ctx context.Context, url, localPath string, progress io.Writer, logger *slog.Logger) error {
	logger = logging.OrDefault(logger)
	_, err := os.Stat(localPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		logger.Info("cloning repository", "url", url, "path", localPath)
		if _, err := git.PlainCloneContext(ctx, localPath, false, &git.CloneOptions{
			URL:      url,
			Progress: progress,
		}); err != nil {
			return fmt.Errorf("failed to clone repo %s: %w", url, err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("error checking path %s: %w", localPath, err)
	}

	logger.Info("pulling repository", "path", localPath)
	repo, err := git.PlainOpen(localPath)
	if err != nil {
		return fmt.Errorf("failed to open existing repo at %s: %w", localPath, err)
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree for repo at %s: %w", localPath, err)
	}
	err = worktree.PullContext(ctx, &git.PullOptions{RemoteName: "origin", Progress: progress})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("failed to pull changes for repo at %s: %w", localPath, err)
	}
	return nil
}

// LocalPath maps a repository URL to a checkout directory under baseDir.
// Both http(s) URLs and scp-style `git@host:owner/repo.git` forms are
// accepted. URLs whose path would leave baseDir are rejected.
func LocalPath(baseDir, repoURL string) (string, error) {
	u, err := url.Parse(repoURL)
	if err == nil && (u.Scheme == "https" || u.Scheme == "http") && u.Host != "" {
		return within(baseDir, u.Host, strings.TrimSuffix(u.Path, ".git"))
	}

	userHost, repoPath, ok := strings.Cut(repoURL, ":")
	if ok && !strings.Contains(repoPath, ":") {
		if _, host, ok := strings.Cut(userHost, "@"); ok && host != "" && repoPath != "" {
			return within(baseDir, host, strings.TrimSuffix(repoPath, ".git"))
		}
	}
	return "", fmt.Errorf("could not parse git URL: %s", repoURL)
}

// within joins host and repoPath under baseDir and fails unless the result is
// a directory below baseDir.
func within(baseDir, host, repoPath string) (string, error) {
	path := filepath.Join(baseDir, host, repoPath)
	rel, err := filepath.Rel(baseDir, path)
	if err != nil {
		return "", fmt.Errorf("could not map %s%s under %s: %w", host, repoPath, baseDir, err)
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("repository path %s%s escapes %s", host, repoPath, baseDir)
	}
	return path, nil
}

// IsRemote reports whether source looks like a repository URL rather than a
// local path.
func IsRemote(source string) bool {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return true
	}
	if _, err := os.Stat(source); err == nil {
		return false
	}
	_, err := LocalPath("", source)
	return err == nil
}

// FileError ties a parse failure to the file it came from.
type FileError struct {
	Path string
	Err  error
}

func (e *FileError) Error() string { return fmt.Sprintf("%s: %v", e.Path, e.Err) }

func (e *FileError) Unwrap() error { return e.Err }

// Result is what ImportDir found.
type Result struct {
	Exams  []domain.Exam
	Errors []*FileError
}

// ImportDir parses every exam file below dir. Files that fail to parse are
// reported in Result.Errors and do not stop the walk. Each exam gets its
// content-derived ID. The .git directory is skipped.
func ImportDir(dir string) (Result, error) {
	var res Result
	seen := make(map[string]bool)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !hasExamExtension(d.Name()) {
			return nil
		}
		exam, err := parser.ParseFile(path)
		if err != nil {
			res.Errors = append(res.Errors, &FileError{Path: path, Err: err})
			return nil
		}
		exam.ID = knol.ID(*exam)
		if seen[exam.ID] {
			return nil
		}
		seen[exam.ID] = true
		res.Exams = append(res.Exams, *exam)
		return nil
	})
	if err != nil {
		return res, fmt.Errorf("error walking directory %s: %w", dir, err)
	}
	sort.Slice(res.Exams, func(i, j int) bool { return res.Exams[i].Title < res.Exams[j].Title })
	return res, nil
}

func hasExamExtension(name string) bool {
	name = strings.ToLower(name)
	for _, ext := range Extensions {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}
