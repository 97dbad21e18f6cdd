package main

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/conorfennell/quizvault/internal/domain"
	"github.com/conorfennell/quizvault/internal/gitsource"
	"github.com/conorfennell/quizvault/internal/knol"
	"github.com/conorfennell/quizvault/internal/ledger"
	"github.com/conorfennell/quizvault/internal/parser"
	"github.com/conorfennell/quizvault/internal/vocab"
)

func newCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check <file>...",
		Short: "Validate exam files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			failed := 0
			for _, path := range args {
				exam, err := parser.ParseFile(path)
				if err != nil {
					failed++
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %v\n", path, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: ok, %d questions\n", path, len(exam.Questions))
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files failed", failed, len(args))
			}
			return nil
		},
	}
}

func newFmtCmd(a *app) *cobra.Command {
	var write bool
	cmd := &cobra.Command{
		Use:   "fmt <file>",
		Short: "Print an exam file in canonical form",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			exam, err := parser.ParseFile(args[0])
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			out := parser.Serialize(*exam)
			if write {
				return os.WriteFile(args[0], []byte(out), 0o644)
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), out)
			return err
		},
	}
	cmd.Flags().BoolVarP(&write, "write", "w", false, "rewrite the file in place")
	return cmd
}

func newGenerateCmd(a *app) *cobra.Command {
	var (
		output  string
		opts    vocab.Options
		sheet   string
		header  bool
		pos     bool
		doStore bool
	)
	cmd := &cobra.Command{
		Use:   "generate <vocab-file>",
		Short: "Build a multiple-choice exam from a vocabulary list (.txt or .xlsx)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				pairs []vocab.Pair
				err   error
			)
			switch {
			case pos:
				pairs, err = vocab.LoadPOSFile(args[0])
				opts.SamePOS = true
			case strings.HasSuffix(strings.ToLower(args[0]), ".xlsx"):
				pairs, err = vocab.LoadXLSX(args[0], sheet, header)
			default:
				pairs, err = vocab.LoadFile(args[0])
			}
			if err != nil {
				return err
			}
			exam, err := vocab.Generate(pairs, opts)
			if err != nil {
				return err
			}
			exam.ID = knol.ID(exam)

			if doStore {
				if err := a.open(cmd.Context()); err != nil {
					return err
				}
				owner, err := a.owner(cmd.Context())
				if err != nil {
					return err
				}
				if err := a.exams.Upsert(cmd.Context(), owner, exam); err != nil {
					return err
				}
				a.logger.Info("generated exam stored", "id", exam.ID, "questions", len(exam.Questions))
			}

			text := parser.Serialize(exam)
			if output == "" {
				_, err = fmt.Fprint(cmd.OutOrStdout(), text)
				return err
			}
			return os.WriteFile(output, []byte(text), 0o644)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the exam here instead of stdout")
	cmd.Flags().StringVar(&opts.Title, "title", "", "exam title")
	cmd.Flags().Int64Var(&opts.Seed, "seed", 42, "random seed")
	cmd.Flags().BoolVar(&opts.NoShuffle, "no-shuffle", false, "keep the correct answer first")
	cmd.Flags().IntVar(&opts.Distractors, "distractors", 3, "wrong options per question")
	cmd.Flags().StringVar(&sheet, "sheet", "", "xlsx sheet name (default: first sheet)")
	cmd.Flags().BoolVar(&header, "header", false, "xlsx first row is a header")
	cmd.Flags().BoolVar(&pos, "pos", false, "input lines end in a part of speech; distractors share it")
	cmd.Flags().BoolVar(&doStore, "store", false, "also store the exam for --user")
	return cmd
}

func newImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file|dir|git-url>",
		Short: "Parse exams and store them for --user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			source := args[0]

			var res gitsource.Result
			switch info, statErr := os.Stat(source); {
			case statErr == nil && !info.IsDir():
				exam, err := parser.ParseFile(source)
				if err != nil {
					return fmt.Errorf("%s: %w", source, err)
				}
				exam.ID = knol.ID(*exam)
				res.Exams = []domain.Exam{*exam}
			case statErr == nil:
				r, err := gitsource.ImportDir(source)
				if err != nil {
					return err
				}
				res = r
			case gitsource.IsRemote(source):
				local, err := gitsource.LocalPath(a.cfg.ReposDir, source)
				if err != nil {
					return err
				}
				if err := gitsource.Sync(ctx, source, local, cmd.ErrOrStderr(), a.logger); err != nil {
					return err
				}
				r, err := gitsource.ImportDir(local)
				if err != nil {
					return err
				}
				res = r
			default:
				return statErr
			}

			if err := a.open(ctx); err != nil {
				return err
			}
			owner, err := a.owner(ctx)
			if err != nil {
				return err
			}
			for _, exam := range res.Exams {
				if err := a.exams.Upsert(ctx, owner, exam); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Imported %d exams, %d errors.\n", len(res.Exams), len(res.Errors))
			for _, e := range res.Errors {
				fmt.Fprintf(out, "- %s\n", e)
			}
			if len(res.Errors) > 0 && len(res.Exams) == 0 {
				return errors.New("nothing imported")
			}
			return nil
		},
	}
}

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the exams of --user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			exams, err := a.userExams(cmd)
			if err != nil {
				return err
			}
			sort.Slice(exams, func(i, j int) bool { return exams[i].Title < exams[j].Title })
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTITLE\tQUESTIONS")
			for _, e := range exams {
				fmt.Fprintf(tw, "%s\t%s\t%d\n", e.ID, e.Title, len(e.Questions))
			}
			return tw.Flush()
		},
	}
}

func newExportCmd(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export <exam-id>",
		Short: "Write a stored exam as text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			exams, err := a.userExams(cmd)
			if err != nil {
				return err
			}
			for _, e := range exams {
				if e.ID != args[0] {
					continue
				}
				text := parser.Serialize(e)
				if output == "" {
					_, err := fmt.Fprint(cmd.OutOrStdout(), text)
					return err
				}
				return os.WriteFile(output, []byte(text), 0o644)
			}
			return fmt.Errorf("exam %s not found", args[0])
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to this file instead of stdout")
	return cmd
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <exam-id>",
		Short: "Delete a stored exam",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(cmd.Context()); err != nil {
				return err
			}
			owner, err := a.owner(cmd.Context())
			if err != nil {
				return err
			}
			return a.exams.Delete(cmd.Context(), owner, args[0])
		},
	}
}

func (a *app) userExams(cmd *cobra.Command) ([]domain.Exam, error) {
	if err := a.open(cmd.Context()); err != nil {
		return nil, err
	}
	owner, err := a.owner(cmd.Context())
	if err != nil {
		return nil, err
	}
	return a.exams.Snapshot(cmd.Context(), owner)
}

func newRegisterCmd(a *app) *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "register <login> <display-name>",
		Short: "Create a user account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(cmd.Context()); err != nil {
				return err
			}
			acct, err := a.accounts.Register(cmd.Context(), args[0], args[1], password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", acct.ID, acct.Login)
			return nil
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "account password")
	return cmd
}

func newUsersCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "users",
		Short: "List user accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(cmd.Context()); err != nil {
				return err
			}
			accts, err := a.accounts.List(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "LOGIN\tNAME\tROLE\tID")
			for _, u := range accts {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", u.Login, u.DisplayName, u.Role, u.ID)
			}
			return tw.Flush()
		},
	}
}

func newDeleteUserCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete-user <login>",
		Short: "Delete an account and its exams",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(cmd.Context()); err != nil {
				return err
			}
			return a.accounts.Delete(cmd.Context(), args[0])
		},
	}
}

func newLoginCmd(a *app) *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "login <login>",
		Short: "Authenticate and open a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.open(ctx); err != nil {
				return err
			}
			acct, err := a.accounts.Authenticate(ctx, args[0], password)
			if err != nil {
				return err
			}
			s, err := a.ledger.StartSession(ctx, acct)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), s.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "account password")
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout <session-id>",
		Short: "Close a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(cmd.Context()); err != nil {
				return err
			}
			return a.ledger.EndSession(cmd.Context(), args[0])
		},
	}
}

func newRecordAttemptCmd(a *app) *cobra.Command {
	var (
		in       ledger.AttemptInput
		duration time.Duration
	)
	cmd := &cobra.Command{
		Use:   "record-attempt <exam-id>",
		Short: "Record a finished exam attempt for --user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.open(ctx); err != nil {
				return err
			}
			owner, err := a.owner(ctx)
			if err != nil {
				return err
			}
			in.UserID = owner
			in.ExamID = args[0]
			in.FinishedAt = time.Now().UTC()
			in.StartedAt = in.FinishedAt.Add(-duration)
			rec, err := a.ledger.RecordAttempt(ctx, in)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), rec.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&in.SessionID, "session", "", "session the attempt belongs to")
	cmd.Flags().IntVar(&in.Score, "score", 0, "correct answers")
	cmd.Flags().IntVar(&in.Total, "total", 0, "number of questions")
	cmd.Flags().DurationVar(&duration, "took", 0, "time spent on the exam")
	return cmd
}

func newSessionsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List login sessions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(cmd.Context()); err != nil {
				return err
			}
			sessions, err := a.ledger.ListSessions(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tUSER\tLOGIN\tDURATION")
			for _, s := range sessions {
				dur := "open"
				if s.DurationMs != nil {
					dur = (time.Duration(*s.DurationMs) * time.Millisecond).String()
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.ID, s.UserID, s.LoginAt.Format(time.RFC3339), dur)
			}
			return tw.Flush()
		},
	}
}

func newAttemptsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "attempts",
		Short: "List exam attempts, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(cmd.Context()); err != nil {
				return err
			}
			attempts, err := a.ledger.ListAttempts(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tUSER\tEXAM\tSCORE\tFINISHED")
			for _, at := range attempts {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d/%d\t%s\n", at.ID, at.UserID, at.ExamID, at.Score, at.Total, at.FinishedAt.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}
}
