// Command quizvault checks, formats, generates and stores plain-text exams.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/conorfennell/quizvault/internal/config"
	"github.com/conorfennell/quizvault/internal/ledger"
	"github.com/conorfennell/quizvault/internal/logging"
	"github.com/conorfennell/quizvault/internal/storage"
	examsync "github.com/conorfennell/quizvault/internal/sync"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// app holds what the subcommands share. The store is opened on first use so
// commands that only touch files never create a data directory.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	store    *storage.Store
	exams    *examsync.Reconciler
	ledger   *ledger.Ledger
	accounts *ledger.Accounts
}

func newRootCmd() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:           "quizvault",
		Short:         "Plain-text exams: validate, format, generate and store them.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}
			logger, err := logging.New(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
			if err != nil {
				return err
			}
			a.cfg, a.logger = cfg, logger
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(
		newCheckCmd(a),
		newFmtCmd(a),
		newGenerateCmd(a),
		newImportCmd(a),
		newListCmd(a),
		newExportCmd(a),
		newDeleteCmd(a),
		newRegisterCmd(a),
		newUsersCmd(a),
		newDeleteUserCmd(a),
		newLoginCmd(a),
		newLogoutCmd(a),
		newRecordAttemptCmd(a),
		newSessionsCmd(a),
		newAttemptsCmd(a),
	)
	return cmd
}

// open selects the storage tier and wires the exam reconciler and ledger.
// There is no remote backend on the command line, so exams stay local.
func (a *app) open(ctx context.Context) error {
	if a.store != nil {
		return nil
	}
	if err := a.cfg.EnsureDirs(); err != nil {
		return err
	}
	store, err := storage.Open(ctx, storage.Options{
		DBPath:            a.cfg.DBPath,
		FlatDir:           a.cfg.FlatDir,
		DisableStructured: a.cfg.DisableStructured,
		Logger:            a.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	a.store = store
	a.exams = examsync.New(nil, examsync.NewSession(store), examsync.WithLogger(a.logger))
	a.ledger = ledger.New(store, a.logger)
	a.accounts = ledger.NewAccounts(store, ledger.AccountsConfig{
		Hasher:     hasher(a.cfg.Hash),
		Purger:     a.exams,
		AdminLogin: a.cfg.Admin.Login,
		Logger:     a.logger,
	})
	if a.cfg.Admin.Password != "" {
		if _, err := a.accounts.EnsureAdmin(ctx, a.cfg.Admin.Password); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) close() error {
	if a.store == nil {
		return nil
	}
	err := a.store.Close()
	a.store = nil
	return err
}

// owner resolves the configured user to an account id when such an account
// exists, so exams line up with account deletion.
func (a *app) owner(ctx context.Context) (string, error) {
	acct, ok, err := a.accounts.Get(ctx, a.cfg.User)
	if err != nil {
		return "", err
	}
	if ok {
		return acct.ID, nil
	}
	return a.cfg.User, nil
}

func hasher(name string) ledger.Hasher {
	switch name {
	case "sha256":
		return ledger.FuncHasher(ledger.SHA256)
	case "reversible":
		return ledger.ReversibleHasher{}
	default:
		return ledger.BcryptHasher{}
	}
}
