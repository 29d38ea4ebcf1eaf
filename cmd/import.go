package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sw33tLie/puzzleimport/internal/utils"
	"github.com/sw33tLie/puzzleimport/pkg/catalog"
	"github.com/sw33tLie/puzzleimport/pkg/emitter"
	"github.com/sw33tLie/puzzleimport/pkg/importer"
	"github.com/sw33tLie/puzzleimport/pkg/storage"
)

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Create and update a project's groups and products from a file",
	Long: `Reads a CSV or XLSX file, compares it with the project and creates the missing
groups and products. Products whose fields differ are updated unless --skip-updates
is given. Nothing is ever deleted, and running the same file twice is a no-op.

Use --dry-run to print the plan without changing anything.`,
	Args: exactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		file := args[0]
		projectRef, _ := cmd.Flags().GetString("project")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		skipUpdates, _ := cmd.Flags().GetBool("skip-updates")
		skipConflicts, _ := cmd.Flags().GetBool("skip-conflicts")
		noHistory, _ := cmd.Flags().GetBool("no-history")

		if projectRef == "" {
			return withCode(exitUsage, errors.New("--project is required"))
		}

		// Fail on a bad file before logging in.
		if _, _, err := importer.Validate(file); err != nil {
			return fileError(err)
		}

		client, err := newAPIClient(ctx, true)
		if err != nil {
			return err
		}
		project, err := resolveProject(ctx, client, projectRef)
		if err != nil {
			return err
		}
		if !project.Active() {
			utils.Log.Warnf("Project %s (%s) is finished", project.Title, project.ID)
		}

		var db *storage.DB
		if !noHistory {
			var release func()
			db, release, err = openHistory(dryRun)
			if err != nil {
				return err
			}
			defer release()
		}

		out := cmd.OutOrStdout()
		res, err := importer.Run(ctx, importer.Config{
			File:          file,
			ProjectID:     project.ID,
			Source:        client,
			Mutator:       client,
			DB:            db,
			Log:           utils.Log,
			DryRun:        dryRun,
			SkipUpdates:   skipUpdates,
			SkipConflicts: skipConflicts,
			OnPlan: func(p *catalog.Plan) {
				if dryRun {
					p.Render(out)
				}
			},
			OnResult: func(r emitter.Result) {
				if r.Err == nil {
					utils.Log.Debugf("%d/%s done", r.Seq, r.Op.Kind)
				}
			},
		})
		if err != nil {
			return importError(err, res)
		}

		s := res.Plan.Summary
		verb := "Imported"
		if dryRun {
			verb = "Would import"
		}
		utils.Log.Infof("%s %s into %q: groups %d new, %d existing; products %d new, %d updated, %d unchanged",
			verb, file, project.Title, s.GroupsCreated, s.GroupsExisting, s.ProductsCreated, s.ProductsUpdated, s.ProductsUnchanged)
		if res.RunID != "" {
			utils.Log.Debugf("Recorded as run %s", res.RunID)
		}
		return nil
	},
}

// openHistory opens the history database under the process lock. Dry runs
// don't wait for a busy lock and skip history instead.
func openHistory(dryRun bool) (*storage.DB, func(), error) {
	path, err := utils.GetAbsDBPath(viper.GetString("db.path"))
	if err != nil {
		return nil, nil, withCode(exitStorage, err)
	}
	lock, err := utils.NewDBLock(path)
	if err != nil {
		return nil, nil, withCode(exitStorage, err)
	}
	if dryRun {
		ok, err := lock.TryLock()
		if err != nil {
			return nil, nil, withCode(exitStorage, err)
		}
		if !ok {
			utils.Log.Warnf("History database %s is busy, not recording this dry run", path)
			return nil, func() {}, nil
		}
	} else if err := lock.Lock(); err != nil {
		return nil, nil, withCode(exitStorage, err)
	}

	db, err := storage.Open(path)
	if err != nil {
		lock.Unlock()
		return nil, nil, withCode(exitStorage, fmt.Errorf("opening history %s: %w", path, err))
	}
	return db, func() {
		db.Close()
		lock.Unlock()
	}, nil
}

func importError(err error, res *importer.Result) error {
	var conflicts *importer.ConflictError
	switch {
	case errors.As(err, &conflicts):
		if res != nil && res.Plan != nil {
			res.Plan.Render(os.Stderr)
		}
		return withCode(exitConflicts, fmt.Errorf("%w\nrerun with --skip-conflicts to import everything else", err))
	case errors.Is(err, context.Canceled):
		if res != nil && res.Report != nil {
			utils.Log.Warnf("Interrupted after %d operations", res.Report.Executed)
		}
		return withCode(exitRemote, err)
	case res == nil:
		return fileError(err)
	}
	var re *catalog.RowError
	if errors.As(err, &re) || errors.Is(err, catalog.ErrMalformedTree) {
		return withCode(exitValidation, err)
	}
	if res.Report != nil {
		utils.Log.Errorf("Stopped after %d of %d operations", res.Report.Executed, len(res.Plan.Operations))
	}
	return withCode(exitRemote, err)
}

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.Flags().StringP("project", "p", "", "Project ID or title (required)")
	importCmd.Flags().Bool("dry-run", false, "Print the plan and the payloads that would be sent without changing anything")
	importCmd.Flags().Bool("skip-updates", false, "Only create missing groups and products")
	importCmd.Flags().Bool("skip-conflicts", false, "Import everything except paths that clash with remote entities of another kind")
	importCmd.Flags().Bool("no-history", false, "Do not record this run in the history database")
}
