// Package importer runs a full import pass: read the sheet, build the
// catalog tree, diff it against the remote project and apply the result.
package importer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sw33tLie/puzzleimport/pkg/catalog"
	"github.com/sw33tLie/puzzleimport/pkg/emitter"
	"github.com/sw33tLie/puzzleimport/pkg/sheet"
	"github.com/sw33tLie/puzzleimport/pkg/storage"
)

// Logger abstracts logging so callers can use logrus, stdlib log, or any
// other logger that satisfies this interface.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

// nopLogger silently discards all messages.
type nopLogger struct{}

func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}
func (nopLogger) Debugf(string, ...interface{}) {}

// ConflictError is returned when the remote project holds entities of the
// wrong kind on paths the file needs.
type ConflictError struct {
	Conflicts []catalog.Conflict
}

func (e *ConflictError) Error() string {
	lines := make([]string, 0, len(e.Conflicts))
	for _, c := range e.Conflicts {
		lines = append(lines, c.String())
	}
	return fmt.Sprintf("%d remote conflict(s):\n  %s", len(e.Conflicts), strings.Join(lines, "\n  "))
}

// Config holds everything Run needs for one pass.
type Config struct {
	File      string
	ProjectID string
	Source    catalog.SnapshotSource
	Mutator   emitter.Mutator
	DB        *storage.DB // optional; nil = no history
	Log       Logger      // optional; nil = no logging

	DryRun        bool
	SkipUpdates   bool // only create what is missing
	SkipConflicts bool // apply the rest of the plan despite conflicts

	// OnPlan is called once the plan is final, before anything executes.
	OnPlan func(*catalog.Plan)
	// OnResult is called after every executed operation.
	OnResult func(emitter.Result)
}

// Result holds the outcome of a pass.
type Result struct {
	RunID  string
	Specs  []catalog.ProductSpec
	Tree   *catalog.Tree
	Plan   *catalog.Plan
	Report *emitter.Report
}

// Validate reads and checks a file without contacting the service. Picture
// paths in the returned specs are resolved against the file's directory.
func Validate(path string) ([]catalog.ProductSpec, *catalog.Tree, error) {
	rows, err := sheet.Read(path)
	if err != nil {
		return nil, nil, err
	}
	specs, err := catalog.ParseRows(rows)
	if err != nil {
		return nil, nil, err
	}
	if err := resolvePictures(filepath.Dir(path), specs); err != nil {
		return nil, nil, err
	}
	tree, err := catalog.Build(specs)
	if err != nil {
		return nil, nil, err
	}
	return specs, tree, nil
}

func resolvePictures(baseDir string, specs []catalog.ProductSpec) error {
	for i := range specs {
		pic := specs[i].Picture
		if pic == "" {
			continue
		}
		if !filepath.IsAbs(pic) {
			pic = filepath.Join(baseDir, filepath.FromSlash(pic))
		}
		info, err := os.Stat(pic)
		if err != nil || info.IsDir() {
			return &catalog.RowError{Line: specs[i].Line, Column: catalog.ColPicture, Value: specs[i].Picture, Err: catalog.ErrPictureNotFound}
		}
		specs[i].Picture = pic
	}
	return nil
}

// Run performs one import pass. Validation and snapshot errors abort before
// anything is sent; execution stops at the first failed operation.
func Run(ctx context.Context, cfg Config) (*Result, error) {
	log := cfg.Log
	if log == nil {
		log = nopLogger{}
	}
	res := &Result{}

	specs, tree, err := Validate(cfg.File)
	if err != nil {
		return nil, err
	}
	res.Specs, res.Tree = specs, tree
	log.Infof("Parsed %d products in %d groups from %s", len(specs), tree.GroupCount(), cfg.File)

	snap, err := catalog.LoadSnapshot(ctx, cfg.Source, cfg.ProjectID)
	if err != nil {
		return res, fmt.Errorf("loading project %s: %w", cfg.ProjectID, err)
	}
	groups, products := snap.Len()
	log.Debugf("Project %s has %d groups and %d products", cfg.ProjectID, groups, products)

	plan, err := catalog.Reconcile(tree, snap)
	if err != nil {
		return res, err
	}
	if len(plan.Conflicts) > 0 {
		if !cfg.SkipConflicts {
			res.Plan = plan
			return res, &ConflictError{Conflicts: plan.Conflicts}
		}
		for _, c := range plan.Conflicts {
			log.Warnf("Skipping %s", c)
		}
	}
	if cfg.SkipUpdates {
		plan = plan.WithoutUpdates()
	}
	res.Plan = plan
	if cfg.OnPlan != nil {
		cfg.OnPlan(plan)
	}

	if plan.Empty() {
		log.Infof("Project %s is up to date", cfg.ProjectID)
	}

	runID := ""
	if cfg.DB != nil {
		runID, err = cfg.DB.BeginRun(ctx, cfg.ProjectID, absPath(cfg.File), cfg.DryRun, countsOf(plan.Summary))
		if err != nil {
			log.Warnf("Could not record run in history: %v", err)
			runID = ""
		}
	}
	res.RunID = runID

	em := emitter.New(emitter.Config{
		Mutator: cfg.Mutator,
		DryRun:  cfg.DryRun,
		Log:     log,
		OnResult: func(r emitter.Result) {
			if runID != "" {
				if err := cfg.DB.RecordOperation(ctx, operationRecord(runID, r)); err != nil {
					log.Warnf("Could not record operation %d: %v", r.Seq, err)
				}
			}
			if cfg.OnResult != nil {
				cfg.OnResult(r)
			}
		},
	})
	report, execErr := em.Execute(ctx, cfg.ProjectID, plan)
	res.Report = report

	if runID != "" {
		if err := cfg.DB.FinishRun(context.WithoutCancel(ctx), runID, report.Executed, execErr); err != nil {
			log.Warnf("Could not finish run %s in history: %v", runID, err)
		}
	}
	if execErr != nil {
		return res, execErr
	}
	return res, nil
}

func operationRecord(runID string, r emitter.Result) storage.OperationRecord {
	rec := storage.OperationRecord{
		RunID:    runID,
		Seq:      r.Seq,
		Kind:     string(r.Op.Kind),
		Path:     strings.Join(r.Op.Path, "/"),
		Handle:   int(r.Op.Handle),
		ParentID: r.ParentID,
		RemoteID: r.RemoteID,
		Fields:   r.Op.Changed.String(),
	}
	if r.Err != nil {
		rec.Error = r.Err.Error()
	}
	return rec
}

func countsOf(s catalog.Summary) storage.Counts {
	return storage.Counts{
		GroupsCreated:     s.GroupsCreated,
		GroupsExisting:    s.GroupsExisting,
		ProductsCreated:   s.ProductsCreated,
		ProductsUpdated:   s.ProductsUpdated,
		ProductsUnchanged: s.ProductsUnchanged,
		Conflicts:         s.Conflicts,
	}
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}
