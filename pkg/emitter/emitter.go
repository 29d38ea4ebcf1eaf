// Package emitter executes reconciliation plans against the remote service.
package emitter

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sw33tLie/puzzleimport/pkg/catalog"
)

var ErrUnresolvedHandle = errors.New("unresolved handle")

// Logger abstracts logging so callers can use logrus or anything else with
// the same methods.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}
func (nopLogger) Debugf(string, ...interface{}) {}

// Mutator applies single operations remotely. Parent IDs are empty for the
// project root.
type Mutator interface {
	CreateGroup(ctx context.Context, projectID, parentID, name string) (string, error)
	CreateProduct(ctx context.Context, projectID, parentID string, spec catalog.ProductSpec) (string, error)
	UpdateProduct(ctx context.Context, projectID, productID string, spec catalog.ProductSpec, changed catalog.FieldSet) error
}

// PayloadRenderer is implemented by mutators that can show what they would
// send. Dry runs log it.
type PayloadRenderer interface {
	Payload(projectID, parentID string, op catalog.Operation) ([]byte, error)
}

// Result is the outcome of one executed operation.
type Result struct {
	Seq      int
	Op       catalog.Operation
	ParentID string
	RemoteID string
	DryRun   bool
	Err      error
}

type Config struct {
	Mutator Mutator
	DryRun  bool
	Log     Logger // optional

	// OnResult is called after every operation, failed ones included.
	OnResult func(Result)
}

// Report summarizes an execution.
type Report struct {
	Executed int
	Created  map[catalog.Handle]string
	Results  []Result
}

type Emitter struct {
	cfg Config
	log Logger
}

func New(cfg Config) *Emitter {
	log := cfg.Log
	if log == nil {
		log = nopLogger{}
	}
	return &Emitter{cfg: cfg, log: log}
}

// Execute runs the plan's operations in order. The first failure stops
// execution and is returned unchanged together with the partial report.
// In dry-run mode nothing is sent and creates get synthetic IDs.
func (e *Emitter) Execute(ctx context.Context, projectID string, plan *catalog.Plan) (*Report, error) {
	rep := &Report{Created: make(map[catalog.Handle]string)}
	if plan == nil {
		return rep, nil
	}
	if e.cfg.Mutator == nil && !e.cfg.DryRun {
		return rep, errors.New("emitter: no mutator configured")
	}

	for i, op := range plan.Operations {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		res := Result{Seq: i + 1, Op: op, DryRun: e.cfg.DryRun}
		res.ParentID, res.RemoteID, res.Err = e.apply(ctx, projectID, op, rep.Created)
		rep.Results = append(rep.Results, res)
		if e.cfg.OnResult != nil {
			e.cfg.OnResult(res)
		}
		if res.Err != nil {
			e.log.Errorf("%s failed: %v", describe(op), res.Err)
			return rep, res.Err
		}
		rep.Executed++
		if op.Handle != 0 {
			rep.Created[op.Handle] = res.RemoteID
		}
	}
	return rep, nil
}

func (e *Emitter) apply(ctx context.Context, projectID string, op catalog.Operation, created map[catalog.Handle]string) (parentID, remoteID string, err error) {
	if op.Kind != catalog.OpUpdateProduct {
		parentID, err = resolve(op.Parent, created)
		if err != nil {
			return "", "", err
		}
	}

	if e.cfg.DryRun {
		e.logPayload(projectID, parentID, op)
		e.log.Infof("[dry run] %s", describe(op))
		switch op.Kind {
		case catalog.OpUpdateProduct:
			return parentID, op.RemoteID, nil
		default:
			return parentID, fmt.Sprintf("dry-run:%d", op.Handle), nil
		}
	}

	switch op.Kind {
	case catalog.OpCreateGroup:
		remoteID, err = e.cfg.Mutator.CreateGroup(ctx, projectID, parentID, op.Name)
	case catalog.OpCreateProduct:
		remoteID, err = e.cfg.Mutator.CreateProduct(ctx, projectID, parentID, op.Spec)
	case catalog.OpUpdateProduct:
		remoteID = op.RemoteID
		err = e.cfg.Mutator.UpdateProduct(ctx, projectID, op.RemoteID, op.Spec, op.Changed)
	default:
		err = fmt.Errorf("unknown operation kind %q", op.Kind)
	}
	if err != nil {
		return parentID, "", err
	}
	e.log.Infof("%s: %s", describe(op), remoteID)
	return parentID, remoteID, nil
}

func (e *Emitter) logPayload(projectID, parentID string, op catalog.Operation) {
	r, ok := e.cfg.Mutator.(PayloadRenderer)
	if !ok {
		return
	}
	payload, err := r.Payload(projectID, parentID, op)
	if err != nil {
		e.log.Warnf("could not render payload for %s: %v", describe(op), err)
		return
	}
	e.log.Debugf("[dry run] payload: %s", payload)
}

func resolve(ref catalog.Ref, created map[catalog.Handle]string) (string, error) {
	if !ref.IsPending() {
		return ref.ID, nil
	}
	id, ok := created[ref.Handle]
	if !ok {
		return "", fmt.Errorf("%w: #%d", ErrUnresolvedHandle, ref.Handle)
	}
	return id, nil
}

func describe(op catalog.Operation) string {
	p := strings.Join(op.Path, "/")
	switch op.Kind {
	case catalog.OpCreateGroup:
		return "create group " + p
	case catalog.OpCreateProduct:
		return "create product " + p
	case catalog.OpUpdateProduct:
		return fmt.Sprintf("update product %s (%s)", p, op.Changed)
	}
	return string(op.Kind) + " " + p
}
