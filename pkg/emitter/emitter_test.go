package emitter

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sw33tLie/puzzleimport/pkg/catalog"
)

type call struct {
	kind   catalog.OpKind
	parent string
	name   string
}

type fakeMutator struct {
	calls  []call
	failOn int
	seq    int
}

func (f *fakeMutator) next(c call) (string, error) {
	f.calls = append(f.calls, c)
	if f.failOn == len(f.calls) {
		return "", errors.New("boom")
	}
	f.seq++
	return fmt.Sprintf("r%d", f.seq), nil
}

func (f *fakeMutator) CreateGroup(_ context.Context, _, parentID, name string) (string, error) {
	return f.next(call{catalog.OpCreateGroup, parentID, name})
}

func (f *fakeMutator) CreateProduct(_ context.Context, _, parentID string, spec catalog.ProductSpec) (string, error) {
	return f.next(call{catalog.OpCreateProduct, parentID, spec.Code})
}

func (f *fakeMutator) UpdateProduct(_ context.Context, _, productID string, spec catalog.ProductSpec, _ catalog.FieldSet) error {
	f.calls = append(f.calls, call{catalog.OpUpdateProduct, productID, spec.Code})
	if f.failOn == len(f.calls) {
		return errors.New("boom")
	}
	return nil
}

func (f *fakeMutator) Payload(projectID, parentID string, op catalog.Operation) ([]byte, error) {
	return []byte(fmt.Sprintf(`{"project":%q,"parent":%q,"code":%q}`, projectID, parentID, op.Name)), nil
}

func plan(t *testing.T) *catalog.Plan {
	t.Helper()
	rows := []catalog.RawRow{
		{Line: 2, Path: "A/B", Code: "x"},
		{Line: 3, Path: "A", Code: "y", Status: "COMPLETED"},
	}
	specs, err := catalog.ParseRows(rows)
	require.NoError(t, err)
	tree, err := catalog.Build(specs)
	require.NoError(t, err)
	snap := catalog.NewSnapshot(
		[]catalog.RemoteGroup{{ID: "ga", Name: "A"}},
		[]catalog.RemoteProduct{{ID: "py", GroupID: "ga", Code: "y", Fields: catalog.ProductFields{Status: catalog.StatusActive}}},
	)
	p, err := catalog.Reconcile(tree, snap)
	require.NoError(t, err)
	return p
}

func TestExecute_ResolvesHandles(t *testing.T) {
	m := &fakeMutator{}
	var results []Result
	rep, err := New(Config{Mutator: m, OnResult: func(r Result) { results = append(results, r) }}).Execute(context.Background(), "proj", plan(t))
	require.NoError(t, err)

	assert.Equal(t, []call{
		{catalog.OpUpdateProduct, "py", "y"},
		{catalog.OpCreateGroup, "ga", "B"},
		{catalog.OpCreateProduct, "r1", "x"},
	}, m.calls)
	assert.Equal(t, 3, rep.Executed)
	assert.Len(t, rep.Created, 2)
	require.Len(t, results, 3)
	assert.Equal(t, "r2", results[2].RemoteID)
	assert.Equal(t, "r1", results[2].ParentID)
}

func TestExecute_StopsOnFirstError(t *testing.T) {
	m := &fakeMutator{failOn: 2}
	rep, err := New(Config{Mutator: m}).Execute(context.Background(), "proj", plan(t))
	require.EqualError(t, err, "boom")
	assert.Len(t, m.calls, 2)
	assert.Equal(t, 1, rep.Executed)
	require.Len(t, rep.Results, 2)
	assert.Error(t, rep.Results[1].Err)
}

func TestExecute_DryRun(t *testing.T) {
	m := &fakeMutator{}
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)

	rep, err := New(Config{Mutator: m, DryRun: true, Log: log}).Execute(context.Background(), "proj", plan(t))
	require.NoError(t, err)
	assert.Empty(t, m.calls)
	assert.Equal(t, 3, rep.Executed)

	p := plan(t)
	createGroup := p.Operations[1]
	assert.Equal(t, fmt.Sprintf("dry-run:%d", createGroup.Handle), rep.Created[createGroup.Handle])
	assert.Equal(t, rep.Created[createGroup.Handle], rep.Results[2].ParentID)

	var payloads int
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.DebugLevel {
			payloads++
		}
	}
	assert.Equal(t, 3, payloads)
}

func TestExecute_DryRunWithoutMutator(t *testing.T) {
	rep, err := New(Config{DryRun: true}).Execute(context.Background(), "proj", plan(t))
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Executed)

	_, err = New(Config{}).Execute(context.Background(), "proj", plan(t))
	assert.Error(t, err)
}

func TestExecute_UnresolvedHandle(t *testing.T) {
	p := &catalog.Plan{Operations: []catalog.Operation{
		{Kind: catalog.OpCreateProduct, Handle: 2, Parent: catalog.Ref{Handle: 1}, Name: "x"},
	}}
	_, err := New(Config{Mutator: &fakeMutator{}}).Execute(context.Background(), "proj", p)
	assert.ErrorIs(t, err, ErrUnresolvedHandle)
}

func TestExecute_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := &fakeMutator{}
	_, err := New(Config{Mutator: m}).Execute(ctx, "proj", plan(t))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, m.calls)
}

func TestExecute_SkipUpdatesStaysResolvable(t *testing.T) {
	m := &fakeMutator{}
	_, err := New(Config{Mutator: m}).Execute(context.Background(), "proj", plan(t).WithoutUpdates())
	require.NoError(t, err)
	assert.Len(t, m.calls, 2)
}
