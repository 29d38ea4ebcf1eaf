package importer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sw33tLie/puzzleimport/pkg/catalog"
	"github.com/sw33tLie/puzzleimport/pkg/emitter"
	"github.com/sw33tLie/puzzleimport/pkg/storage"
)

const header = "path,code,awarded,due,picture,deliverable,status,tags\n"

// memRemote is an in-memory project that serves snapshots and applies
// mutations.
type memRemote struct {
	groups   []catalog.RemoteGroup
	products []catalog.RemoteProduct
	seq      int
	calls    int
	failOn   int
	fetchErr error
}

func (m *memRemote) FetchSnapshot(_ context.Context, _ string) ([]catalog.RemoteGroup, []catalog.RemoteProduct, error) {
	if m.fetchErr != nil {
		return nil, nil, m.fetchErr
	}
	return append([]catalog.RemoteGroup(nil), m.groups...), append([]catalog.RemoteProduct(nil), m.products...), nil
}

func (m *memRemote) step() error {
	m.calls++
	if m.failOn == m.calls {
		return errors.New("remote said no")
	}
	return nil
}

func (m *memRemote) CreateGroup(_ context.Context, _, parentID, name string) (string, error) {
	if err := m.step(); err != nil {
		return "", err
	}
	m.seq++
	id := fmt.Sprintf("g%d", m.seq)
	m.groups = append(m.groups, catalog.RemoteGroup{ID: id, ParentID: parentID, Name: name})
	return id, nil
}

func (m *memRemote) CreateProduct(_ context.Context, _, parentID string, spec catalog.ProductSpec) (string, error) {
	if err := m.step(); err != nil {
		return "", err
	}
	m.seq++
	id := fmt.Sprintf("p%d", m.seq)
	m.products = append(m.products, catalog.RemoteProduct{ID: id, GroupID: parentID, Code: spec.Code, Fields: spec.Fields()})
	return id, nil
}

func (m *memRemote) UpdateProduct(_ context.Context, _, productID string, spec catalog.ProductSpec, changed catalog.FieldSet) error {
	if err := m.step(); err != nil {
		return err
	}
	want := spec.Fields()
	for i := range m.products {
		if m.products[i].ID != productID {
			continue
		}
		have := &m.products[i].Fields
		if changed.Has(catalog.FieldAwarded) {
			have.Awarded = want.Awarded
		}
		if changed.Has(catalog.FieldDue) {
			have.Due = want.Due
		}
		if changed.Has(catalog.FieldPicture) {
			have.Picture = want.Picture
		}
		if changed.Has(catalog.FieldDeliverable) {
			have.Deliverable = want.Deliverable
		}
		if changed.Has(catalog.FieldStatus) {
			have.Status = want.Status
		}
		if changed.Has(catalog.FieldTags) {
			have.Tags = want.Tags
		}
		return nil
	}
	return fmt.Errorf("no product %s", productID)
}

func writeSheet(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "shots.csv")
	require.NoError(t, os.WriteFile(path, []byte(header+body), 0o644))
	return path
}

func openDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "history.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRun_CreatesThenIsIdempotent(t *testing.T) {
	ctx := context.Background()
	file := writeSheet(t, ""+
		"Ep01/Sc01,sh010,1.5,2026-03-01,,TRUE,ACTIVE,anim comp\n"+
		"Ep01/Sc01,sh020,,,,FALSE,,\n"+
		"Ep01,ep01_edit,,,,false,COMPLETED,edit\n")
	remote := &memRemote{}
	db := openDB(t)

	res, err := Run(ctx, Config{File: file, ProjectID: "proj", Source: remote, Mutator: remote, DB: db})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Plan.Summary.GroupsCreated)
	assert.Equal(t, 3, res.Plan.Summary.ProductsCreated)
	assert.Equal(t, 5, res.Report.Executed)
	assert.Len(t, remote.groups, 2)
	assert.Len(t, remote.products, 3)
	require.NotEmpty(t, res.RunID)

	run, err := db.GetRun(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, storage.RunSucceeded, run.Status)
	assert.Equal(t, 5, run.Executed)
	ops, err := db.ListRunOperations(ctx, res.RunID)
	require.NoError(t, err)
	require.Len(t, ops, 5)
	assert.Equal(t, "create-group", ops[0].Kind)
	assert.Equal(t, "Ep01", ops[0].Path)

	calls := remote.calls
	again, err := Run(ctx, Config{File: file, ProjectID: "proj", Source: remote, Mutator: remote, DB: db})
	require.NoError(t, err)
	assert.True(t, again.Plan.Empty())
	assert.Equal(t, 3, again.Plan.Summary.ProductsUnchanged)
	assert.Equal(t, calls, remote.calls)
}

func TestRun_UpdatesOnlyChangedFields(t *testing.T) {
	ctx := context.Background()
	remote := &memRemote{}
	first := writeSheet(t, "A,x,,,,FALSE,ACTIVE,\n")
	_, err := Run(ctx, Config{File: first, ProjectID: "proj", Source: remote, Mutator: remote})
	require.NoError(t, err)

	second := writeSheet(t, "A,x,,,,FALSE,COMPLETED,\nA,y,,,,FALSE,,\n")
	res, err := Run(ctx, Config{File: second, ProjectID: "proj", Source: remote, Mutator: remote})
	require.NoError(t, err)
	require.Len(t, res.Plan.Operations, 2)
	assert.Equal(t, catalog.OpUpdateProduct, res.Plan.Operations[0].Kind)
	assert.Equal(t, catalog.FieldStatus, res.Plan.Operations[0].Changed)
	assert.Equal(t, catalog.StatusCompleted, remote.products[0].Fields.Status)
}

func TestRun_SkipUpdates(t *testing.T) {
	ctx := context.Background()
	remote := &memRemote{
		groups:   []catalog.RemoteGroup{{ID: "ga", Name: "A"}},
		products: []catalog.RemoteProduct{{ID: "px", GroupID: "ga", Code: "x", Fields: catalog.ProductFields{Status: catalog.StatusActive}}},
	}
	file := writeSheet(t, "A,x,,,,FALSE,CANCELED,\nA,y,,,,FALSE,,\n")

	res, err := Run(ctx, Config{File: file, ProjectID: "proj", Source: remote, Mutator: remote, SkipUpdates: true})
	require.NoError(t, err)
	require.Len(t, res.Plan.Operations, 1)
	assert.Equal(t, catalog.OpCreateProduct, res.Plan.Operations[0].Kind)
	assert.Equal(t, catalog.StatusActive, remote.products[0].Fields.Status)
}

func TestRun_DryRunSendsNothing(t *testing.T) {
	remote := &memRemote{}
	db := openDB(t)
	file := writeSheet(t, "A/B,x,,,,FALSE,,\n")

	var seen []emitter.Result
	res, err := Run(context.Background(), Config{
		File: file, ProjectID: "proj", Source: remote, Mutator: remote, DB: db, DryRun: true,
		OnResult: func(r emitter.Result) { seen = append(seen, r) },
	})
	require.NoError(t, err)
	assert.Zero(t, remote.calls)
	assert.Len(t, seen, 3)

	run, err := db.GetRun(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.True(t, run.DryRun)
}

func TestRun_ConflictsBlockUnlessSkipped(t *testing.T) {
	ctx := context.Background()
	remote := &memRemote{
		groups:   []catalog.RemoteGroup{{ID: "ga", Name: "A"}},
		products: []catalog.RemoteProduct{{ID: "pb", GroupID: "ga", Code: "B"}},
	}
	file := writeSheet(t, "A/B,x,,,,FALSE,,\nA,y,,,,FALSE,,\n")

	var planned *catalog.Plan
	_, err := Run(ctx, Config{File: file, ProjectID: "proj", Source: remote, Mutator: remote, OnPlan: func(p *catalog.Plan) { planned = p }})
	var ce *ConflictError
	require.ErrorAs(t, err, &ce)
	require.Len(t, ce.Conflicts, 1)
	assert.Contains(t, err.Error(), "A/B")
	assert.Nil(t, planned)
	assert.Zero(t, remote.calls)

	res, err := Run(ctx, Config{File: file, ProjectID: "proj", Source: remote, Mutator: remote, SkipConflicts: true})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Report.Executed)
	assert.Len(t, remote.products, 2)
}

func TestRun_FailureIsRecorded(t *testing.T) {
	ctx := context.Background()
	remote := &memRemote{failOn: 2}
	db := openDB(t)
	file := writeSheet(t, "A,x,,,,FALSE,,\nA,y,,,,FALSE,,\n")

	res, err := Run(ctx, Config{File: file, ProjectID: "proj", Source: remote, Mutator: remote, DB: db})
	require.EqualError(t, err, "remote said no")
	assert.Equal(t, 1, res.Report.Executed)

	run, err := db.GetRun(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, storage.RunFailed, run.Status)
	assert.Equal(t, "remote said no", run.Error)
	ops, err := db.ListRunOperations(ctx, res.RunID)
	require.NoError(t, err)
	require.Len(t, ops, 2)
	assert.Equal(t, "remote said no", ops[1].Error)
}

func TestRun_SnapshotErrorSendsNothing(t *testing.T) {
	remote := &memRemote{fetchErr: errors.New("unauthorized")}
	file := writeSheet(t, "A,x,,,,FALSE,,\n")
	_, err := Run(context.Background(), Config{File: file, ProjectID: "proj", Source: remote, Mutator: remote})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unauthorized")
	assert.Zero(t, remote.calls)
}

func TestValidate_ResolvesPictures(t *testing.T) {
	file := writeSheet(t, "A,x,,,img/x.png,FALSE,,\n")
	dir := filepath.Dir(file)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "img"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "img", "x.png"), []byte("\x89PNG\r\n\x1a\n"), 0o644))

	specs, tree, err := Validate(file)
	require.NoError(t, err)
	require.Len(t, specs, 1)
	assert.Equal(t, filepath.Join(dir, "img", "x.png"), specs[0].Picture)
	assert.Equal(t, "x.png", specs[0].Fields().Picture)
	assert.Equal(t, 1, tree.GroupCount())
}

func TestValidate_MissingPicture(t *testing.T) {
	file := writeSheet(t, "A,x,,,,FALSE,,\nA,y,,,nope.png,FALSE,,\n")
	_, _, err := Validate(file)
	require.ErrorIs(t, err, catalog.ErrPictureNotFound)
	var re *catalog.RowError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, 3, re.Line)
	assert.Equal(t, catalog.ColPicture, re.Column)
}

func TestValidate_RowErrorsStopBeforeRemote(t *testing.T) {
	remote := &memRemote{}
	file := writeSheet(t, "A,x,abc,,,FALSE,,\n")
	_, err := Run(context.Background(), Config{File: file, ProjectID: "proj", Source: remote, Mutator: remote})
	assert.ErrorIs(t, err, catalog.ErrInvalidNumber)
	assert.Zero(t, remote.calls)
}
