package catalog

import "fmt"

type reconciler struct {
	tree *Tree
	snap *Snapshot
	refs []Ref
	plan *Plan
	next Handle
}

// Reconcile diffs the tree against the snapshot and returns the operations
// that bring the remote project in line with it. Groups come before their
// contents, and within a group its products come before its subgroups.
func Reconcile(t *Tree, snap *Snapshot) (*Plan, error) {
	if t == nil || len(t.Nodes) == 0 || t.Nodes[RootID].Parent != NoParent {
		return nil, fmt.Errorf("%w: missing root", ErrMalformedTree)
	}
	r := &reconciler{
		tree: t,
		snap: snap,
		refs: make([]Ref, len(t.Nodes)),
		plan: &Plan{},
	}
	if err := r.visit(RootID, 0); err != nil {
		return nil, err
	}
	return r.plan, nil
}

func (r *reconciler) visit(id NodeID, depth int) error {
	if depth > len(r.tree.Nodes) {
		return fmt.Errorf("%w: cycle through node %d", ErrMalformedTree, id)
	}
	node := &r.tree.Nodes[id]

	for _, pi := range node.Products {
		if pi < 0 || pi >= len(r.tree.Products) || r.tree.Products[pi].Group != id {
			return fmt.Errorf("%w: product %d not owned by node %d", ErrMalformedTree, pi, id)
		}
		r.product(id, r.tree.Products[pi].Spec)
	}

	for _, c := range node.Children {
		if !r.tree.valid(c) || c == RootID || r.tree.Nodes[c].Parent != id {
			return fmt.Errorf("%w: child %d not linked to node %d", ErrMalformedTree, c, id)
		}
		if !r.group(c) {
			continue
		}
		if err := r.visit(c, depth+1); err != nil {
			return err
		}
	}
	return nil
}

// group resolves the remote identity of node id. It returns false when the
// node conflicts with a remote product and its subtree must be skipped.
func (r *reconciler) group(id NodeID) bool {
	node := r.tree.Nodes[id]
	parent := r.refs[node.Parent]

	if !parent.IsPending() {
		if remoteID, ok := r.snap.Group(parent.ID, node.Name); ok {
			r.refs[id] = Ref{ID: remoteID}
			r.plan.Summary.GroupsExisting++
			return true
		}
		if p, ok := r.snap.Product(parent.ID, node.Name); ok {
			r.conflict(Conflict{Path: r.tree.Path(id), Want: "group", RemoteID: p.ID})
			return false
		}
	}

	h := r.handle()
	r.refs[id] = Ref{Handle: h}
	r.plan.Operations = append(r.plan.Operations, Operation{
		Kind:   OpCreateGroup,
		Handle: h,
		Parent: parent,
		Name:   node.Name,
		Path:   r.tree.Path(id),
	})
	r.plan.Summary.GroupsCreated++
	return true
}

func (r *reconciler) product(group NodeID, spec ProductSpec) {
	parent := r.refs[group]
	path := append(r.tree.Path(group), spec.Code)

	if !parent.IsPending() {
		if remote, ok := r.snap.Product(parent.ID, spec.Code); ok {
			changed, changes := Diff(spec.Fields(), remote.Fields)
			if changed == 0 {
				r.plan.Summary.ProductsUnchanged++
				return
			}
			r.plan.Operations = append(r.plan.Operations, Operation{
				Kind:     OpUpdateProduct,
				Path:     path,
				Spec:     spec,
				RemoteID: remote.ID,
				Changed:  changed,
				Changes:  changes,
			})
			r.plan.Summary.ProductsUpdated++
			return
		}
		if gid, ok := r.snap.Group(parent.ID, spec.Code); ok {
			r.conflict(Conflict{Path: path, Line: spec.Line, Want: "product", RemoteID: gid})
			return
		}
	}

	r.plan.Operations = append(r.plan.Operations, Operation{
		Kind:   OpCreateProduct,
		Handle: r.handle(),
		Parent: parent,
		Name:   spec.Code,
		Path:   path,
		Spec:   spec,
	})
	r.plan.Summary.ProductsCreated++
}

func (r *reconciler) handle() Handle {
	r.next++
	return r.next
}

func (r *reconciler) conflict(c Conflict) {
	r.plan.Conflicts = append(r.plan.Conflicts, c)
	r.plan.Summary.Conflicts++
}
