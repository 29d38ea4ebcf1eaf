package catalog

import (
	"fmt"
	"strings"
)

// NodeID indexes Tree.Nodes.
type NodeID int

const (
	RootID   NodeID = 0
	NoParent NodeID = -1
)

// GroupNode is one distinct path prefix. Children and Products keep
// first-appearance order.
type GroupNode struct {
	Name     string
	Parent   NodeID
	Children []NodeID
	Products []int

	childIndex map[string]NodeID
}

// ProductEntity is a product attached to the group holding it.
type ProductEntity struct {
	Group NodeID
	Spec  ProductSpec
}

// Tree is an arena of groups rooted at a nameless sentinel.
type Tree struct {
	Nodes    []GroupNode
	Products []ProductEntity
}

func newTree() *Tree {
	return &Tree{Nodes: []GroupNode{{Parent: NoParent, childIndex: map[string]NodeID{}}}}
}

// Build folds the specs into a tree, sharing common path prefixes.
func Build(specs []ProductSpec) (*Tree, error) {
	t := newTree()
	firstLine := make(map[NodeID]map[string]int)

	for _, spec := range specs {
		id := RootID
		for _, seg := range spec.Path {
			id = t.child(id, seg)
		}

		codes := firstLine[id]
		if codes == nil {
			codes = make(map[string]int)
			firstLine[id] = codes
		}
		if line, dup := codes[spec.Code]; dup {
			e := rowErr(spec.Line, ColCode, spec.Code, ErrDuplicateProductCode)
			e.Detail = fmt.Sprintf("first defined on line %d", line)
			return nil, e
		}
		codes[spec.Code] = spec.Line

		t.Nodes[id].Products = append(t.Nodes[id].Products, len(t.Products))
		t.Products = append(t.Products, ProductEntity{Group: id, Spec: spec})
	}

	// Groups and products share one namespace per parent on the service.
	for _, p := range t.Products {
		if _, clash := t.Nodes[p.Group].childIndex[p.Spec.Code]; clash {
			e := rowErr(p.Spec.Line, ColCode, p.Spec.Code, ErrCodeConflict)
			e.Detail = fmt.Sprintf("group %q exists at the same level", strings.Join(append(t.Path(p.Group), p.Spec.Code), "/"))
			return nil, e
		}
	}
	return t, nil
}

func (t *Tree) child(parent NodeID, name string) NodeID {
	if id, ok := t.Nodes[parent].childIndex[name]; ok {
		return id
	}
	id := NodeID(len(t.Nodes))
	t.Nodes = append(t.Nodes, GroupNode{Name: name, Parent: parent, childIndex: map[string]NodeID{}})
	t.Nodes[parent].childIndex[name] = id
	t.Nodes[parent].Children = append(t.Nodes[parent].Children, id)
	return id
}

// Child looks up a direct child group by name.
func (t *Tree) Child(parent NodeID, name string) (NodeID, bool) {
	if !t.valid(parent) {
		return 0, false
	}
	id, ok := t.Nodes[parent].childIndex[name]
	return id, ok
}

// lookup resolves a full group path from the root.
func (t *Tree) lookup(path ...string) (NodeID, bool) {
	id := RootID
	for _, seg := range path {
		var ok bool
		if id, ok = t.Child(id, seg); !ok {
			return 0, false
		}
	}
	return id, true
}

// Path returns the segments leading to id. The root has an empty path.
func (t *Tree) Path(id NodeID) []string {
	var segs []string
	for n := 0; t.valid(id) && id != RootID && n < len(t.Nodes); n++ {
		segs = append(segs, t.Nodes[id].Name)
		id = t.Nodes[id].Parent
	}
	for i, j := 0, len(segs)-1; i < j; i, j = i+1, j-1 {
		segs[i], segs[j] = segs[j], segs[i]
	}
	return segs
}

// GroupCount excludes the root.
func (t *Tree) GroupCount() int { return len(t.Nodes) - 1 }

// Walk visits groups depth-first in pre-order, root excluded.
func (t *Tree) Walk(fn func(id NodeID, depth int) error) error {
	var visit func(id NodeID, depth int) error
	visit = func(id NodeID, depth int) error {
		for _, c := range t.Nodes[id].Children {
			if err := fn(c, depth); err != nil {
				return err
			}
			if err := visit(c, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	return visit(RootID, 0)
}

// String renders the tree as an indented outline.
func (t *Tree) String() string {
	var b strings.Builder
	writeProducts := func(id NodeID, depth int) {
		for _, pi := range t.Nodes[id].Products {
			fmt.Fprintf(&b, "%s- %s\n", strings.Repeat("  ", depth), t.Products[pi].Spec.Code)
		}
	}
	writeProducts(RootID, 0)
	_ = t.Walk(func(id NodeID, depth int) error {
		fmt.Fprintf(&b, "%s%s/\n", strings.Repeat("  ", depth), t.Nodes[id].Name)
		writeProducts(id, depth+1)
		return nil
	})
	return b.String()
}

func (t *Tree) valid(id NodeID) bool {
	return id >= 0 && int(id) < len(t.Nodes)
}
