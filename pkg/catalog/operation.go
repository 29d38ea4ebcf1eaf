package catalog

import (
	"fmt"
	"io"
	"strings"
)

type OpKind string

const (
	OpCreateGroup   OpKind = "create-group"
	OpCreateProduct OpKind = "create-product"
	OpUpdateProduct OpKind = "update-product"
)

// Handle names the future remote ID of a create operation within one plan.
// Handles start at 1.
type Handle int

// Ref points at a parent: a known remote ID, a pending create, or (zero
// value) the project root.
type Ref struct {
	ID     string
	Handle Handle
}

func (r Ref) IsRoot() bool    { return r.ID == "" && r.Handle == 0 }
func (r Ref) IsPending() bool { return r.Handle != 0 }

func (r Ref) String() string {
	switch {
	case r.IsPending():
		return fmt.Sprintf("#%d", r.Handle)
	case r.IsRoot():
		return "root"
	}
	return r.ID
}

// Operation is one pending mutation. Which fields are set depends on Kind:
// creates carry Handle and Parent, updates carry RemoteID, Changed and
// Changes. Product operations carry the row they came from in Spec.
type Operation struct {
	Kind     OpKind
	Handle   Handle
	Parent   Ref
	Name     string
	Path     []string
	Spec     ProductSpec
	RemoteID string
	Changed  FieldSet
	Changes  []Change
}

func (op Operation) String() string {
	p := strings.Join(op.Path, "/")
	switch op.Kind {
	case OpCreateGroup:
		return fmt.Sprintf("#%d create group %s (parent %s)", op.Handle, p, op.Parent)
	case OpCreateProduct:
		return fmt.Sprintf("#%d create product %s (parent %s)", op.Handle, p, op.Parent)
	case OpUpdateProduct:
		parts := make([]string, 0, len(op.Changes))
		for _, c := range op.Changes {
			parts = append(parts, fmt.Sprintf("%s: %q -> %q", c.Field, c.From, c.To))
		}
		return fmt.Sprintf("update product %s [%s] %s", p, op.RemoteID, strings.Join(parts, ", "))
	}
	return string(op.Kind)
}

// Conflict is a path whose remote entity has the other kind.
type Conflict struct {
	Path     []string
	Line     int
	Want     string
	RemoteID string
}

func (c Conflict) String() string {
	have := "group"
	if c.Want == "group" {
		have = "product"
	}
	s := fmt.Sprintf("%s: expected a %s, remote %s is a %s", strings.Join(c.Path, "/"), c.Want, c.RemoteID, have)
	if c.Line > 0 {
		s = fmt.Sprintf("line %d: %s", c.Line, s)
	}
	return s
}

type Summary struct {
	GroupsCreated     int
	GroupsExisting    int
	ProductsCreated   int
	ProductsUpdated   int
	ProductsUnchanged int
	Conflicts         int
}

// Plan is the ordered output of Reconcile. Every operation that references
// a handle appears after the operation owning that handle.
type Plan struct {
	Operations []Operation
	Conflicts  []Conflict
	Summary    Summary
}

func (p *Plan) Empty() bool { return p == nil || len(p.Operations) == 0 }

// WithoutUpdates drops update operations. Handles only belong to creates,
// so the remaining operations stay resolvable.
func (p *Plan) WithoutUpdates() *Plan {
	out := &Plan{Conflicts: p.Conflicts, Summary: p.Summary}
	for _, op := range p.Operations {
		if op.Kind != OpUpdateProduct {
			out.Operations = append(out.Operations, op)
		}
	}
	out.Summary.ProductsUpdated = 0
	return out
}

// Render writes a human-readable listing of the plan.
func (p *Plan) Render(w io.Writer) error {
	for _, c := range p.Conflicts {
		if _, err := fmt.Fprintf(w, "CONFLICT %s\n", c); err != nil {
			return err
		}
	}
	for _, op := range p.Operations {
		if _, err := fmt.Fprintln(w, op.String()); err != nil {
			return err
		}
	}
	s := p.Summary
	_, err := fmt.Fprintf(w, "groups: %d new, %d existing; products: %d new, %d updated, %d unchanged; conflicts: %d\n",
		s.GroupsCreated, s.GroupsExisting, s.ProductsCreated, s.ProductsUpdated, s.ProductsUnchanged, s.Conflicts)
	return err
}
