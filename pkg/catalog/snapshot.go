package catalog

import "context"

// RemoteGroup is a group as the service reports it. ParentID is empty for
// groups at the project root.
type RemoteGroup struct {
	ID       string
	ParentID string
	Name     string
}

// RemoteProduct is a product as the service reports it.
type RemoteProduct struct {
	ID      string
	GroupID string
	Code    string
	Fields  ProductFields
}

// SnapshotSource fetches the current contents of a project.
type SnapshotSource interface {
	FetchSnapshot(ctx context.Context, projectID string) ([]RemoteGroup, []RemoteProduct, error)
}

type childKey struct {
	parent string
	name   string
}

// Snapshot indexes remote state for constant-time lookups. It is not
// modified after construction.
type Snapshot struct {
	groups   map[childKey]string
	products map[childKey]RemoteProduct
}

// NewSnapshot indexes the given entities. When the service reports the same
// key twice the first entry wins.
func NewSnapshot(groups []RemoteGroup, products []RemoteProduct) *Snapshot {
	s := &Snapshot{
		groups:   make(map[childKey]string, len(groups)),
		products: make(map[childKey]RemoteProduct, len(products)),
	}
	for _, g := range groups {
		k := childKey{g.ParentID, g.Name}
		if _, ok := s.groups[k]; !ok {
			s.groups[k] = g.ID
		}
	}
	for _, p := range products {
		k := childKey{p.GroupID, p.Code}
		if _, ok := s.products[k]; !ok {
			s.products[k] = p
		}
	}
	return s
}

// LoadSnapshot fetches and indexes a project. An empty project is not an
// error; source errors are returned unchanged.
func LoadSnapshot(ctx context.Context, src SnapshotSource, projectID string) (*Snapshot, error) {
	groups, products, err := src.FetchSnapshot(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return NewSnapshot(groups, products), nil
}

// Group finds a group by parent remote ID ("" for the root) and name.
func (s *Snapshot) Group(parentID, name string) (string, bool) {
	if s == nil {
		return "", false
	}
	id, ok := s.groups[childKey{parentID, name}]
	return id, ok
}

// Product finds a product by its group's remote ID and code.
func (s *Snapshot) Product(groupID, code string) (RemoteProduct, bool) {
	if s == nil {
		return RemoteProduct{}, false
	}
	p, ok := s.products[childKey{groupID, code}]
	return p, ok
}

func (s *Snapshot) Len() (groups, products int) {
	if s == nil {
		return 0, 0
	}
	return len(s.groups), len(s.products)
}
