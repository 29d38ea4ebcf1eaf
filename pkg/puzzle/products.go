package puzzle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"path"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"github.com/sw33tLie/puzzleimport/pkg/catalog"
	"github.com/sw33tLie/puzzleimport/pkg/whttp"
)

const (
	KindGroup   = "GROUP"
	KindProduct = "PRODUCT"
)

// descendantsBatch bounds the parentIds sent in one productDescendants call.
const descendantsBatch = 50

// FetchSnapshot walks the project level by level, asking for the direct
// children of every group found on the previous level.
func (c *Client) FetchSnapshot(ctx context.Context, projectID string) ([]catalog.RemoteGroup, []catalog.RemoteProduct, error) {
	var (
		groups   []catalog.RemoteGroup
		products []catalog.RemoteProduct
	)
	seen := make(map[string]bool)
	level := [][]string{{}}

	for len(level) > 0 {
		var next []string
		for _, parents := range level {
			items, err := c.descendants(ctx, projectID, parents)
			if err != nil {
				return nil, nil, err
			}
			for _, it := range items {
				id := it.Get("id").String()
				if id == "" || seen[id] {
					continue
				}
				seen[id] = true
				if it.Get("kind").String() == KindGroup {
					groups = append(groups, catalog.RemoteGroup{ID: id, ParentID: it.Get("parentId").String(), Name: it.Get("code").String()})
					next = append(next, id)
					continue
				}
				products = append(products, parseProduct(it))
			}
		}
		level = chunk(next, descendantsBatch)
	}
	return groups, products, nil
}

func (c *Client) descendants(ctx context.Context, projectID string, parentIDs []string) ([]gjson.Result, error) {
	data, err := c.do(ctx, "ProductDescendants", productDescendantsQuery, map[string]interface{}{
		"projectId": projectID,
		"parentIds": parentIDs,
		"depth":     1,
	})
	if err != nil {
		return nil, err
	}
	return data.Get("productDescendants").Array(), nil
}

func parseProduct(it gjson.Result) catalog.RemoteProduct {
	p := catalog.RemoteProduct{
		ID:      it.Get("id").String(),
		GroupID: it.Get("parentId").String(),
		Code:    it.Get("code").String(),
	}
	f := &p.Fields
	f.Status = catalog.Status(it.Get("status").String())
	f.Deliverable = it.Get("deliverable").Bool()

	if est := it.Get("estimation"); est.Exists() && est.Type != gjson.Null {
		if d, err := decimal.NewFromString(est.String()); err == nil {
			f.Awarded = decimal.NewNullDecimal(d)
		}
	}
	if due := it.Get("dueDate").String(); len(due) >= len(catalog.DateLayout) {
		if t, err := parseDate(due[:len(catalog.DateLayout)]); err == nil {
			f.Due = &t
		}
	}
	tags := []string{}
	for _, t := range it.Get("tags").Array() {
		tags = append(tags, t.String())
	}
	f.Tags = catalog.NormalizeTags(tags)

	if name := it.Get("thumbnail.name").String(); name != "" {
		f.Picture = name
	} else if raw := it.Get("thumbnail.url").String(); raw != "" {
		if u, err := url.Parse(raw); err == nil {
			f.Picture = path.Base(u.Path)
		}
	}
	return p
}

// CreateGroup creates a group below parentID ("" for the project root).
// Creates are not replayed on server errors, since the first attempt may
// have succeeded.
func (c *Client) CreateGroup(ctx context.Context, projectID, parentID, name string) (string, error) {
	ctx = whttp.NonIdempotent(ctx)
	data, err := c.do(ctx, "ProductCreate", productCreateMutation, map[string]interface{}{
		"input": groupInput(projectID, parentID, name),
	})
	if err != nil {
		return "", err
	}
	return createdID(data)
}

// CreateProduct creates a product, uploading its picture when it has one.
// spec.Picture must be a readable path.
func (c *Client) CreateProduct(ctx context.Context, projectID, parentID string, spec catalog.ProductSpec) (string, error) {
	ctx = whttp.NonIdempotent(ctx)
	vars := map[string]interface{}{"input": productInput(projectID, parentID, spec)}

	var (
		data gjson.Result
		err  error
	)
	if spec.Picture != "" {
		data, err = c.doUpload(ctx, "ProductCreate", productCreateMutation, vars, "variables.input.thumbnail", spec.Picture)
	} else {
		data, err = c.do(ctx, "ProductCreate", productCreateMutation, vars)
	}
	if err != nil {
		return "", err
	}
	return createdID(data)
}

// UpdateProduct sends only the changed fields of spec.
func (c *Client) UpdateProduct(ctx context.Context, projectID, productID string, spec catalog.ProductSpec, changed catalog.FieldSet) error {
	vars := map[string]interface{}{
		"projectId":  projectID,
		"productIds": []string{productID},
		"change":     productChange(spec, changed),
	}
	var err error
	if changed.Has(catalog.FieldPicture) && spec.Picture != "" {
		_, err = c.doUpload(ctx, "ProductsUpdate", productsUpdateMutation, vars, "variables.change.thumbnail", spec.Picture)
	} else {
		_, err = c.do(ctx, "ProductsUpdate", productsUpdateMutation, vars)
	}
	return err
}

// Payload renders the GraphQL variables an operation would send. parentID
// is the resolved parent for creates.
func (c *Client) Payload(projectID, parentID string, op catalog.Operation) ([]byte, error) {
	var vars map[string]interface{}
	switch op.Kind {
	case catalog.OpCreateGroup:
		vars = map[string]interface{}{"input": groupInput(projectID, parentID, op.Name)}
	case catalog.OpCreateProduct:
		in := productInput(projectID, parentID, op.Spec)
		if op.Spec.Picture != "" {
			in["thumbnail"] = "<upload " + catalog.PictureName(op.Spec.Picture) + ">"
		}
		vars = map[string]interface{}{"input": in}
	case catalog.OpUpdateProduct:
		change := productChange(op.Spec, op.Changed)
		if _, ok := change["thumbnail"]; ok {
			change["thumbnail"] = "<upload " + catalog.PictureName(op.Spec.Picture) + ">"
		}
		vars = map[string]interface{}{"projectId": projectID, "productIds": []string{op.RemoteID}, "change": change}
	default:
		return nil, fmt.Errorf("unknown operation kind %q", op.Kind)
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(vars); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func groupInput(projectID, parentID, name string) map[string]interface{} {
	return map[string]interface{}{
		"projectId": projectID,
		"parentId":  nullable(parentID),
		"code":      name,
		"kind":      KindGroup,
		"tags":      []string{},
	}
}

func productInput(projectID, parentID string, spec catalog.ProductSpec) map[string]interface{} {
	tags := spec.Tags
	if tags == nil {
		tags = []string{}
	}
	return map[string]interface{}{
		"projectId":   projectID,
		"parentId":    nullable(parentID),
		"code":        spec.Code,
		"kind":        KindProduct,
		"status":      string(spec.Status),
		"dueDate":     formatDate(spec),
		"estimation":  estimation(spec.Awarded),
		"deliverable": spec.Deliverable,
		"tags":        tags,
		"thumbnail":   nil,
	}
}

func productChange(spec catalog.ProductSpec, changed catalog.FieldSet) map[string]interface{} {
	ch := map[string]interface{}{}
	if changed.Has(catalog.FieldStatus) {
		ch["status"] = string(spec.Status)
	}
	if changed.Has(catalog.FieldDue) {
		ch["dueDate"] = formatDate(spec)
	}
	if changed.Has(catalog.FieldAwarded) {
		ch["estimation"] = estimation(spec.Awarded)
	}
	if changed.Has(catalog.FieldDeliverable) {
		ch["deliverable"] = spec.Deliverable
	}
	if changed.Has(catalog.FieldPicture) {
		ch["thumbnail"] = nil
	}
	if changed.Has(catalog.FieldTags) {
		tags := spec.Tags
		if tags == nil {
			tags = []string{}
		}
		ch["tags"] = map[string]interface{}{"set": tags}
	}
	return ch
}

func createdID(data gjson.Result) (string, error) {
	id := data.Get("productCreate.id").String()
	if id == "" {
		return "", fmt.Errorf("productCreate: %w: missing id", ErrInvalidPayload)
	}
	return id, nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// estimation sends an empty awarded value as 0, which the service treats as
// "not estimated".
func estimation(d decimal.NullDecimal) json.Number {
	if !d.Valid {
		return json.Number("0")
	}
	return json.Number(d.Decimal.String())
}

// formatDate sends the due day as midnight UTC.
func formatDate(spec catalog.ProductSpec) interface{} {
	if spec.Due == nil {
		return nil
	}
	d := spec.Due
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC).Format(time.RFC3339)
}

func chunk(ids []string, size int) [][]string {
	var out [][]string
	for len(ids) > 0 {
		n := size
		if len(ids) < n {
			n = len(ids)
		}
		out = append(out, ids[:n])
		ids = ids[n:]
	}
	return out
}

func parseDate(s string) (time.Time, error) {
	return time.Parse(catalog.DateLayout, s)
}
