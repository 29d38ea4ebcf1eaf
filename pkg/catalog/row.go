package catalog

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the only accepted format of the due column.
const DateLayout = "2006-01-02"

// Column names of the import file, in their required order.
const (
	ColPath        = "path"
	ColCode        = "code"
	ColAwarded     = "awarded"
	ColDue         = "due"
	ColPicture     = "picture"
	ColDeliverable = "deliverable"
	ColStatus      = "status"
	ColTags        = "tags"
)

// Columns lists the header of an import file.
var Columns = []string{ColPath, ColCode, ColAwarded, ColDue, ColPicture, ColDeliverable, ColStatus, ColTags}

type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusCompleted Status = "COMPLETED"
	StatusCanceled  Status = "CANCELED"
)

// ParseStatus is case-sensitive. The empty string maps to ACTIVE.
func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case "":
		return StatusActive, true
	case StatusActive, StatusCompleted, StatusCanceled:
		return Status(s), true
	}
	return "", false
}

// RawRow is one data row of the import file, cells as read.
type RawRow struct {
	Line        int
	Path        string
	Code        string
	Awarded     string
	Due         string
	Picture     string
	Deliverable string
	Status      string
	Tags        string
}

// ProductSpec is a validated row.
type ProductSpec struct {
	Line        int
	Path        []string
	Code        string
	Awarded     decimal.NullDecimal
	Due         *time.Time
	Picture     string
	Deliverable bool
	Status      Status
	Tags        []string
}

// Fields returns the state the remote product should end up in.
func (s ProductSpec) Fields() ProductFields {
	return ProductFields{
		Awarded:     s.Awarded,
		Due:         s.Due,
		Picture:     PictureName(s.Picture),
		Deliverable: s.Deliverable,
		Status:      s.Status,
		Tags:        s.Tags,
	}
}

// FullPath is the group path followed by the product code.
func (s ProductSpec) FullPath() string {
	return strings.Join(append(append([]string(nil), s.Path...), s.Code), "/")
}

// ParseRow validates a single row. It performs no I/O.
func ParseRow(r RawRow) (ProductSpec, error) {
	spec := ProductSpec{Line: r.Line}

	path := strings.TrimSpace(r.Path)
	if path == "" {
		return spec, rowErr(r.Line, ColPath, "", ErrMissingRequiredField)
	}
	for _, seg := range strings.Split(path, "/") {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			return spec, rowErr(r.Line, ColPath, r.Path, ErrEmptyPathSegment)
		}
		spec.Path = append(spec.Path, seg)
	}

	spec.Code = strings.TrimSpace(r.Code)
	if spec.Code == "" {
		return spec, rowErr(r.Line, ColCode, "", ErrMissingRequiredField)
	}

	if v := strings.TrimSpace(r.Awarded); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil || d.IsNegative() {
			return spec, rowErr(r.Line, ColAwarded, r.Awarded, ErrInvalidNumber)
		}
		spec.Awarded = decimal.NullDecimal{Decimal: d, Valid: true}
	}

	if v := strings.TrimSpace(r.Due); v != "" {
		t, err := time.Parse(DateLayout, v)
		if err != nil {
			return spec, rowErr(r.Line, ColDue, r.Due, ErrInvalidDate)
		}
		spec.Due = &t
	}

	spec.Picture = strings.TrimSpace(r.Picture)

	switch v := strings.TrimSpace(r.Deliverable); strings.ToUpper(v) {
	case "":
	case "TRUE":
		spec.Deliverable = true
	case "FALSE":
	default:
		return spec, rowErr(r.Line, ColDeliverable, r.Deliverable, ErrInvalidBoolean)
	}

	status, ok := ParseStatus(strings.TrimSpace(r.Status))
	if !ok {
		return spec, rowErr(r.Line, ColStatus, r.Status, ErrInvalidStatus)
	}
	spec.Status = status

	spec.Tags = NormalizeTags(strings.Fields(r.Tags))
	return spec, nil
}

// ParseRows stops at the first invalid row.
func ParseRows(rows []RawRow) ([]ProductSpec, error) {
	specs := make([]ProductSpec, 0, len(rows))
	for _, r := range rows {
		spec, err := ParseRow(r)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// NormalizeTags returns the tags as a sorted set. Nil and empty input
// both yield an empty, non-nil slice.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
