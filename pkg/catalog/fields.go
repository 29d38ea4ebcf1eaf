package catalog

import (
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ProductFields is the mutable state of a product as the service stores it.
// Picture holds the thumbnail's file name, not a local path.
type ProductFields struct {
	Awarded     decimal.NullDecimal
	Due         *time.Time
	Picture     string
	Deliverable bool
	Status      Status
	Tags        []string
}

// FieldSet is a bitmask over the updatable product fields.
type FieldSet uint8

const (
	FieldAwarded FieldSet = 1 << iota
	FieldDue
	FieldPicture
	FieldDeliverable
	FieldStatus
	FieldTags
)

var fieldNames = []struct {
	f    FieldSet
	name string
}{
	{FieldAwarded, ColAwarded},
	{FieldDue, ColDue},
	{FieldPicture, ColPicture},
	{FieldDeliverable, ColDeliverable},
	{FieldStatus, ColStatus},
	{FieldTags, ColTags},
}

func (s FieldSet) Has(f FieldSet) bool { return s&f != 0 }

// Names lists the set fields in column order.
func (s FieldSet) Names() []string {
	var out []string
	for _, fn := range fieldNames {
		if s.Has(fn.f) {
			out = append(out, fn.name)
		}
	}
	return out
}

func (s FieldSet) String() string { return strings.Join(s.Names(), ",") }

// Change describes one differing field for display.
type Change struct {
	Field string
	From  string
	To    string
}

// Diff compares the desired fields against the remote ones. An empty
// desired picture leaves the remote thumbnail alone.
func Diff(want, have ProductFields) (FieldSet, []Change) {
	var set FieldSet
	var changes []Change
	add := func(f FieldSet, name, from, to string) {
		set |= f
		changes = append(changes, Change{Field: name, From: from, To: to})
	}

	if !decimalEqual(want.Awarded, have.Awarded) {
		add(FieldAwarded, ColAwarded, formatDecimal(have.Awarded), formatDecimal(want.Awarded))
	}
	if !dateEqual(want.Due, have.Due) {
		add(FieldDue, ColDue, formatDate(have.Due), formatDate(want.Due))
	}
	if want.Picture != "" && want.Picture != have.Picture {
		add(FieldPicture, ColPicture, have.Picture, want.Picture)
	}
	if want.Deliverable != have.Deliverable {
		add(FieldDeliverable, ColDeliverable, strconv.FormatBool(have.Deliverable), strconv.FormatBool(want.Deliverable))
	}
	if want.Status != have.Status {
		add(FieldStatus, ColStatus, string(have.Status), string(want.Status))
	}
	wantTags, haveTags := NormalizeTags(want.Tags), NormalizeTags(have.Tags)
	if !stringsEqual(wantTags, haveTags) {
		add(FieldTags, ColTags, strings.Join(haveTags, " "), strings.Join(wantTags, " "))
	}
	return set, changes
}

// PictureName is the file name a picture is uploaded under.
func PictureName(picture string) string {
	if picture == "" {
		return ""
	}
	return path.Base(filepath.ToSlash(picture))
}

// decimalEqual treats a missing value as zero; the service stores an
// unestimated product as 0.
func decimalEqual(a, b decimal.NullDecimal) bool {
	return orZero(a).Equal(orZero(b))
}

func orZero(d decimal.NullDecimal) decimal.Decimal {
	if !d.Valid {
		return decimal.Zero
	}
	return d.Decimal
}

func dateEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Format(DateLayout) == b.Format(DateLayout)
}

func formatDecimal(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.String()
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(DateLayout)
}

func stringsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
