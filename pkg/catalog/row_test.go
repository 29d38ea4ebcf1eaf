package catalog

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func row(path, code string) RawRow {
	return RawRow{Line: 2, Path: path, Code: code}
}

func TestParseRow_Valid(t *testing.T) {
	r := RawRow{
		Line:        7,
		Path:        " seq01 / sh010 ",
		Code:        "comp",
		Awarded:     "2.5",
		Due:         "2024-05-01",
		Picture:     "img/a.png",
		Deliverable: "TRUE",
		Status:      "COMPLETED",
		Tags:        "fx  fx lighting",
	}

	spec, err := ParseRow(r)
	require.NoError(t, err)
	assert.Equal(t, 7, spec.Line)
	assert.Equal(t, []string{"seq01", "sh010"}, spec.Path)
	assert.Equal(t, "comp", spec.Code)
	require.True(t, spec.Awarded.Valid)
	assert.Equal(t, "2.5", spec.Awarded.Decimal.String())
	require.NotNil(t, spec.Due)
	assert.Equal(t, "2024-05-01", spec.Due.Format(DateLayout))
	assert.Equal(t, "img/a.png", spec.Picture)
	assert.True(t, spec.Deliverable)
	assert.Equal(t, StatusCompleted, spec.Status)
	assert.Equal(t, []string{"fx", "lighting"}, spec.Tags)
	assert.Equal(t, "seq01/sh010/comp", spec.FullPath())
}

func TestParseRow_Defaults(t *testing.T) {
	spec, err := ParseRow(row("a", "x"))
	require.NoError(t, err)
	assert.False(t, spec.Awarded.Valid)
	assert.Nil(t, spec.Due)
	assert.False(t, spec.Deliverable)
	assert.Equal(t, StatusActive, spec.Status)
	assert.NotNil(t, spec.Tags)
	assert.Empty(t, spec.Tags)
}

func TestParseRow_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *RawRow)
		column string
		want   error
	}{
		{"empty path", func(r *RawRow) { r.Path = "" }, ColPath, ErrMissingRequiredField},
		{"blank path", func(r *RawRow) { r.Path = "   " }, ColPath, ErrMissingRequiredField},
		{"double slash", func(r *RawRow) { r.Path = "a//b" }, ColPath, ErrEmptyPathSegment},
		{"trailing slash", func(r *RawRow) { r.Path = "a/b/" }, ColPath, ErrEmptyPathSegment},
		{"whitespace segment", func(r *RawRow) { r.Path = "a/ /b" }, ColPath, ErrEmptyPathSegment},
		{"empty code", func(r *RawRow) { r.Code = " " }, ColCode, ErrMissingRequiredField},
		{"awarded text", func(r *RawRow) { r.Awarded = "abc" }, ColAwarded, ErrInvalidNumber},
		{"awarded negative", func(r *RawRow) { r.Awarded = "-1" }, ColAwarded, ErrInvalidNumber},
		{"due wrong layout", func(r *RawRow) { r.Due = "01.05.2024" }, ColDue, ErrInvalidDate},
		{"due impossible", func(r *RawRow) { r.Due = "2024-02-30" }, ColDue, ErrInvalidDate},
		{"due single digits", func(r *RawRow) { r.Due = "2024-5-1" }, ColDue, ErrInvalidDate},
		{"deliverable yes", func(r *RawRow) { r.Deliverable = "yes" }, ColDeliverable, ErrInvalidBoolean},
		{"deliverable 1", func(r *RawRow) { r.Deliverable = "1" }, ColDeliverable, ErrInvalidBoolean},
		{"status lowercase", func(r *RawRow) { r.Status = "active" }, ColStatus, ErrInvalidStatus},
		{"status unknown", func(r *RawRow) { r.Status = "DONE" }, ColStatus, ErrInvalidStatus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := row("a/b", "x")
			tt.mutate(&r)
			_, err := ParseRow(r)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)

			var re *RowError
			require.True(t, errors.As(err, &re))
			assert.Equal(t, 2, re.Line)
			assert.Equal(t, tt.column, re.Column)
		})
	}
}

func TestParseRow_DeliverableCaseInsensitive(t *testing.T) {
	for _, v := range []string{"true", "True", "TRUE"} {
		r := row("a", "x")
		r.Deliverable = v
		spec, err := ParseRow(r)
		require.NoError(t, err, v)
		assert.True(t, spec.Deliverable, v)
	}
	r := row("a", "x")
	r.Deliverable = "false"
	spec, err := ParseRow(r)
	require.NoError(t, err)
	assert.False(t, spec.Deliverable)
}

func TestParseRow_ZeroAwardedIsValid(t *testing.T) {
	r := row("a", "x")
	r.Awarded = "0"
	spec, err := ParseRow(r)
	require.NoError(t, err)
	assert.True(t, spec.Awarded.Valid)
	assert.True(t, spec.Awarded.Decimal.IsZero())
}

func TestParseRows_StopsAtFirstError(t *testing.T) {
	rows := []RawRow{
		{Line: 2, Path: "a", Code: "1"},
		{Line: 3, Path: "a", Code: "2", Status: "nope"},
		{Line: 4, Path: "", Code: "3"},
	}
	_, err := ParseRows(rows)
	var re *RowError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, 3, re.Line)
	assert.ErrorIs(t, err, ErrInvalidStatus)
	assert.Contains(t, err.Error(), "line 3: status")
}

func TestNormalizeTags(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, NormalizeTags([]string{"c", "a", "b", "a"}))
	assert.Equal(t, []string{}, NormalizeTags(nil))
}
