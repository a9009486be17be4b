package services

import (
	"testing"
	"time"

	"github.com/dmitrijs2005/bizsync/internal/client/models"
	"github.com/stretchr/testify/assert"
)

func mk(id string, updated time.Time, fields map[string]any) *models.Record {
	r := models.NewRecord(fields)
	r.ID = id
	r.UpdatedAt = updated
	return r
}

func TestApplyListOptions(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	recs := []*models.Record{
		mk("a", base, map[string]any{"status": "paid", "total": 30.0}),
		mk("b", base.Add(time.Hour), map[string]any{"status": "draft", "total": 10.0}),
		mk("c", base.Add(2*time.Hour), map[string]any{"status": "paid", "total": 20.0}),
	}

	tests := []struct {
		name string
		opts ListOptions
		want []string
	}{
		{"default newest first", ListOptions{}, []string{"c", "b", "a"}},
		{"where", ListOptions{Where: map[string]any{"status": "paid"}}, []string{"c", "a"}},
		{"sort asc by number", ListOptions{SortBy: "total", Asc: true}, []string{"b", "c", "a"}},
		{"limit offset", ListOptions{Limit: 1, Offset: 1}, []string{"b"}},
		{"offset past end", ListOptions{Offset: 5}, []string{}},
		{"where missing field", ListOptions{Where: map[string]any{"nope": 1.0}}, []string{}},
		{"where number", ListOptions{Where: map[string]any{"total": 10.0}}, []string{"b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := applyListOptions(recs, tt.opts)
			assert.Equal(t, tt.want, ids(got))
		})
	}
	assert.Equal(t, "a", recs[0].ID, "input is not reordered")
}

func TestCompareValues(t *testing.T) {
	assert.Equal(t, 0, compareValues(nil, nil))
	assert.Equal(t, -1, compareValues(nil, 1.0))
	assert.Equal(t, -1, compareValues(1, 2.5))
	assert.Equal(t, 1, compareValues(true, false))
	assert.Equal(t, -1, compareValues("a", "b"))
}

func TestPolicies(t *testing.T) {
	own := models.NewRecord(map[string]any{models.FieldCreatedBy: "u-cash", models.FieldCompanyID: "c1"})
	theirs := models.NewRecord(map[string]any{models.FieldCreatedBy: "u-x", models.FieldCompanyID: "c1"})
	foreign := models.NewRecord(map[string]any{models.FieldCompanyID: "c2"})

	p := DefaultPolicy()
	assert.True(t, p.Allow(cashierSession, own))
	assert.False(t, p.Allow(cashierSession, theirs))
	assert.False(t, p.Allow(adminSession, foreign))
	assert.True(t, p.Allow(adminSession, theirs))
	assert.True(t, AllowAll.Allow(cashierSession, foreign))

	assert.Len(t, Filter(p, cashierSession, []*models.Record{own, theirs, foreign}), 1)
}
