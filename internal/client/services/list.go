package services

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dmitrijs2005/bizsync/internal/client/models"
)

// ListOptions filters and pages GetAll results. The zero value lists
// everything, newest update first.
type ListOptions struct {
	// Where keeps records whose fields equal every given value.
	Where map[string]any
	// SortBy is a field name; empty means updatedAt.
	SortBy string
	// Asc sorts ascending; the default is descending.
	Asc    bool
	Limit  int
	Offset int
}

func applyListOptions(recs []*models.Record, o ListOptions) []*models.Record {
	out := recs[:0:0]
	for _, r := range recs {
		if matches(r, o.Where) {
			out = append(out, r)
		}
	}

	key := o.SortBy
	if key == "" {
		key = models.FieldUpdatedAt
	}
	slices.SortStableFunc(out, func(a, b *models.Record) int {
		av, _ := a.Get(key)
		bv, _ := b.Get(key)
		c := compareValues(av, bv)
		if c == 0 {
			c = strings.Compare(a.ID, b.ID)
		}
		if !o.Asc {
			c = -c
		}
		return c
	})

	if o.Offset > 0 {
		if o.Offset >= len(out) {
			return []*models.Record{}
		}
		out = out[o.Offset:]
	}
	if o.Limit > 0 && o.Limit < len(out) {
		out = out[:o.Limit]
	}
	return out
}

func matches(r *models.Record, where map[string]any) bool {
	for k, want := range where {
		got, ok := r.Get(k)
		if !ok || compareValues(got, want) != 0 {
			return false
		}
	}
	return true
}

// compareValues orders nil first, then numbers, times, booleans and
// strings; other values compare by their printed form.
func compareValues(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			return cmp.Compare(af, bf)
		}
	}
	if at, ok := a.(time.Time); ok {
		if bt, ok := b.(time.Time); ok {
			return at.Compare(bt)
		}
	}
	if ab, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok {
			switch {
			case ab == bb:
				return 0
			case !ab:
				return -1
			default:
				return 1
			}
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	default:
		return 0, false
	}
}
