package recordsv1

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccessors(t *testing.T) {
	s, err := NewStruct(map[string]any{
		KeyCollection: "invoices",
		KeyRecord:     map[string]any{"id": "srv_1", "total": 5.0},
		KeyRecords:    []any{map[string]any{"id": "a"}, "skip", map[string]any{"id": "b"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "invoices", String(s, KeyCollection))
	assert.Equal(t, "", String(s, "missing"))
	assert.Equal(t, map[string]any{"id": "srv_1", "total": 5.0}, Object(s, KeyRecord))
	assert.Nil(t, Object(s, KeyCollection))

	list := Objects(s, KeyRecords)
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[1]["id"])

	assert.Nil(t, Objects(nil, KeyRecords))
	assert.Equal(t, "", String(nil, KeyID))
}

func TestNewStruct_RejectsUnsupported(t *testing.T) {
	_, err := NewStruct(map[string]any{"ch": make(chan int)})
	require.Error(t, err)
}
