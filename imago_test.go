package imago

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/imago/storage"
)

func TestNewSystemRequiresDSN(t *testing.T) {
	_, err := NewSystem(context.Background(), Config{})
	assert.Error(t, err)
}

func TestCollectionSpec(t *testing.T) {
	spec := CollectionSpec("vector", 1152)
	assert.Equal(t, "vector", spec.Name)
	assert.Equal(t, 1152, spec.Dimension)
	require.Len(t, spec.Fields, 1)
	assert.Equal(t, "file_name", spec.Fields[0].Name)
	assert.Equal(t, storage.FieldTypeVarchar, spec.Fields[0].Type)
	assert.Equal(t, 255, spec.Fields[0].MaxLen)
}

func TestIndexItemFromRow(t *testing.T) {
	item, err := indexItemFromRow("abc", []float32{0.1, 0.2}, map[string]any{"file_name": "cat.png"})
	require.NoError(t, err)
	assert.Equal(t, "abc", item.ID)
	assert.Equal(t, "cat.png", item.FileName)
	assert.Equal(t, []float32{0.1, 0.2}, item.Vector)
}

func TestIndexItemFromRowMissingField(t *testing.T) {
	item, err := indexItemFromRow("abc", nil, map[string]any{})
	require.NoError(t, err)
	assert.Empty(t, item.FileName)
}
