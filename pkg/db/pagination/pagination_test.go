package pagination_test

import (
	"fmt"
	"testing"

	"github.com/flowforge/flowforge/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type row struct {
	id string
}

func rows(n int) []*row {
	out := make([]*row, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, &row{id: fmt.Sprintf("row-%d", i)})
	}
	return out
}

func TestBuildCursorPageInfo(t *testing.T) {
	extract := func(r *row) string { return r.id }

	t.Run("empty page", func(t *testing.T) {
		info := pagination.BuildCursorPageInfo(nil, 5, extract)
		assert.False(t, info.HasMore)
		assert.Empty(t, info.NextPageToken)
	})

	t.Run("full page with overflow row", func(t *testing.T) {
		info := pagination.BuildCursorPageInfo(rows(6), 5, extract)
		assert.True(t, info.HasMore)
		// The token points at the last served row, not the overflow row.
		assert.Equal(t, "row-4", info.NextPageToken)
	})

	t.Run("short final page", func(t *testing.T) {
		info := pagination.BuildCursorPageInfo(rows(3), 5, extract)
		assert.False(t, info.HasMore)
		assert.Equal(t, "row-2", info.NextPageToken)
	})
}

func TestCursorRoundTrip(t *testing.T) {
	token, err := pagination.EncodeCursor(pagination.Cursor{ID: "1234567890"})
	require.NoError(t, err)
	require.NotEmpty(t, token)

	cursor, err := pagination.DecodeCursor(token)
	require.NoError(t, err)
	assert.Equal(t, "1234567890", cursor.ID)

	_, err = pagination.DecodeCursor("not base64!!!")
	assert.Error(t, err)
}
