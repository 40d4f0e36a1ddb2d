package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	in := Cursor{CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), ID: 42}

	out, err := DecodeCursor(EncodeCursor(in))
	require.NoError(t, err)
	assert.True(t, in.CreatedAt.Equal(out.CreatedAt))
	assert.Equal(t, in.ID, out.ID)
}

func TestDecodeEmptyCursorStartsAtNewest(t *testing.T) {
	c, err := DecodeCursor("")
	require.NoError(t, err)
	assert.True(t, c.CreatedAt.After(time.Now().AddDate(100, 0, 0)))
	assert.Equal(t, int64(1<<63-1), c.ID)
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	_, err := DecodeCursor("%%%not-base64")
	assert.Error(t, err)
}

func TestClampPage(t *testing.T) {
	tests := []struct {
		name               string
		page, size, max    int
		wantPage, wantSize int
	}{
		{"defaults", 0, 0, 100, 1, DefaultPageSize},
		{"negative page", -3, 10, 100, 1, 10},
		{"clamped size", 2, 1000, 100, 2, 100},
		{"custom max", 1, 80, 50, 1, 50},
		{"within bounds", 4, 25, 100, 4, 25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, size := ClampPage(tt.page, tt.size, tt.max)
			assert.Equal(t, tt.wantPage, page)
			assert.Equal(t, tt.wantSize, size)
		})
	}
}

func TestTotalPages(t *testing.T) {
	assert.Equal(t, 0, totalPages(0, 20))
	assert.Equal(t, 1, totalPages(20, 20))
	assert.Equal(t, 2, totalPages(21, 20))
}
