package migrations

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilesUpAscending(t *testing.T) {
	files, err := Files("up")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"0001_create_products.up.sql",
		"0002_create_stock_movements.up.sql",
		"0003_create_orders.up.sql",
		"0004_create_outbox_events.up.sql",
	}, files)
}

func TestFilesDownDescending(t *testing.T) {
	files, err := Files("down")
	require.NoError(t, err)

	require.Len(t, files, 4)
	assert.Equal(t, "0004_create_outbox_events.down.sql", files[0])
	assert.Equal(t, "0001_create_products.down.sql", files[3])
}

func TestFilesRejectsUnknownDirection(t *testing.T) {
	_, err := Files("sideways")
	assert.Error(t, err)
}
