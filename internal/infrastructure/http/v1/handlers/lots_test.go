package handlers

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"stockledger/internal/core/id"
)

func TestNearExpiryScope_IncludesWindow(t *testing.T) {
	warehouseID := id.New()

	// Different horizons must never share a snapshot.
	assert.NotEqual(t, nearExpiryScope(nil, 7), nearExpiryScope(nil, 90))
	assert.NotEqual(t, nearExpiryScope(&warehouseID, 7), nearExpiryScope(&warehouseID, 90))

	// Neither must a warehouse-scoped query and an unscoped one.
	assert.NotEqual(t, nearExpiryScope(nil, 7), nearExpiryScope(&warehouseID, 7))

	assert.Equal(t, "all:30", nearExpiryScope(nil, 30))
	assert.Equal(t, warehouseID.String()+":7", nearExpiryScope(&warehouseID, 7))
}
