package mongodb

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestNormalizeRowsStringifiesBSONTypes(t *testing.T) {
	id := primitive.NewObjectID()
	ts := primitive.NewDateTimeFromTime(time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC))

	rows := []map[string]any{
		{
			"_id":       id,
			"timestamp": ts,
			"vibration": 0.42,
			"nested":    map[string]any{"when": ts},
		},
	}

	normalized := NormalizeRows(rows)

	require.Len(t, normalized, 1)
	assert.Equal(t, id.Hex(), normalized[0]["_id"])
	assert.Equal(t, "2026-03-14 09:26:53", normalized[0]["timestamp"])
	assert.Equal(t, 0.42, normalized[0]["vibration"])

	nested, ok := normalized[0]["nested"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "2026-03-14 09:26:53", nested["when"])
}

func TestNormalizeRowsIdempotent(t *testing.T) {
	rows := []map[string]any{
		{"timestamp": primitive.NewDateTimeFromTime(time.Unix(1700000000, 0)), "machine_id": "CNC-001"},
	}

	once := NormalizeRows(rows)
	first := once[0]["timestamp"]
	twice := NormalizeRows(once)

	assert.Equal(t, first, twice[0]["timestamp"], "normalizing an already-normalized row must not change it")
}
