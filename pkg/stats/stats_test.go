package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersAccumulate(t *testing.T) {
	s := NewService("testService")
	s.RecordCounter("Sent", 1)
	s.RecordCounter("Sent", 2)
	s.SetCounter("Failed", 7)

	doc := s.Snapshot()
	assert.Equal(t, "testService", doc["name"])

	counters := doc["counters"].(map[string]interface{})
	assert.Equal(t, int64(3), counters["Sent"])
	assert.Equal(t, int64(7), counters["Failed"])
}

func TestValueSeries(t *testing.T) {
	s := NewService("testService")
	s.RecordValue("fileSizeStore", 10)
	s.RecordValue("fileSizeStore", 30)

	doc := s.Snapshot()
	values := doc["values"].(map[string]interface{})
	record, ok := values["fileSizeStore"].(map[string]interface{})
	require.True(t, ok)

	assert.Equal(t, int64(2), record["count"])
	assert.Equal(t, 10.0, record["min"])
	assert.Equal(t, 30.0, record["max"])
	assert.Equal(t, 20.0, record["mean"])
	assert.Equal(t, 40.0, record["total"])
}

func TestEmptySnapshotHasOnlyName(t *testing.T) {
	doc := NewService("empty").Snapshot()
	assert.Equal(t, "empty", doc["name"])
	_, hasCounters := doc["counters"]
	_, hasValues := doc["values"]
	assert.False(t, hasCounters)
	assert.False(t, hasValues)
}
