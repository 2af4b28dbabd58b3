package tcpcollect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTable_LookupMissReturnsEmptyString(t *testing.T) {
	tbl := NewTable(10)
	assert.Equal(t, "", tbl.Lookup("203.0.113.1"))
}

func TestTable_SetThenLookupReturnsLatestGuess(t *testing.T) {
	tbl := NewTable(10)
	tbl.set("203.0.113.1", "linux")
	assert.Equal(t, "linux", tbl.Lookup("203.0.113.1"))

	tbl.set("203.0.113.1", "windows")
	assert.Equal(t, "windows", tbl.Lookup("203.0.113.1"), "newest sample overwrites the prior guess")
}

func TestTable_EvictsOldestIPPastCapacity(t *testing.T) {
	tbl := NewTable(2)
	tbl.set("1.1.1.1", "linux")
	tbl.set("2.2.2.2", "windows")
	tbl.set("3.3.3.3", "macos")

	assert.Equal(t, "", tbl.Lookup("1.1.1.1"), "oldest entry evicted once capacity exceeded")
	assert.Equal(t, "windows", tbl.Lookup("2.2.2.2"))
	assert.Equal(t, "macos", tbl.Lookup("3.3.3.3"))
}

func TestNewTable_NonPositiveCapacityDefaults(t *testing.T) {
	tbl := NewTable(0)
	assert.Equal(t, 50000, tbl.capacity)
}

func TestOsGuessFor_KnownAndUnknownHints(t *testing.T) {
	assert.Equal(t, "linux", osGuessFor(1))
	assert.Equal(t, "windows", osGuessFor(2))
	assert.Equal(t, "unknown", osGuessFor(255))
}

func TestFormatIPv4_LittleEndianByteOrder(t *testing.T) {
	// 1.2.3.4 little-endian-packed as a uint32 is 0x04030201.
	assert.Equal(t, "1.2.3.4", formatIPv4(0x04030201))
}

func TestCollector_HandleShortRecordIsIgnored(t *testing.T) {
	tbl := NewTable(10)
	c, err := NewCollector(tbl)
	require.NoError(t, err)

	c.handle([]byte{1, 2, 3})
	assert.Equal(t, "", tbl.Lookup("0.0.0.0"))
}

func TestCollector_HandleWellFormedRecordPopulatesTable(t *testing.T) {
	tbl := NewTable(10)
	c, err := NewCollector(tbl)
	require.NoError(t, err)

	// src_ip bytes 1,2,3,4 read little-endian pack to the same uint32
	// formatIPv4 unpacks back into "1.2.3.4"; ttl=64, window_size=65535, os_hint=1 (linux)
	raw := []byte{1, 2, 3, 4, 64, 0xff, 0xff, 1}
	c.handle(raw)

	assert.Equal(t, "linux", tbl.Lookup("1.2.3.4"))
}

func TestCollector_StartWithoutAttachedRingIsNoOp(t *testing.T) {
	tbl := NewTable(10)
	c, err := NewCollector(tbl)
	require.NoError(t, err)

	c.Start() // must return immediately in mock mode, not block or panic
}
