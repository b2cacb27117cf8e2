package checkpoint

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecoverOnEmptyDirectoryReturnsNoGenerationFound(t *testing.T) {
	dir := t.TempDir()
	m, err := New(dir, "ignite", false)
	require.NoError(t, err)

	data, found, err := m.Recover()
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, data)
}

func TestWriteThenRecoverRoundTripsUncompressed(t *testing.T) {
	dir := t.TempDir()
	m, err := New(dir, "ignite", false)
	require.NoError(t, err)

	payload := []byte("datapool bytes go here")
	path, err := m.Write(payload)
	require.NoError(t, err)
	assert.FileExists(t, path)

	got, found, err := m.Recover()
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, payload, got)
}

func TestWriteThenRecoverRoundTripsCompressed(t *testing.T) {
	dir := t.TempDir()
	m, err := New(dir, "ignite", true)
	require.NoError(t, err)

	payload := make([]byte, 4096)
	for i := range payload {
		payload[i] = byte(i % 7)
	}

	_, err = m.Write(payload)
	require.NoError(t, err)

	got, found, err := m.Recover()
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, payload, got)
}

func TestRecoverReturnsTheNewestGeneration(t *testing.T) {
	dir := t.TempDir()
	m, err := New(dir, "ignite", false)
	require.NoError(t, err)

	_, err = m.Write([]byte("generation one"))
	require.NoError(t, err)
	_, err = m.Write([]byte("generation two"))
	require.NoError(t, err)

	got, found, err := m.Recover()
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("generation two"), got)
}

func TestNewCreatesTheCheckpointDirectoryIfMissing(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "ckpt")
	_, err := New(dir, "ignite", false)
	require.NoError(t, err)
	assert.DirExists(t, dir)
}
