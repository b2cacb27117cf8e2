package seginfo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateNameRoundTripsThroughParseSegmentID(t *testing.T) {
	name := GenerateName(42, "segment")
	id, err := ParseSegmentID(name, "segment")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), id)
}

func TestGenerateNamePadsTheSequenceNumber(t *testing.T) {
	name := GenerateName(7, "segment")
	assert.Contains(t, name, "segment_00007_")
}

func TestParseSegmentIDRejectsWrongPrefix(t *testing.T) {
	_, err := ParseSegmentID("backup_00001_123.seg", "segment")
	assert.Error(t, err)
}

func TestParseSegmentIDRejectsMalformedFilename(t *testing.T) {
	_, err := ParseSegmentID("segment_notanumber.seg", "segment")
	assert.Error(t, err)
}

func TestGetLastSegmentNameReturnsEmptyOnNoMatches(t *testing.T) {
	dir := t.TempDir()
	name, err := GetLastSegmentName(dir, ".", "segment")
	require.NoError(t, err)
	assert.Empty(t, name)
}

func TestGetLastSegmentNamePicksTheHighestSequenceID(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "segment_00001_1000.seg"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "segment_00002_2000.seg"), []byte("b"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "segment_00010_3000.seg"), []byte("c"), 0o644))

	name, err := GetLastSegmentName(dir, ".", "segment")
	require.NoError(t, err)
	assert.Contains(t, name, "segment_00010_3000.seg")
}

func TestGetLastSegmentInfoBootstrapsToIDOneOnEmptyDirectory(t *testing.T) {
	dir := t.TempDir()
	id, info, err := GetLastSegmentInfo(dir, ".", "segment")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), id)
	assert.Nil(t, info)
}

func TestGetLastSegmentInfoRejectsEmptyArguments(t *testing.T) {
	_, _, err := GetLastSegmentInfo("", ".", "segment")
	assert.Error(t, err)

	_, _, err = GetLastSegmentInfo(t.TempDir(), "", "segment")
	assert.Error(t, err)

	_, _, err = GetLastSegmentInfo(t.TempDir(), ".", "")
	assert.Error(t, err)
}

func TestGetLastSegmentInfoResolvesTheNewestSegmentsMetadata(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "segment_00003_999.seg")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	id, info, err := GetLastSegmentInfo(dir, ".", "segment")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), id)
	require.NotNil(t, info)
	assert.EqualValues(t, 5, info.Size())
}
