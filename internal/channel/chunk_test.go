package channel

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkTextShortPassthrough(t *testing.T) {
	chunks := ChunkText("hello", 2000)
	require.Len(t, chunks, 1)
	assert.Equal(t, "hello", chunks[0])
}

func TestChunkTextEmpty(t *testing.T) {
	assert.Nil(t, ChunkText("   ", 100))
}

func TestChunkTextSplitsAtNewlines(t *testing.T) {
	text := "first line\nsecond line\nthird line"
	chunks := ChunkText(text, 12)
	require.Len(t, chunks, 3)
	assert.Equal(t, "first line", chunks[0])
	assert.Equal(t, "second line", chunks[1])
	assert.Equal(t, "third line", chunks[2])
}

func TestChunkTextHardSplitsLongLine(t *testing.T) {
	text := strings.Repeat("a", 25)
	chunks := ChunkText(text, 10)
	require.Len(t, chunks, 3)
	for _, chunk := range chunks {
		assert.LessOrEqual(t, len([]rune(chunk)), 10)
	}
	assert.Equal(t, text, strings.Join(chunks, ""))
}

func TestChunkTextZeroLimitMeansUnlimited(t *testing.T) {
	text := strings.Repeat("b", 10000)
	chunks := ChunkText(text, 0)
	require.Len(t, chunks, 1)
}

func TestParsePlatform(t *testing.T) {
	for raw, want := range map[string]Platform{
		"line":     PlatformLINE,
		" LINE ":   PlatformLINE,
		"facebook": PlatformFacebook,
		"widget":   PlatformWebsite,
		"WEBSITE":  PlatformWebsite,
	} {
		got, err := ParsePlatform(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got)
	}
	_, err := ParsePlatform("telegram")
	assert.Error(t, err)
}
