package pngtext

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 0x8b, G: 0x45, B: 0x13, A: 0xff})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestFindRejectsNonPNG(t *testing.T) {
	_, found, err := Find([]byte("GIF89a not a png at all"), "noskid-key")
	assert.ErrorIs(t, err, ErrNotPNG)
	assert.False(t, found)

	_, _, err = Find(nil, "noskid-key")
	assert.ErrorIs(t, err, ErrNotPNG)
}

func TestFindMissingChunkIsNotAnError(t *testing.T) {
	value, found, err := Find(samplePNG(t), "noskid-key")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, value)
}

func TestEmbedThenFind(t *testing.T) {
	src := samplePNG(t)
	out, err := Embed(src, "noskid-key", "-----BEGIN NOSKID KEY-----\nabc\n-----END NOSKID KEY-----")
	require.NoError(t, err)

	value, found, err := Find(out, "noskid-key")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "-----BEGIN NOSKID KEY-----\nabc\n-----END NOSKID KEY-----", value)

	// The stdlib decoder verifies every chunk CRC, including ours.
	_, err = png.Decode(bytes.NewReader(out))
	require.NoError(t, err)
}

func TestEmbedPlacesChunkAfterIHDR(t *testing.T) {
	out, err := Embed(samplePNG(t), "noskid-key", "v")
	require.NoError(t, err)

	var types []string
	require.NoError(t, Walk(out, func(c Chunk) bool {
		types = append(types, c.Type)
		return true
	}))
	require.GreaterOrEqual(t, len(types), 3)
	assert.Equal(t, ChunkIHDR, types[0])
	assert.Equal(t, ChunkText, types[1])
	assert.Equal(t, ChunkIEND, types[len(types)-1])
}

func TestEmbedReplacesExistingKeyword(t *testing.T) {
	first, err := Embed(samplePNG(t), "noskid-key", "old")
	require.NoError(t, err)
	second, err := Embed(first, "noskid-key", "new")
	require.NoError(t, err)

	count := 0
	require.NoError(t, Walk(second, func(c Chunk) bool {
		if k, _, ok := SplitText(c.Data); ok && c.Type == ChunkText && k == "noskid-key" {
			count++
		}
		return true
	}))
	assert.Equal(t, 1, count)

	value, found, err := Find(second, "noskid-key")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "new", value)
}

func TestFindSkipsOtherKeywords(t *testing.T) {
	out, err := Embed(samplePNG(t), "Comment", "hello")
	require.NoError(t, err)
	out, err = Embed(out, "noskid-key", "payload")
	require.NoError(t, err)

	value, found, err := Find(out, "noskid-key")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "payload", value)

	value, found, err = Find(out, "Comment")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "hello", value)
}

func TestFindTruncatedStream(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{name: "signature only", data: Signature()},
		{name: "partial header", data: append(Signature(), 0, 0, 0)},
		{name: "length past end", data: func() []byte {
			b := Signature()
			hdr := make([]byte, 12)
			binary.BigEndian.PutUint32(hdr[0:4], 0xfffffff0)
			copy(hdr[4:8], ChunkText)
			return append(b, hdr...)
		}()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, found, err := Find(tt.data, "noskid-key")
			assert.NoError(t, err)
			assert.False(t, found)
		})
	}
}

func TestFindIgnoresTextWithoutSeparator(t *testing.T) {
	chunk, err := EncodeChunk(ChunkText, []byte("noskid-key"))
	require.NoError(t, err)
	data := append(Signature(), chunk...)

	_, found, err := Find(data, "noskid-key")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestEncodeChunkCRC(t *testing.T) {
	// IEND always serializes to the same 12 bytes.
	chunk, err := EncodeChunk(ChunkIEND, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 0, 'I', 'E', 'N', 'D', 0xae, 0x42, 0x60, 0x82}, chunk)

	_, err = EncodeChunk("tEX", nil)
	assert.Error(t, err)
}

func TestTextChunkDataValidation(t *testing.T) {
	_, err := TextChunkData("", "v")
	assert.ErrorIs(t, err, ErrInvalidKeyword)
	_, err = TextChunkData(string(bytes.Repeat([]byte{'k'}, 80)), "v")
	assert.ErrorIs(t, err, ErrInvalidKeyword)
	_, err = TextChunkData("key", "a\x00b")
	assert.ErrorIs(t, err, ErrInvalidValue)

	data, err := TextChunkData("key", "value")
	require.NoError(t, err)
	assert.Equal(t, []byte("key\x00value"), data)
}
