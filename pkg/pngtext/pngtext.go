// Package pngtext reads and writes tEXt chunks in PNG byte streams.
package pngtext

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"strings"
)

const (
	ChunkText = "tEXt"
	ChunkIHDR = "IHDR"
	ChunkIEND = "IEND"

	maxKeywordLen = 79
)

var signature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

var (
	ErrNotPNG         = errors.New("not a png")
	ErrTruncated      = errors.New("truncated chunk stream")
	ErrInvalidKeyword = errors.New("invalid text keyword")
	ErrInvalidValue   = errors.New("invalid text value")
)

type Chunk struct {
	Type   string
	Data   []byte
	Offset int
	Length int
}

// End is the offset of the first byte after the chunk's CRC.
func (c Chunk) End() int {
	return c.Offset + 12 + c.Length
}

func Signature() []byte {
	out := make([]byte, len(signature))
	copy(out, signature)
	return out
}

func IsPNG(data []byte) bool {
	return len(data) >= len(signature) && bytes.Equal(data[:len(signature)], signature)
}

// Walk calls fn for every chunk in order until fn returns false, IEND is
// passed, or the stream ends. CRCs are not checked.
func Walk(data []byte, fn func(Chunk) bool) error {
	if !IsPNG(data) {
		return ErrNotPNG
	}
	pos := len(signature)
	for pos < len(data) {
		if len(data)-pos < 12 {
			return ErrTruncated
		}
		length := binary.BigEndian.Uint32(data[pos : pos+4])
		if uint64(length) > uint64(len(data)-pos-12) {
			return ErrTruncated
		}
		n := int(length)
		chunk := Chunk{
			Type:   string(data[pos+4 : pos+8]),
			Data:   data[pos+8 : pos+8+n],
			Offset: pos,
			Length: n,
		}
		if !fn(chunk) {
			return nil
		}
		pos = chunk.End()
		if chunk.Type == ChunkIEND {
			return nil
		}
	}
	return nil
}

// Find returns the value of the first tEXt chunk whose keyword matches.
// A missing chunk is reported through found, not err; only a missing PNG
// signature is an error. A truncated tail ends the search.
func Find(data []byte, keyword string) (value string, found bool, err error) {
	err = Walk(data, func(c Chunk) bool {
		if c.Type != ChunkText {
			return true
		}
		k, v, ok := SplitText(c.Data)
		if !ok || k != keyword {
			return true
		}
		value, found = v, true
		return false
	})
	if errors.Is(err, ErrTruncated) {
		err = nil
	}
	return value, found, err
}

// SplitText splits tEXt chunk data on its first NUL byte.
func SplitText(data []byte) (keyword, value string, ok bool) {
	idx := bytes.IndexByte(data, 0)
	if idx < 0 {
		return "", "", false
	}
	return string(data[:idx]), string(data[idx+1:]), true
}

func TextChunkData(keyword, value string) ([]byte, error) {
	if len(keyword) == 0 || len(keyword) > maxKeywordLen || strings.IndexByte(keyword, 0) >= 0 {
		return nil, ErrInvalidKeyword
	}
	if strings.IndexByte(value, 0) >= 0 {
		return nil, ErrInvalidValue
	}
	out := make([]byte, 0, len(keyword)+1+len(value))
	out = append(out, keyword...)
	out = append(out, 0)
	out = append(out, value...)
	return out, nil
}

// EncodeChunk serializes a chunk with its length prefix and a freshly
// computed CRC over type and data.
func EncodeChunk(chunkType string, data []byte) ([]byte, error) {
	if len(chunkType) != 4 {
		return nil, fmt.Errorf("chunk type %q must be 4 bytes", chunkType)
	}
	if uint64(len(data)) > 0x7fffffff {
		return nil, fmt.Errorf("chunk data too large: %d bytes", len(data))
	}
	out := make([]byte, 12+len(data))
	binary.BigEndian.PutUint32(out[0:4], uint32(len(data)))
	copy(out[4:8], chunkType)
	copy(out[8:], data)
	crc := crc32.NewIEEE()
	crc.Write(out[4 : 8+len(data)])
	binary.BigEndian.PutUint32(out[8+len(data):], crc.Sum32())
	return out, nil
}

// Embed returns a copy of data carrying a tEXt chunk with keyword and value.
// Existing chunks with the same keyword are dropped and the new chunk is
// placed directly after IHDR.
func Embed(data []byte, keyword, value string) ([]byte, error) {
	payload, err := TextChunkData(keyword, value)
	if err != nil {
		return nil, err
	}
	chunk, err := EncodeChunk(ChunkText, payload)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(data)+len(chunk))
	out = append(out, signature...)
	inserted := false
	walkErr := Walk(data, func(c Chunk) bool {
		if c.Type == ChunkText {
			if k, _, ok := SplitText(c.Data); ok && k == keyword {
				return true
			}
		}
		if !inserted && c.Type != ChunkIHDR {
			out = append(out, chunk...)
			inserted = true
		}
		out = append(out, data[c.Offset:c.End()]...)
		return true
	})
	if walkErr != nil {
		return nil, walkErr
	}
	if !inserted {
		out = append(out, chunk...)
	}
	return out, nil
}
