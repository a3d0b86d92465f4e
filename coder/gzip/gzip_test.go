package gzip

import (
	"bytes"
	"testing"

	"gotest.tools/v3/assert"
)

func TestCompressDecompress(t *testing.T) {
	data := bytes.Repeat([]byte("PULocationID,count\n"), 100)
	compressed, err := Compress(data)
	assert.NilError(t, err)
	assert.Assert(t, len(compressed) < len(data))
	decompressed, err := Decompress(compressed)
	assert.NilError(t, err)
	assert.DeepEqual(t, decompressed, data)
}

func TestDecompressGarbage(t *testing.T) {
	_, err := Decompress([]byte("not gzip"))
	assert.Assert(t, err != nil)
}
