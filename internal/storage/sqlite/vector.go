package sqlite

import (
	"encoding/binary"
	"fmt"
	"math"
)

// serializeEmbedding packs a []float32 into a little-endian byte blob. No
// sqlite vector extension is available in this deployment, so embeddings
// are stored as plain BLOBs and similarity is computed by scanning them
// back out in Go (see cosine search in store.go).
func serializeEmbedding(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// deserializeEmbedding is the inverse of serializeEmbedding.
func deserializeEmbedding(buf []byte) ([]float32, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("sqlite: embedding blob length %d not a multiple of 4", len(buf))
	}
	v := make([]float32, len(buf)/4)
	for i := range v {
		bits := binary.LittleEndian.Uint32(buf[i*4:])
		v[i] = math.Float32frombits(bits)
	}
	return v, nil
}
