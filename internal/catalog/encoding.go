// cleo - media ingestion engine
// SPDX-License-Identifier: AGPL-3.0-or-later

package catalog

import (
	"encoding/binary"
	"fmt"
	"math"
)

// encodeFloat64Slice serializes a []float64 to little-endian bytes, the
// stored wire format for KnownFace.Encoding (128 doubles, 8 bytes each).
func encodeFloat64Slice(values []float64) []byte {
	buf := make([]byte, 8*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

// decodeFloat64Slice is the inverse of encodeFloat64Slice.
func decodeFloat64Slice(buf []byte) ([]float64, error) {
	if len(buf)%8 != 0 {
		return nil, fmt.Errorf("encoding length %d is not a multiple of 8", len(buf))
	}
	n := len(buf) / 8
	values := make([]float64, n)
	for i := 0; i < n; i++ {
		bits := binary.LittleEndian.Uint64(buf[i*8:])
		values[i] = math.Float64frombits(bits)
	}
	return values, nil
}
