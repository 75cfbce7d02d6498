package redsplit

import (
	"testing"

	"github.com/flowpbx/neteq/internal/neteq/neteqerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildRED(t *testing.T, blocks []struct {
	pt      uint8
	offset  uint32
	payload []byte
}) []byte {
	t.Helper()
	var buf []byte
	for i, b := range blocks {
		if i == len(blocks)-1 {
			buf = append(buf, b.pt&0x7F)
			continue
		}
		buf = append(buf, 0x80|(b.pt&0x7F))
		buf = append(buf, byte(b.offset>>6))
		buf = append(buf, byte(b.offset<<2)|byte(len(b.payload)>>8))
		buf = append(buf, byte(len(b.payload)))
	}
	for _, b := range blocks {
		buf = append(buf, b.payload...)
	}
	return buf
}

func TestSplitPrimaryOnly(t *testing.T) {
	payload := buildRED(t, []struct {
		pt      uint8
		offset  uint32
		payload []byte
	}{
		{pt: 0, payload: []byte{1, 2, 3}},
	})

	blocks, code := Split(payload, 1000)
	require.Equal(t, neteqerr.Code(0), code)
	require.Len(t, blocks, 1)
	assert.False(t, blocks[0].Redundant)
	assert.Equal(t, []byte{1, 2, 3}, blocks[0].Payload)
	assert.Equal(t, uint32(1000), blocks[0].Timestamp)
}

func TestSplitPrimaryPlusRedundant(t *testing.T) {
	payload := buildRED(t, []struct {
		pt      uint8
		offset  uint32
		payload []byte
	}{
		{pt: 0, offset: 160, payload: []byte{0xAA, 0xBB}},
		{pt: 0, payload: []byte{1, 2, 3, 4}},
	})

	blocks, code := Split(payload, 2000)
	require.Equal(t, neteqerr.Code(0), code)
	require.Len(t, blocks, 2)

	assert.True(t, blocks[0].Redundant)
	assert.Equal(t, uint32(2000-160), blocks[0].Timestamp)
	assert.Equal(t, []byte{0xAA, 0xBB}, blocks[0].Payload)

	assert.False(t, blocks[1].Redundant)
	assert.Equal(t, uint32(2000), blocks[1].Timestamp)
	assert.Equal(t, []byte{1, 2, 3, 4}, blocks[1].Payload)
}

func TestSplitTruncatedHeader(t *testing.T) {
	_, code := Split([]byte{0x80, 0x00}, 0)
	assert.NotEqual(t, neteqerr.Code(0), code)
}

func TestSplitDeclaredLengthOverruns(t *testing.T) {
	payload := buildRED(t, []struct {
		pt      uint8
		offset  uint32
		payload []byte
	}{
		{pt: 0, offset: 0, payload: []byte{1, 2, 3, 4, 5, 6, 7, 8}},
		{pt: 0, payload: []byte{1}},
	})
	// Truncate the data area so the first block's declared length overruns.
	truncated := payload[:len(payload)-5]
	_, code := Split(truncated, 100)
	assert.NotEqual(t, neteqerr.Code(0), code)
}
