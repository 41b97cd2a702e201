package wal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xmysql-server/innodb-core/internal/enginerr"
)

func TestRecordEncodeDecodeRoundTrip(t *testing.T) {
	r := &Record{
		LSN: 42, TrxID: 7, SpaceID: 1, PageNo: 9,
		Type: RecUpdate, PrevLSN: 17, Data: []byte("hello"),
	}
	buf := r.Encode()
	assert.Equal(t, EncodedLen(len(r.Data)), len(buf))

	got, n, err := Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, len(buf), n)
	assert.Equal(t, r.LSN, got.LSN)
	assert.Equal(t, r.TrxID, got.TrxID)
	assert.Equal(t, r.SpaceID, got.SpaceID)
	assert.Equal(t, r.PageNo, got.PageNo)
	assert.Equal(t, r.Type, got.Type)
	assert.Equal(t, r.PrevLSN, got.PrevLSN)
	assert.Equal(t, r.Data, got.Data)
}

func TestDecodeDetectsCorruption(t *testing.T) {
	r := &Record{LSN: 1, TrxID: 1, SpaceID: 1, PageNo: 1, Type: RecInsert, Data: []byte("x")}
	buf := r.Encode()
	buf[len(buf)-1] ^= 0xFF // flip a checksum byte

	_, _, err := Decode(buf)
	assert.ErrorIs(t, err, enginerr.ErrLogCorruption)
}

func TestDecodeRejectsShortBuffer(t *testing.T) {
	_, _, err := Decode([]byte{1, 2, 3})
	assert.Error(t, err)
}
