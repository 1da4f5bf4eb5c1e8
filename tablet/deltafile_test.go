package tablet

import (
	"os"
	"path/filepath"
	"testing"

	"cstore/utils"

	"github.com/stretchr/testify/require"
)

func TestDeltaFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "delta_0")
	w := NewDeltaFileWriter()
	records := []DeltaRecordView{
		{Key: DeltaKey{Rowid: 1, Txid: 3}, Change: setV(10).Encode()},
		{Key: DeltaKey{Rowid: 1, Txid: 8}, Change: NewDeleteChangeList().Encode()},
		{Key: DeltaKey{Rowid: 4, Txid: 2}, Change: setV(20).Encode()},
	}
	for _, rec := range records {
		require.NoError(t, w.Append(rec))
	}
	require.NoError(t, w.Finish(path))

	r, err := OpenDeltaFileReader(path)
	require.NoError(t, err)
	stats := r.Stats()
	require.EqualValues(t, 3, stats.Count)
	require.EqualValues(t, 1, stats.MinRowid)
	require.EqualValues(t, 4, stats.MaxRowid)
	require.EqualValues(t, 2, stats.MinTxid)
	require.EqualValues(t, 8, stats.MaxTxid)
	require.EqualValues(t, 1, stats.DeleteCount)

	require.Equal(t, records[:2], r.CollectForRange(0, 2))
	require.Equal(t, records[2:], r.CollectForRange(2, 100))
	require.Empty(t, r.CollectForRange(2, 4))

	deleted, err := r.DeletedRowsIn()
	require.NoError(t, err)
	require.Equal(t, []uint32{1}, deleted)
}

// 乱序的record直接拒绝
func TestDeltaFileOutOfOrder(t *testing.T) {
	w := NewDeltaFileWriter()
	require.NoError(t, w.Append(DeltaRecordView{Key: DeltaKey{Rowid: 2, Txid: 1}, Change: setV(1).Encode()}))
	err := w.Append(DeltaRecordView{Key: DeltaKey{Rowid: 1, Txid: 5}, Change: setV(2).Encode()})
	require.ErrorIs(t, err, utils.ErrInvalidArgument)
	// 同(rowid, txid)也不行
	err = w.Append(DeltaRecordView{Key: DeltaKey{Rowid: 2, Txid: 1}, Change: setV(3).Encode()})
	require.ErrorIs(t, err, utils.ErrInvalidArgument)
}

// 内容被改动要报corruption
func TestDeltaFileCorruption(t *testing.T) {
	path := filepath.Join(t.TempDir(), "delta_0")
	w := NewDeltaFileWriter()
	require.NoError(t, w.Append(DeltaRecordView{Key: DeltaKey{Rowid: 1, Txid: 1}, Change: setV(1).Encode()}))
	require.NoError(t, w.Finish(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	raw[0] ^= 0xff
	require.NoError(t, os.WriteFile(path, raw, 0666))

	_, err = OpenDeltaFileReader(path)
	require.ErrorIs(t, err, utils.ErrCorruption)
}
