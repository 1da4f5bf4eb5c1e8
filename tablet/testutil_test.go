package tablet

import (
	"path/filepath"
	"testing"

	"cstore/file"

	"github.com/stretchr/testify/require"
)

// 测试通用的(k u32 key, v u32) schema
func kvSchema(t *testing.T) *Schema {
	return mustSchema(t, []ColumnSchema{
		{Name: "k", Type: TypeU32},
		{Name: "v", Type: TypeU32},
	}, 1)
}

// 在dir下写一个base为rows的rowset并打开
func buildKVRowSet(t *testing.T, env file.Env, schema *Schema, dir string, rows [][2]uint32, opt *Options) *DiskRowSet {
	w, err := OpenRowSetWriter(env, schema, dir, opt)
	require.NoError(t, err)
	for _, row := range rows {
		require.NoError(t, w.WriteRow([][]byte{EncodeU32Cell(row[0]), EncodeU32Cell(row[1])}))
	}
	require.NoError(t, w.Finish())

	rs, err := OpenDiskRowSet(env, schema, dir, opt)
	require.NoError(t, err)
	return rs
}

func kvProbe(t *testing.T, schema *Schema, k uint32) *RowSetKeyProbe {
	probe, err := NewRowSetKeyProbe(schema, [][]byte{EncodeU32Cell(k)})
	require.NoError(t, err)
	return probe
}

// 把迭代器吐出的(k, v)收集成对
func collectKV(t *testing.T, it RowwiseIterator) [][2]uint32 {
	var out [][2]uint32
	for it.Next() {
		row := it.Row()
		out = append(out, [2]uint32{
			DecodeU32Cell(row.Cells[0]),
			DecodeU32Cell(row.Cells[1]),
		})
	}
	require.NoError(t, it.Err())
	require.NoError(t, it.Close())
	return out
}

func scanKV(t *testing.T, rs RowSet, snap MvccSnapshot) [][2]uint32 {
	it, err := rs.NewRowIterator(rs.Schema(), snap)
	require.NoError(t, err)
	return collectKV(t, it)
}

func rowsetDir(t *testing.T, name string) string {
	return filepath.Join(t.TempDir(), name)
}

func setV(v uint32) *ChangeList {
	return NewUpdateChangeList(ColumnUpdate{ColIdx: 1, Value: EncodeU32Cell(v)})
}
