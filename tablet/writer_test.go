package tablet

import (
	"fmt"
	"testing"

	"cstore/cfile"
	"cstore/file"
	"cstore/utils"

	"github.com/stretchr/testify/require"
)

// finish之后每个列文件报告的行数都要等于written_count
func TestWriterRowCountCoherence(t *testing.T) {
	env := file.NewOSEnv()
	schema := mustSchema(t, []ColumnSchema{
		{Name: "k", Type: TypeU32},
		{Name: "v1", Type: TypeU64},
		{Name: "v2", Type: TypeBytes},
	}, 1)
	dir := rowsetDir(t, "rs")

	w, err := OpenRowSetWriter(env, schema, dir, nil)
	require.NoError(t, err)
	const n = 1000
	for i := uint32(0); i < n; i++ {
		row := [][]byte{
			EncodeU32Cell(i),
			EncodeU64Cell(uint64(i) * 10),
			[]byte(fmt.Sprintf("payload-%d", i)),
		}
		require.NoError(t, w.WriteRow(row))
	}
	require.EqualValues(t, n, w.WrittenCount())
	require.NoError(t, w.Finish())

	for i := 0; i < schema.NumColumns(); i++ {
		r, err := cfile.OpenReader(ColumnPath(dir, i), nil)
		require.NoError(t, err)
		require.EqualValues(t, n, r.NumRows())
		require.NoError(t, r.Close())
	}
}

// 块追加：schema不一致要被拒绝
func TestWriterAppendBlockSchemaMismatch(t *testing.T) {
	env := file.NewOSEnv()
	schema := kvSchema(t)
	w, err := OpenRowSetWriter(env, schema, rowsetDir(t, "rs"), nil)
	require.NoError(t, err)

	other := mustSchema(t, []ColumnSchema{
		{Name: "x", Type: TypeU32},
		{Name: "y", Type: TypeU32},
	}, 1)
	block := NewRowBlock(other, 1)
	require.NoError(t, block.AppendRow([][]byte{EncodeU32Cell(1), EncodeU32Cell(2)}))
	require.ErrorIs(t, w.AppendBlock(block), utils.ErrInvalidArgument)
}

// finish之后append和再次finish都是编程性错误
func TestWriterFinishTwice(t *testing.T) {
	env := file.NewOSEnv()
	schema := kvSchema(t)
	w, err := OpenRowSetWriter(env, schema, rowsetDir(t, "rs"), nil)
	require.NoError(t, err)
	require.NoError(t, w.WriteRow([][]byte{EncodeU32Cell(1), EncodeU32Cell(10)}))
	require.NoError(t, w.Finish())

	require.ErrorIs(t, w.WriteRow([][]byte{EncodeU32Cell(2), EncodeU32Cell(20)}), utils.ErrFinished)
	require.ErrorIs(t, w.Finish(), utils.ErrFinished)
}

// 目录已经存在时open失败
func TestWriterDirExists(t *testing.T) {
	env := file.NewOSEnv()
	schema := kvSchema(t)
	dir := rowsetDir(t, "rs")
	require.NoError(t, env.MkdirAll(dir))
	_, err := OpenRowSetWriter(env, schema, dir, nil)
	require.Error(t, err)
}

// 写进去的每个key都必须能probe到（bloom保守性走完整的check路径）
func TestWriterBloomConservative(t *testing.T) {
	env := file.NewOSEnv()
	schema := kvSchema(t)
	dir := rowsetDir(t, "rs")
	var rows [][2]uint32
	for i := uint32(0); i < 500; i++ {
		rows = append(rows, [2]uint32{i * 7, i})
	}
	rs := buildKVRowSet(t, env, schema, dir, rows, nil)

	for i := uint32(0); i < 500; i++ {
		present, err := rs.CheckRowPresent(kvProbe(t, schema, i*7))
		require.NoError(t, err)
		require.True(t, present, "key %d", i*7)
	}
	// 不存在的key：bloom可能误报，key索引兜底
	for i := uint32(0); i < 500; i++ {
		present, err := rs.CheckRowPresent(kvProbe(t, schema, i*7+3))
		require.NoError(t, err)
		require.False(t, present)
	}
}
