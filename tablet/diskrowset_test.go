package tablet

import (
	"os"
	"path/filepath"
	"testing"

	"cstore/file"
	"cstore/utils"

	"github.com/stretchr/testify/require"
)

func TestDiskRowSetBasics(t *testing.T) {
	env := file.NewOSEnv()
	schema := kvSchema(t)
	rs := buildKVRowSet(t, env, schema, rowsetDir(t, "rs"),
		[][2]uint32{{1, 10}, {2, 20}, {3, 30}}, nil)

	count, err := rs.CountRows()
	require.NoError(t, err)
	require.EqualValues(t, 3, count)
	require.NotZero(t, rs.EstimateOnDiskSize())
	require.Contains(t, rs.ToString(), "DiskRowSet")
	require.True(t, schema.Equals(rs.Schema()))
}

// projection只物化要的列
func TestDiskRowSetProjection(t *testing.T) {
	env := file.NewOSEnv()
	schema := mustSchema(t, []ColumnSchema{
		{Name: "k", Type: TypeU32},
		{Name: "a", Type: TypeU32},
		{Name: "b", Type: TypeBytes},
	}, 1)
	dir := rowsetDir(t, "rs")

	w, err := OpenRowSetWriter(env, schema, dir, nil)
	require.NoError(t, err)
	require.NoError(t, w.WriteRow([][]byte{EncodeU32Cell(1), EncodeU32Cell(100), []byte("one")}))
	require.NoError(t, w.WriteRow([][]byte{EncodeU32Cell(2), EncodeU32Cell(200), []byte("two")}))
	require.NoError(t, w.Finish())
	rs, err := OpenDiskRowSet(env, schema, dir, nil)
	require.NoError(t, err)

	projection := mustSchema(t, []ColumnSchema{{Name: "b", Type: TypeBytes}}, 1)
	it, err := rs.NewRowIterator(projection, AllCommittedSnapshot{})
	require.NoError(t, err)
	var got []string
	for it.Next() {
		got = append(got, string(it.Row().Cells[0]))
	}
	require.NoError(t, it.Err())
	require.NoError(t, it.Close())
	require.Equal(t, []string{"one", "two"}, got)

	// projection里的列也吃得到update
	require.NoError(t, rs.MutateRowByKey(5, [][]byte{EncodeU32Cell(1)},
		NewUpdateChangeList(ColumnUpdate{ColIdx: 2, Value: []byte("ONE")})))
	it, err = rs.NewRowIterator(projection, NewTxidSetSnapshot(5))
	require.NoError(t, err)
	got = got[:0]
	for it.Next() {
		got = append(got, string(it.Row().Cells[0]))
	}
	require.NoError(t, it.Close())
	require.Equal(t, []string{"ONE", "two"}, got)
}

// delete()之后目录必须不在了
func TestDiskRowSetDelete(t *testing.T) {
	env := file.NewOSEnv()
	schema := kvSchema(t)
	dir := rowsetDir(t, "rs")
	rs := buildKVRowSet(t, env, schema, dir, [][2]uint32{{1, 10}}, nil)

	require.NoError(t, rs.Delete())
	require.False(t, env.Exists(dir))
	require.False(t, env.Exists(dir+utils.DeletingRowSetSuffix))
}

// rename之后还能继续读写
func TestDiskRowSetRename(t *testing.T) {
	env := file.NewOSEnv()
	schema := kvSchema(t)
	parent := t.TempDir()
	dir := filepath.Join(parent, "rs")
	rs := buildKVRowSet(t, env, schema, dir, [][2]uint32{{1, 10}}, nil)

	newDir := filepath.Join(parent, "rs-renamed")
	require.NoError(t, rs.Rename(newDir))
	require.False(t, env.Exists(dir))
	require.True(t, env.Exists(newDir))
	require.Equal(t, newDir, rs.Dir())

	// 句柄还开着，读不受影响
	require.Equal(t, [][2]uint32{{1, 10}}, scanKV(t, rs, AllCommittedSnapshot{}))
}

// 崩溃在rename和递归删除之间：留下<dir>.deleting，启动扫描接着删完
func TestDeleteCrashRecovery(t *testing.T) {
	env := file.NewOSEnv()
	schema := kvSchema(t)
	parent := t.TempDir()
	dir := filepath.Join(parent, "rs")
	buildKVRowSet(t, env, schema, dir, [][2]uint32{{1, 10}}, nil)

	// 模拟delete()只走完了rename就崩溃
	require.NoError(t, env.Rename(dir, dir+utils.DeletingRowSetSuffix))
	require.False(t, env.Exists(dir))
	require.True(t, env.Exists(dir+utils.DeletingRowSetSuffix))

	// 再放一个写到一半的tmp目录
	tmpDir := filepath.Join(parent, "other"+utils.TmpRowSetSuffix)
	require.NoError(t, env.MkdirAll(tmpDir))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "col_0"), []byte("partial"), 0666))

	swept, err := SweepTransients(env, parent)
	require.NoError(t, err)
	require.Len(t, swept, 2)
	require.False(t, env.Exists(dir+utils.DeletingRowSetSuffix))
	require.False(t, env.Exists(tmpDir))

	// 正常目录不能被扫掉
	keep := filepath.Join(parent, "keep")
	require.NoError(t, env.MkdirAll(keep))
	swept, err = SweepTransients(env, parent)
	require.NoError(t, err)
	require.Empty(t, swept)
	require.True(t, env.Exists(keep))
}

// DebugDump把行和delta链都打出来
func TestDiskRowSetDebugDump(t *testing.T) {
	env := file.NewOSEnv()
	schema := kvSchema(t)
	rs := buildKVRowSet(t, env, schema, rowsetDir(t, "rs"),
		[][2]uint32{{1, 10}, {2, 20}}, nil)
	require.NoError(t, rs.MutateRow(5, kvProbe(t, schema, 2), setV(99)))

	lines, err := rs.DebugDump()
	require.NoError(t, err)
	require.Len(t, lines, 2)
	require.Contains(t, lines[1], "@5")
}

// open失败时不能留下半开的rowset
func TestDiskRowSetOpenMissingDir(t *testing.T) {
	env := file.NewOSEnv()
	schema := kvSchema(t)
	_, err := OpenDiskRowSet(env, schema, filepath.Join(t.TempDir(), "nope"), nil)
	require.Error(t, err)
}
