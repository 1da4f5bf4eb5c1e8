package tablet

import (
	"path/filepath"
	"testing"

	"cstore/file"

	"github.com/stretchr/testify/require"
)

// 两个rowset归并：已提交的delta折进base，delete的行被回收
func TestMergeCompactionInputs(t *testing.T) {
	env := file.NewOSEnv()
	schema := kvSchema(t)
	parent := t.TempDir()

	rs1 := buildKVRowSet(t, env, schema, filepath.Join(parent, "rs1"),
		[][2]uint32{{1, 10}, {3, 30}, {5, 50}}, nil)
	rs2 := buildKVRowSet(t, env, schema, filepath.Join(parent, "rs2"),
		[][2]uint32{{2, 20}, {4, 40}}, nil)

	// rs1: 更新key=3，删掉key=5；rs2: 更新key=4
	require.NoError(t, rs1.MutateRow(11, kvProbe(t, schema, 3), setV(31)))
	require.NoError(t, rs1.MutateRow(12, kvProbe(t, schema, 5), NewDeleteChangeList()))
	require.NoError(t, rs2.MutateRow(13, kvProbe(t, schema, 4), setV(41)))

	snap := NewTxidSetSnapshot(11, 12, 13)
	in1, err := rs1.NewCompactionInput(snap)
	require.NoError(t, err)
	in2, err := rs2.NewCompactionInput(snap)
	require.NoError(t, err)

	out, err := MergeCompactionInputs(env, schema, nil,
		[]*CompactionInput{in1, in2}, snap, filepath.Join(parent, "out"))
	require.NoError(t, err)

	// key有序、更新生效、key=5消失
	require.Equal(t, [][2]uint32{{1, 10}, {2, 20}, {3, 31}, {4, 41}},
		scanKV(t, out, AllCommittedSnapshot{}))
	count, err := out.CountRows()
	require.NoError(t, err)
	require.EqualValues(t, 4, count)
	// 输出rowset刚建好，还没有落盘的delta文件
	require.Equal(t, 0, out.delta.CountDeltaFiles())
}

// 快照外的delta要被携带进新rowset的delta track
func TestMergeCarriesUncommittedDeltas(t *testing.T) {
	env := file.NewOSEnv()
	schema := kvSchema(t)
	parent := t.TempDir()

	rs := buildKVRowSet(t, env, schema, filepath.Join(parent, "rs"),
		[][2]uint32{{1, 10}, {2, 20}, {3, 30}}, nil)

	// txid=9在flush快照之外
	require.NoError(t, rs.MutateRow(9, kvProbe(t, schema, 2), setV(42)))

	snap := NewTxidSetSnapshot() // 快照里什么都没提交
	in, err := rs.NewCompactionInput(snap)
	require.NoError(t, err)
	out, err := MergeCompactionInputs(env, schema, nil,
		[]*CompactionInput{in}, snap, filepath.Join(parent, "out"))
	require.NoError(t, err)

	// base是原始值
	require.Equal(t, [][2]uint32{{1, 10}, {2, 20}, {3, 30}},
		scanKV(t, out, NewTxidSetSnapshot()))
	// txid=9提交之后能看到42
	require.Equal(t, [][2]uint32{{1, 10}, {2, 42}, {3, 30}},
		scanKV(t, out, NewTxidSetSnapshot(9)))
}

// 已提交的delete加上未提交的后续delta：行留在base里，delete以delta形式带走
func TestMergeDeleteWithTrailingDelta(t *testing.T) {
	env := file.NewOSEnv()
	schema := kvSchema(t)
	parent := t.TempDir()

	rs := buildKVRowSet(t, env, schema, filepath.Join(parent, "rs"),
		[][2]uint32{{1, 10}, {2, 20}}, nil)
	require.NoError(t, rs.MutateRow(5, kvProbe(t, schema, 2), NewDeleteChangeList()))
	require.NoError(t, rs.MutateRow(9, kvProbe(t, schema, 2), setV(21)))

	snap := NewTxidSetSnapshot(5)
	in, err := rs.NewCompactionInput(snap)
	require.NoError(t, err)
	out, err := MergeCompactionInputs(env, schema, nil,
		[]*CompactionInput{in}, snap, filepath.Join(parent, "out"))
	require.NoError(t, err)

	// delete可见、reinsert不可见
	require.Equal(t, [][2]uint32{{1, 10}},
		scanKV(t, out, NewTxidSetSnapshot(5)))
	// reinsert提交后行回来了
	require.Equal(t, [][2]uint32{{1, 10}, {2, 21}},
		scanKV(t, out, NewTxidSetSnapshot(5, 9)))
}

// compaction窗口：装上DuplicatingRowSet之后的mutation在swap后依然可见
func TestCompactionWindow(t *testing.T) {
	env := file.NewOSEnv()
	schema := kvSchema(t)
	parent := t.TempDir()

	input := buildKVRowSet(t, env, schema, filepath.Join(parent, "input"),
		[][2]uint32{{1, 10}, {2, 20}, {3, 30}}, nil)

	// 1. 拿住compact/flush锁，拍快照
	require.True(t, input.CompactFlushLock().TryLock())
	snap := NewTxidSetSnapshot()

	// 2. 按快照把输入归并成输出rowset
	in, err := input.NewCompactionInput(snap)
	require.NoError(t, err)
	output, err := MergeCompactionInputs(env, schema, nil,
		[]*CompactionInput{in}, snap, filepath.Join(parent, "output"))
	require.NoError(t, err)

	// 3. 装上duplicating rowset，窗口期的写两边都到
	dup := NewDuplicatingRowSet([]RowSet{input}, output)

	// 窗口期的update，txid=9
	require.NoError(t, dup.MutateRow(9, kvProbe(t, schema, 2), setV(42)))

	// 窗口期读走输入侧
	require.Equal(t, [][2]uint32{{1, 10}, {2, 42}, {3, 30}},
		scanKV(t, dup, NewTxidSetSnapshot(9)))

	// 4. swap：输出单独服务，txid=9的修改必须还在
	swapped := dup.Output()
	require.Equal(t, [][2]uint32{{1, 10}, {2, 42}, {3, 30}},
		scanKV(t, swapped, NewTxidSetSnapshot(9)))
	require.Equal(t, [][2]uint32{{1, 10}, {2, 20}, {3, 30}},
		scanKV(t, swapped, NewTxidSetSnapshot()))

	// 5. 输入可以删了
	for _, in := range dup.Inputs() {
		require.NoError(t, in.Delete())
	}
	require.False(t, env.Exists(filepath.Join(parent, "input")))
}
