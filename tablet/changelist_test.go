package tablet

import (
	"testing"

	"cstore/utils"

	"github.com/stretchr/testify/require"
)

func TestChangeListRoundTrip(t *testing.T) {
	change := NewUpdateChangeList(
		ColumnUpdate{ColIdx: 1, Value: EncodeU32Cell(42)},
		ColumnUpdate{ColIdx: 2, Value: []byte("hello")},
	)
	decoded, err := DecodeChangeList(change.Encode())
	require.NoError(t, err)
	require.False(t, decoded.IsDelete())
	require.Equal(t, change.Updates(), decoded.Updates())

	del := NewDeleteChangeList()
	decoded, err = DecodeChangeList(del.Encode())
	require.NoError(t, err)
	require.True(t, decoded.IsDelete())
}

func TestChangeListValidate(t *testing.T) {
	schema := kvSchema(t)

	require.NoError(t, setV(1).Validate(schema))
	require.NoError(t, NewDeleteChangeList().Validate(schema))

	// key列
	err := NewUpdateChangeList(ColumnUpdate{ColIdx: 0, Value: EncodeU32Cell(1)}).Validate(schema)
	require.ErrorIs(t, err, utils.ErrInvalidArgument)
	// 列号越界
	err = NewUpdateChangeList(ColumnUpdate{ColIdx: 9, Value: EncodeU32Cell(1)}).Validate(schema)
	require.ErrorIs(t, err, utils.ErrInvalidArgument)
	// 空update
	err = NewUpdateChangeList().Validate(schema)
	require.ErrorIs(t, err, utils.ErrInvalidArgument)
	// 定宽列的值宽度不对
	err = NewUpdateChangeList(ColumnUpdate{ColIdx: 1, Value: []byte{1}}).Validate(schema)
	require.ErrorIs(t, err, utils.ErrInvalidArgument)
}

func TestChangeListMerge(t *testing.T) {
	first := NewUpdateChangeList(ColumnUpdate{ColIdx: 1, Value: EncodeU32Cell(1)})
	second := NewUpdateChangeList(ColumnUpdate{ColIdx: 1, Value: EncodeU32Cell(2)})
	merged := first.Merge(second)
	require.Len(t, merged.Updates(), 1)
	require.Equal(t, EncodeU32Cell(2), merged.Updates()[0].Value)

	// delete吞掉update
	require.True(t, first.Merge(NewDeleteChangeList()).IsDelete())
}

func TestChangeListTruncated(t *testing.T) {
	change := NewUpdateChangeList(ColumnUpdate{ColIdx: 1, Value: EncodeU32Cell(42)})
	encoded := change.Encode()
	_, err := DecodeChangeList(encoded[:len(encoded)-2])
	require.ErrorIs(t, err, utils.ErrCorruption)
	_, err = DecodeChangeList(nil)
	require.ErrorIs(t, err, utils.ErrCorruption)
}
