package tablet

import (
	"fmt"
	"strings"

	"cstore/utils"

	"github.com/pkg/errors"
)

// delta record的change部分：或者是一组非key列的更新，或者是一个delete标记
const (
	changeKindUpdate byte = 1
	changeKindDelete byte = 2
)

type ColumnUpdate struct {
	ColIdx int
	Value  []byte
}

type ChangeList struct {
	kind    byte
	updates []ColumnUpdate
}

func NewUpdateChangeList(updates ...ColumnUpdate) *ChangeList {
	return &ChangeList{kind: changeKindUpdate, updates: updates}
}

func NewDeleteChangeList() *ChangeList {
	return &ChangeList{kind: changeKindDelete}
}

func (c *ChangeList) IsDelete() bool {
	return c.kind == changeKindDelete
}

func (c *ChangeList) Updates() []ColumnUpdate {
	return c.updates
}

// Validate 检查change的合法性：delete不带更新；update只碰非key列
func (c *ChangeList) Validate(schema *Schema) error {
	switch c.kind {
	case changeKindDelete:
		if len(c.updates) > 0 {
			return errors.Wrap(utils.ErrInvalidArgument, "delete with column updates")
		}
		return nil
	case changeKindUpdate:
		if len(c.updates) == 0 {
			return errors.Wrap(utils.ErrInvalidArgument, "empty update")
		}
		for _, up := range c.updates {
			if up.ColIdx < 0 || up.ColIdx >= schema.NumColumns() {
				return errors.Wrapf(utils.ErrInvalidArgument, "column %d out of range", up.ColIdx)
			}
			if schema.IsKeyColumn(up.ColIdx) {
				return errors.Wrapf(utils.ErrInvalidArgument, "update touches key column %d", up.ColIdx)
			}
			width := schema.Column(up.ColIdx).Type.FixedWidth()
			if width > 0 && len(up.Value) != width {
				return errors.Wrapf(utils.ErrInvalidArgument, "column %d value width %d != %d", up.ColIdx, len(up.Value), width)
			}
		}
		return nil
	default:
		return errors.Wrapf(utils.ErrInvalidArgument, "bad change kind %d", c.kind)
	}
}

/*
	编码：外 ---> 内
	+--------------------------------------------------------+
	| kind | ncols | (colIdx | value_len | value) * ncols    |
	+--------------------------------------------------------+
	kind是1byte，ncols和colIdx是2byte大端，value_len是4byte大端
*/
func (c *ChangeList) Encode() []byte {
	size := 1 + 2
	for _, up := range c.updates {
		size += 2 + 4 + len(up.Value)
	}
	buf := make([]byte, 0, size)
	buf = append(buf, c.kind)
	buf = append(buf, byte(len(c.updates)>>8), byte(len(c.updates)))
	for _, up := range c.updates {
		buf = append(buf, byte(up.ColIdx>>8), byte(up.ColIdx))
		buf = append(buf, utils.Uint32ToBytes(uint32(len(up.Value)))...)
		buf = append(buf, up.Value...)
	}
	return buf
}

func DecodeChangeList(buf []byte) (*ChangeList, error) {
	if len(buf) < 3 {
		return nil, errors.Wrap(utils.ErrCorruption, "change list too short")
	}
	c := &ChangeList{kind: buf[0]}
	ncols := int(buf[1])<<8 | int(buf[2])
	buf = buf[3:]
	for i := 0; i < ncols; i++ {
		if len(buf) < 6 {
			return nil, errors.Wrap(utils.ErrCorruption, "change list truncated")
		}
		colIdx := int(buf[0])<<8 | int(buf[1])
		valLen := int(utils.Bytes2Uint32(buf[2:6]))
		buf = buf[6:]
		if len(buf) < valLen {
			return nil, errors.Wrap(utils.ErrCorruption, "change list value truncated")
		}
		c.updates = append(c.updates, ColumnUpdate{
			ColIdx: colIdx,
			Value:  append([]byte(nil), buf[:valLen]...),
		})
		buf = buf[valLen:]
	}
	if len(buf) != 0 {
		return nil, errors.Wrap(utils.ErrCorruption, "change list trailing bytes")
	}
	return c, nil
}

// Merge 同一个(rowid,txid)上的第二个change合并进来，后写的列覆盖先写的
func (c *ChangeList) Merge(later *ChangeList) *ChangeList {
	if later.IsDelete() || c.IsDelete() {
		// delete吞掉前面的更新
		return NewDeleteChangeList()
	}
	merged := append([]ColumnUpdate(nil), c.updates...)
	for _, up := range later.updates {
		replaced := false
		for i := range merged {
			if merged[i].ColIdx == up.ColIdx {
				merged[i] = up
				replaced = true
				break
			}
		}
		if !replaced {
			merged = append(merged, up)
		}
	}
	return NewUpdateChangeList(merged...)
}

// ApplyToRow 把更新打到一行的cell上；delete不在这里处理
func (c *ChangeList) ApplyToRow(row [][]byte) {
	if c.IsDelete() {
		return
	}
	for _, up := range c.updates {
		if up.ColIdx < len(row) {
			row[up.ColIdx] = up.Value
		}
	}
}

func (c *ChangeList) String() string {
	if c.IsDelete() {
		return "DELETE"
	}
	parts := make([]string, 0, len(c.updates))
	for _, up := range c.updates {
		parts = append(parts, fmt.Sprintf("col%d=%x", up.ColIdx, up.Value))
	}
	return "SET " + strings.Join(parts, ",")
}
