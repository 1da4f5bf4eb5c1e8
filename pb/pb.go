// 文件footer里的元数据message，走protobuf wire format
// 直接用protowire手写编解码，字段号见各Marshal
package pb

import (
	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

var ErrBadMessage = errors.New("bad footer message")

// BlockOffset 一个block在列文件中的位置
// FirstKey只在key列(validx)中填充，是block第一行的复合编码key
type BlockOffset struct {
	Offset     uint64 // 1
	Len        uint32 // 2
	FirstRowid uint32 // 3
	FirstKey   []byte // 4
}

func (b *BlockOffset) GetOffset() uint64   { return b.Offset }
func (b *BlockOffset) GetLen() uint32      { return b.Len }
func (b *BlockOffset) GetFirstKey() []byte { return b.FirstKey }

func (b *BlockOffset) Marshal() []byte {
	var buf []byte
	buf = protowire.AppendTag(buf, 1, protowire.VarintType)
	buf = protowire.AppendVarint(buf, b.Offset)
	buf = protowire.AppendTag(buf, 2, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(b.Len))
	buf = protowire.AppendTag(buf, 3, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(b.FirstRowid))
	if len(b.FirstKey) > 0 {
		buf = protowire.AppendTag(buf, 4, protowire.BytesType)
		buf = protowire.AppendBytes(buf, b.FirstKey)
	}
	return buf
}

func (b *BlockOffset) Unmarshal(data []byte) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return errors.Wrap(ErrBadMessage, "BlockOffset tag")
		}
		data = data[n:]
		switch {
		case num == 1 && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(data)
			if m < 0 {
				return errors.Wrap(ErrBadMessage, "BlockOffset.Offset")
			}
			b.Offset = v
			data = data[m:]
		case num == 2 && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(data)
			if m < 0 {
				return errors.Wrap(ErrBadMessage, "BlockOffset.Len")
			}
			b.Len = uint32(v)
			data = data[m:]
		case num == 3 && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(data)
			if m < 0 {
				return errors.Wrap(ErrBadMessage, "BlockOffset.FirstRowid")
			}
			b.FirstRowid = uint32(v)
			data = data[m:]
		case num == 4 && typ == protowire.BytesType:
			v, m := protowire.ConsumeBytes(data)
			if m < 0 {
				return errors.Wrap(ErrBadMessage, "BlockOffset.FirstKey")
			}
			b.FirstKey = append([]byte(nil), v...)
			data = data[m:]
		default:
			m := protowire.ConsumeFieldValue(num, typ, data)
			if m < 0 {
				return errors.Wrap(ErrBadMessage, "BlockOffset unknown field")
			}
			data = data[m:]
		}
	}
	return nil
}

// ColumnIndex 列文件的索引footer
type ColumnIndex struct {
	ValueType uint32         // 1
	NumRows   uint32         // 2
	BlockRows uint32         // 3
	Offsets   []*BlockOffset // 4
	HasValidx bool           // 5
}

func (c *ColumnIndex) GetOffsets() []*BlockOffset { return c.Offsets }
func (c *ColumnIndex) GetNumRows() uint32         { return c.NumRows }

func (c *ColumnIndex) Marshal() []byte {
	var buf []byte
	buf = protowire.AppendTag(buf, 1, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(c.ValueType))
	buf = protowire.AppendTag(buf, 2, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(c.NumRows))
	buf = protowire.AppendTag(buf, 3, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(c.BlockRows))
	for _, off := range c.Offsets {
		buf = protowire.AppendTag(buf, 4, protowire.BytesType)
		buf = protowire.AppendBytes(buf, off.Marshal())
	}
	if c.HasValidx {
		buf = protowire.AppendTag(buf, 5, protowire.VarintType)
		buf = protowire.AppendVarint(buf, 1)
	}
	return buf
}

func (c *ColumnIndex) Unmarshal(data []byte) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return errors.Wrap(ErrBadMessage, "ColumnIndex tag")
		}
		data = data[n:]
		switch {
		case num == 1 && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(data)
			if m < 0 {
				return errors.Wrap(ErrBadMessage, "ColumnIndex.ValueType")
			}
			c.ValueType = uint32(v)
			data = data[m:]
		case num == 2 && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(data)
			if m < 0 {
				return errors.Wrap(ErrBadMessage, "ColumnIndex.NumRows")
			}
			c.NumRows = uint32(v)
			data = data[m:]
		case num == 3 && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(data)
			if m < 0 {
				return errors.Wrap(ErrBadMessage, "ColumnIndex.BlockRows")
			}
			c.BlockRows = uint32(v)
			data = data[m:]
		case num == 4 && typ == protowire.BytesType:
			v, m := protowire.ConsumeBytes(data)
			if m < 0 {
				return errors.Wrap(ErrBadMessage, "ColumnIndex.Offsets")
			}
			off := &BlockOffset{}
			if err := off.Unmarshal(v); err != nil {
				return err
			}
			c.Offsets = append(c.Offsets, off)
			data = data[m:]
		case num == 5 && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(data)
			if m < 0 {
				return errors.Wrap(ErrBadMessage, "ColumnIndex.HasValidx")
			}
			c.HasValidx = v != 0
			data = data[m:]
		default:
			m := protowire.ConsumeFieldValue(num, typ, data)
			if m < 0 {
				return errors.Wrap(ErrBadMessage, "ColumnIndex unknown field")
			}
			data = data[m:]
		}
	}
	return nil
}

// BloomMeta bloom文件的footer
type BloomMeta struct {
	NumKeys    uint32 // 1
	BitsPerKey uint32 // 2
}

func (b *BloomMeta) Marshal() []byte {
	var buf []byte
	buf = protowire.AppendTag(buf, 1, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(b.NumKeys))
	buf = protowire.AppendTag(buf, 2, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(b.BitsPerKey))
	return buf
}

func (b *BloomMeta) Unmarshal(data []byte) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return errors.Wrap(ErrBadMessage, "BloomMeta tag")
		}
		data = data[n:]
		v, m := protowire.ConsumeVarint(data)
		if m < 0 || typ != protowire.VarintType {
			return errors.Wrap(ErrBadMessage, "BloomMeta field")
		}
		switch num {
		case 1:
			b.NumKeys = uint32(v)
		case 2:
			b.BitsPerKey = uint32(v)
		}
		data = data[m:]
	}
	return nil
}

// DeltaStats delta文件的footer
type DeltaStats struct {
	Count       uint32 // 1
	MinRowid    uint32 // 2
	MaxRowid    uint32 // 3
	MinTxid     uint64 // 4
	MaxTxid     uint64 // 5
	RawSize     uint64 // 6
	DeleteCount uint32 // 7
}

func (d *DeltaStats) Marshal() []byte {
	var buf []byte
	put := func(num protowire.Number, v uint64) {
		buf = protowire.AppendTag(buf, num, protowire.VarintType)
		buf = protowire.AppendVarint(buf, v)
	}
	put(1, uint64(d.Count))
	put(2, uint64(d.MinRowid))
	put(3, uint64(d.MaxRowid))
	put(4, d.MinTxid)
	put(5, d.MaxTxid)
	put(6, d.RawSize)
	put(7, uint64(d.DeleteCount))
	return buf
}

func (d *DeltaStats) Unmarshal(data []byte) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return errors.Wrap(ErrBadMessage, "DeltaStats tag")
		}
		data = data[n:]
		v, m := protowire.ConsumeVarint(data)
		if m < 0 || typ != protowire.VarintType {
			return errors.Wrap(ErrBadMessage, "DeltaStats field")
		}
		switch num {
		case 1:
			d.Count = uint32(v)
		case 2:
			d.MinRowid = uint32(v)
		case 3:
			d.MaxRowid = uint32(v)
		case 4:
			d.MinTxid = v
		case 5:
			d.MaxTxid = v
		case 6:
			d.RawSize = v
		case 7:
			d.DeleteCount = uint32(v)
		}
		data = data[m:]
	}
	return nil
}
