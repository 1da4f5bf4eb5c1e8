// schema和key编码
// 一行是按schema排列的一组cell，cell都是编码后的[]byte：
// u32/u64是定宽大端，BYTES是原始串
// key列是schema的一个前缀，复合key的编码保证memcmp序 == 逻辑序
package tablet

import (
	"encoding/binary"

	"cstore/cfile"
	"cstore/utils"

	"github.com/pkg/errors"
)

type ColumnType uint8

const (
	TypeU32 ColumnType = iota + 1
	TypeU64
	TypeBytes
)

// 映射到cfile索引里记录的类型编码
func (t ColumnType) CFileType() uint32 {
	switch t {
	case TypeU32:
		return cfile.TypeU32
	case TypeU64:
		return cfile.TypeU64
	default:
		return cfile.TypeBytes
	}
}

// 定宽类型cell的宽度，变长返回0
func (t ColumnType) FixedWidth() int {
	switch t {
	case TypeU32:
		return 4
	case TypeU64:
		return 8
	default:
		return 0
	}
}

type ColumnSchema struct {
	Name string
	Type ColumnType
}

// Schema 一个rowset内不变
type Schema struct {
	columns       []ColumnSchema
	numKeyColumns int
}

func NewSchema(columns []ColumnSchema, numKeyColumns int) (*Schema, error) {
	if len(columns) == 0 {
		return nil, errors.Wrap(utils.ErrInvalidArgument, "schema needs at least one column")
	}
	if numKeyColumns < 1 || numKeyColumns > len(columns) {
		return nil, errors.Wrapf(utils.ErrInvalidArgument, "bad key column count %d", numKeyColumns)
	}
	seen := make(map[string]struct{}, len(columns))
	for _, col := range columns {
		if _, ok := seen[col.Name]; ok {
			return nil, errors.Wrapf(utils.ErrInvalidArgument, "duplicate column %s", col.Name)
		}
		seen[col.Name] = struct{}{}
	}
	return &Schema{
		columns:       append([]ColumnSchema(nil), columns...),
		numKeyColumns: numKeyColumns,
	}, nil
}

func (s *Schema) NumColumns() int {
	return len(s.columns)
}

func (s *Schema) NumKeyColumns() int {
	return s.numKeyColumns
}

func (s *Schema) Column(i int) ColumnSchema {
	return s.columns[i]
}

func (s *Schema) IsKeyColumn(i int) bool {
	return i < s.numKeyColumns
}

func (s *Schema) Equals(other *Schema) bool {
	if s == other {
		return true
	}
	if other == nil || len(s.columns) != len(other.columns) || s.numKeyColumns != other.numKeyColumns {
		return false
	}
	for i := range s.columns {
		if s.columns[i] != other.columns[i] {
			return false
		}
	}
	return true
}

// ProjectionMapping 把projection的每一列按名字映射到base schema的列号
func (s *Schema) ProjectionMapping(projection *Schema) ([]int, error) {
	mapping := make([]int, projection.NumColumns())
	for i := 0; i < projection.NumColumns(); i++ {
		pcol := projection.Column(i)
		found := -1
		for j, col := range s.columns {
			if col.Name == pcol.Name {
				found = j
				break
			}
		}
		if found < 0 {
			return nil, errors.Wrapf(utils.ErrInvalidArgument, "projection column %s not in schema", pcol.Name)
		}
		if s.columns[found].Type != pcol.Type {
			return nil, errors.Wrapf(utils.ErrInvalidArgument, "projection column %s type mismatch", pcol.Name)
		}
		mapping[i] = found
	}
	return mapping, nil
}

// EncodeKeyCells 将key列的cell编码为可memcmp的复合key
// 整数走memcmpable varint；BYTES用0x00转义 + 0x00 0x00结尾，
// 这样多个编码拼在一起依然保持元组序
func (s *Schema) EncodeKeyCells(keyCells [][]byte) ([]byte, error) {
	if len(keyCells) != s.numKeyColumns {
		return nil, errors.Wrapf(utils.ErrInvalidArgument, "want %d key cells, got %d", s.numKeyColumns, len(keyCells))
	}
	var dst []byte
	for i := 0; i < s.numKeyColumns; i++ {
		cell := keyCells[i]
		switch s.columns[i].Type {
		case TypeU32:
			if len(cell) != 4 {
				return nil, errors.Wrapf(utils.ErrInvalidArgument, "bad u32 key cell width %d", len(cell))
			}
			dst = utils.PutMemcmpableUvarint(dst, uint64(binary.BigEndian.Uint32(cell)))
		case TypeU64:
			if len(cell) != 8 {
				return nil, errors.Wrapf(utils.ErrInvalidArgument, "bad u64 key cell width %d", len(cell))
			}
			dst = utils.PutMemcmpableUvarint(dst, binary.BigEndian.Uint64(cell))
		case TypeBytes:
			for _, b := range cell {
				if b == 0x00 {
					dst = append(dst, 0x00, 0x01)
				} else {
					dst = append(dst, b)
				}
			}
			dst = append(dst, 0x00, 0x00)
		}
	}
	return dst, nil
}

// EncodeKeyFromRow 从一整行里取key前缀编码
func (s *Schema) EncodeKeyFromRow(row [][]byte) ([]byte, error) {
	if len(row) != len(s.columns) {
		return nil, errors.Wrapf(utils.ErrInvalidArgument, "want %d cells, got %d", len(s.columns), len(row))
	}
	return s.EncodeKeyCells(row[:s.numKeyColumns])
}

// cell编解码的小工具
func EncodeU32Cell(v uint32) []byte {
	return utils.Uint32ToBytes(v)
}

func EncodeU64Cell(v uint64) []byte {
	return utils.Uint64ToBytes(v)
}

func DecodeU32Cell(cell []byte) uint32 {
	return utils.Bytes2Uint32(cell)
}

func DecodeU64Cell(cell []byte) uint64 {
	return utils.Bytes2Uint64(cell)
}
