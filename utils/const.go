package utils

import (
	"hash/crc32"
	"os"
	"unsafe"
)

// rowset目录内的文件命名
const (
	// 每个列一个文件：col_0、col_1 ...
	ColumnFilePrefix = "col_"
	// bloom文件
	BloomFileName = "bloom"
	// delta文件：delta_0、delta_1 ...，编号单调递增
	DeltaFilePrefix = "delta_"
	// 写入过程中的临时目录后缀，启动扫描时可以直接清理
	TmpRowSetSuffix = ".tmp"
	// 删除过程中的目录后缀，先rename再递归删除，崩溃后启动扫描可以接着删
	DeletingRowSetSuffix = ".deleting"

	DefaultFileFlag = os.O_RDWR | os.O_CREATE
	DefaultFileMode = 0666
)

// 默认参数
const (
	// 每个block固定的行数，所有列用同一个值，这样rowid到block的映射是隐式的
	DefaultBlockRows = 256
	// bloom filter的目标假阳率
	DefaultBloomFalsePositive = 0.01
	// delta memstore的arena初始大小
	DefaultArenaSize int64 = 1 << 20
)

// codec
var (
	// CastagnoliCrcTable is a CRC32 polynomial table
	CastagnoliCrcTable = crc32.MakeTable(crc32.Castagnoli)
)

const U32Size = int(unsafe.Sizeof(uint32(0)))
const U64Size = int(unsafe.Sizeof(uint64(0)))
