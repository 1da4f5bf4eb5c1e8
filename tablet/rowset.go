package tablet

import (
	"sync"

	"cstore/utils"
)

// RowSet rowset的能力集合
// DiskRowSet和DuplicatingRowSet都实现它，tablet按key把操作路由到具体的rowset
type RowSet interface {
	// 检查key是否存在于这个rowset的key域中
	// 被delta删掉的行在base里仍然有key，所以不查delta
	CheckRowPresent(probe *RowSetKeyProbe) (bool, error)

	// 更新/删除一行；key不在这个rowset时返回ErrKeyNotFound，
	// 调用方靠它区分"去别的rowset试试"和真正的错误
	MutateRow(txid uint64, probe *RowSetKeyProbe, change *ChangeList) error

	// 按projection迭代，能看到snap认为已提交的修改
	NewRowIterator(projection *Schema, snap MvccSnapshot) (RowwiseIterator, error)

	// 为compaction提供原始输入流
	NewCompactionInput(snap MvccSnapshot) (*CompactionInput, error)

	// base的行数
	CountRows() (uint32, error)

	// base在磁盘上的大致大小；delta文件暂不计入
	EstimateOnDiskSize() uint64

	// 把这个rowset选为compaction/flush输入前要拿到的锁
	// 防止两个compaction选中同一个rowset
	CompactFlushLock() *sync.Mutex

	Schema() *Schema

	ToString() string

	// 打印所有行和delta，只在测试里用
	DebugDump() ([]string, error)

	// 删除底层存储
	Delete() error
}

// RowSetKeyProbe 探测用的key缓存：原始key cell、编码后的key、bloom探测结构
// 探测多个rowset时这些只算一次；生命周期跟随调用方的原始key
type RowSetKeyProbe struct {
	rawKey     [][]byte
	encodedKey []byte
	bloomProbe utils.BloomKeyProbe
}

// NewRowSetKeyProbe rawKey是key列的cell，不做拷贝
func NewRowSetKeyProbe(schema *Schema, rawKey [][]byte) (*RowSetKeyProbe, error) {
	encodedKey, err := schema.EncodeKeyCells(rawKey)
	if err != nil {
		return nil, err
	}
	return &RowSetKeyProbe{
		rawKey:     rawKey,
		encodedKey: encodedKey,
		bloomProbe: utils.NewBloomKeyProbe(encodedKey),
	}, nil
}

func (p *RowSetKeyProbe) RawKey() [][]byte {
	return p.rawKey
}

func (p *RowSetKeyProbe) EncodedKey() []byte {
	return p.encodedKey
}

func (p *RowSetKeyProbe) BloomProbe() utils.BloomKeyProbe {
	return p.bloomProbe
}
