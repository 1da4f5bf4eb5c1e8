package tablet

import (
	"sync"

	"cstore/utils"

	"github.com/RoaringBitmap/roaring/v2"
)

// DeltaKey delta record的排序key
type DeltaKey struct {
	Rowid uint32
	Txid  uint64
}

// skiplist的key：4byte rowid + 8byte txid，都是大端
// skiplist比较规则是先比前缀再升序比8byte后缀，正好是(rowid, txid)升序
func encodeDeltaKey(rowid uint32, txid uint64) []byte {
	buf := make([]byte, 12)
	copy(buf, utils.Uint32ToBytes(rowid))
	copy(buf[4:], utils.Uint64ToBytes(txid))
	return buf
}

func decodeDeltaKey(buf []byte) DeltaKey {
	return DeltaKey{
		Rowid: utils.Bytes2Uint32(buf[:4]),
		Txid:  utils.Bytes2Uint64(buf[4:]),
	}
}

// DeltaRecordView 一条delta：key加上编码后的change
type DeltaRecordView struct {
	Key    DeltaKey
	Change []byte
}

// deltaSource delta的来源：in-memory buffer或者某个delta文件
// 按(rowid, txid)升序产出落在[startRowid, endRowid)内的record
type deltaSource interface {
	CollectForRange(startRowid, endRowid uint32) []DeltaRecordView
}

// DeltaMemStore in-memory delta buffer
// 底层是arena skiplist：writer在mu下串行，reader无锁；
// 迭代器创建之后新插入的txid一定不在迭代器的snapshot里，可见性由MVCC过滤保证
type DeltaMemStore struct {
	sl *utils.SkipList

	// 串行化writer，也保护deletedRows
	mu sync.Mutex
	// 有delete标记的rowid集合，迭代器创建时汇总进tracker的deleted集合
	deletedRows *roaring.Bitmap
	count       int
}

func NewDeltaMemStore(arenaSize int64) *DeltaMemStore {
	if arenaSize <= 0 {
		arenaSize = utils.DefaultArenaSize
	}
	return &DeltaMemStore{
		sl:          utils.NewSkiplist(arenaSize),
		deletedRows: roaring.New(),
	}
}

// Update 记录一条delta；同一个(rowid, txid)再次更新时合并change
func (dms *DeltaMemStore) Update(txid uint64, rowid uint32, change *ChangeList) error {
	dms.mu.Lock()
	defer dms.mu.Unlock()

	key := encodeDeltaKey(rowid, txid)
	encoded := change.Encode()
	if existing := dms.sl.Search(key); existing != nil {
		prev, err := DecodeChangeList(existing)
		if err != nil {
			return err
		}
		encoded = prev.Merge(change).Encode()
	} else {
		dms.count++
	}
	dms.sl.Add(key, encoded)
	if change.IsDelete() {
		dms.deletedRows.Add(rowid)
	}
	return nil
}

// mergeOlder 放回一条比当前buffer里同key记录更早的delta
// flush失败回滚时用；change是更早的那条，已有记录覆盖它
func (dms *DeltaMemStore) mergeOlder(key DeltaKey, change *ChangeList) error {
	dms.mu.Lock()
	defer dms.mu.Unlock()

	encodedKey := encodeDeltaKey(key.Rowid, key.Txid)
	encoded := change.Encode()
	if existing := dms.sl.Search(encodedKey); existing != nil {
		later, err := DecodeChangeList(existing)
		if err != nil {
			return err
		}
		encoded = change.Merge(later).Encode()
	} else {
		dms.count++
	}
	dms.sl.Add(encodedKey, encoded)
	if change.IsDelete() {
		dms.deletedRows.Add(key.Rowid)
	}
	return nil
}

// IsEmpty 是否一条delta都没有
func (dms *DeltaMemStore) IsEmpty() bool {
	return dms.sl.IsEmpty()
}

// Count 不同(rowid, txid)的条数
func (dms *DeltaMemStore) Count() int {
	dms.mu.Lock()
	defer dms.mu.Unlock()
	return dms.count
}

// DeletedRows 有delete标记的rowid集合的拷贝
func (dms *DeltaMemStore) DeletedRows() *roaring.Bitmap {
	dms.mu.Lock()
	defer dms.mu.Unlock()
	return dms.deletedRows.Clone()
}

// CollectForRange 收集[startRowid, endRowid)内的record，(rowid, txid)升序
func (dms *DeltaMemStore) CollectForRange(startRowid, endRowid uint32) []DeltaRecordView {
	var out []DeltaRecordView
	it := dms.sl.NewSkipListIterator()
	defer func() { _ = it.Close() }()
	for it.Seek(encodeDeltaKey(startRowid, 0)); it.Valid(); it.Next() {
		key := decodeDeltaKey(it.Key())
		if key.Rowid >= endRowid {
			break
		}
		// value在arena里，拷出来避免引用skiplist内部内存
		out = append(out, DeltaRecordView{
			Key:    key,
			Change: append([]byte(nil), it.Value()...),
		})
	}
	return out
}
