package utils

// 迭代器
type Iterator interface {
	Next()
	Valid() bool
	Rewind()
	Close() error
	Seek(key []byte)
}

// SkipListIterator
type SkipListIterator struct {
	skiplist *SkipList
	node     *skiplistNode
}

// 创建一个新的迭代器
func (s *SkipList) NewSkipListIterator() *SkipListIterator {
	s.IncrRef()
	return &SkipListIterator{skiplist: s}
}

// 返回迭代器当前node的key
func (si *SkipListIterator) Key() []byte {
	return si.skiplist.arena.getKey(si.node.keyoffset, si.node.keysize)
}

// 返回迭代器当前node的value
func (si *SkipListIterator) Value() []byte {
	valoffset, valsize := si.node.getValueMetaData()
	return si.skiplist.arena.getVal(valoffset, valsize)
}

// 跳转到第一个node
func (si *SkipListIterator) SeekToFirst() {
	si.node = si.skiplist.getNextNode(si.skiplist.getHead(), 0)
}

// 跳转到最后一个node
func (si *SkipListIterator) SeekToLast() {
	si.node = si.skiplist.findLast()
}

// 关闭迭代器
func (si *SkipListIterator) Close() error {
	si.skiplist.DecrRef()
	return nil
}

func (si *SkipListIterator) Next() {
	AssertTrue(si.Valid())
	si.node = si.skiplist.getNextNode(si.node, 0)
}

// 判断是否还有效
func (si *SkipListIterator) Valid() bool {
	return si.node != nil
}

// 从头开始
func (si *SkipListIterator) Rewind() {
	si.SeekToFirst()
}

// 找到一个最接近key，且node.key >= key的node
func (si *SkipListIterator) Seek(key []byte) {
	si.node, _ = si.skiplist.findNear(key, false, true)
}
