package tablet

// MvccSnapshot 挑选哪些txid可见的谓词
// 由外部的事务管理器构造，rowset不解释txid的含义
type MvccSnapshot interface {
	IsCommitted(txid uint64) bool
}

// AllCommittedSnapshot 所有事务都可见，DebugDump用
type AllCommittedSnapshot struct{}

func (AllCommittedSnapshot) IsCommitted(txid uint64) bool {
	return true
}

// NoneCommittedSnapshot 所有事务都不可见
type NoneCommittedSnapshot struct{}

func (NoneCommittedSnapshot) IsCommitted(txid uint64) bool {
	return false
}

// TxidSetSnapshot 显式给出已提交txid集合
type TxidSetSnapshot struct {
	committed map[uint64]struct{}
}

func NewTxidSetSnapshot(txids ...uint64) *TxidSetSnapshot {
	committed := make(map[uint64]struct{}, len(txids))
	for _, txid := range txids {
		committed[txid] = struct{}{}
	}
	return &TxidSetSnapshot{committed: committed}
}

func (s *TxidSetSnapshot) IsCommitted(txid uint64) bool {
	_, ok := s.committed[txid]
	return ok
}
