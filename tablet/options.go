package tablet

import "cstore/utils"

// Options rowset级别的参数
type Options struct {
	// 每个block的行数，所有列共用
	BlockRows int
	// bloom filter的目标假阳率
	BloomFalsePositive float64
	// delta buffer的arena初始大小
	ArenaSize int64
	// block cache的容量（block个数）
	CacheBlocks int
}

func NewDefaultOptions() *Options {
	return &Options{
		BlockRows:          utils.DefaultBlockRows,
		BloomFalsePositive: utils.DefaultBloomFalsePositive,
		ArenaSize:          utils.DefaultArenaSize,
		CacheBlocks:        1024,
	}
}
