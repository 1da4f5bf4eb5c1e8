package utils

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bloomKey(i int) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(i))
	return buf
}

// 写进去的key必须都能查到
func TestFilterNoFalseNegative(t *testing.T) {
	const n = 10000
	hashes := make([]uint32, 0, n)
	for i := 0; i < n; i++ {
		hashes = append(hashes, Hash(bloomKey(i)))
	}
	filter := NewFilter(hashes, BitsPerKey(n, 0.01))
	for i := 0; i < n; i++ {
		require.True(t, filter.MayContainKey(bloomKey(i)))
	}
}

// 不存在的key的误判率要被假阳率参数约束住
func TestFilterFalsePositiveRate(t *testing.T) {
	const n = 10000
	hashes := make([]uint32, 0, n)
	for i := 0; i < n; i++ {
		hashes = append(hashes, Hash(bloomKey(i)))
	}
	filter := NewFilter(hashes, BitsPerKey(n, 0.01))

	falsePositive := 0
	const probes = 10000
	for i := n; i < n+probes; i++ {
		if filter.MayContainKey(bloomKey(i)) {
			falsePositive++
		}
	}
	// 留一点余量，不卡死在理论值上
	assert.Less(t, float64(falsePositive)/probes, 0.05)
}

func TestBloomKeyProbe(t *testing.T) {
	key := []byte("some encoded key")
	probe := NewBloomKeyProbe(key)
	require.Equal(t, Hash(key), probe.HashValue())
}
