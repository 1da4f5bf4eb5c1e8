// memcmpable varint：借用sqlite4的变长整数编码
// 编码后的字节序和数值序一致，可以直接memcmp比较；
// 多个编码可以拼接成复合key，拼接后依然保持字典序 == 元组序；
// 编码是自定界的，decoder可以从一段[]byte的开头解析出一个varint并返回剩余部分

package utils

import "github.com/pkg/errors"

// 将v追加到dst后面，返回追加后的dst
func PutMemcmpableUvarint(dst []byte, v uint64) []byte {
	switch {
	case v <= 240:
		return append(dst, byte(v))
	case v <= 2287:
		// 两个byte能表示 [241,2287]
		return append(dst, byte(241+(v-241)/256), byte((v-241)%256))
	case v <= 67823:
		return append(dst, 249, byte((v-2288)/256), byte((v-2288)%256))
	case v <= (1<<24)-1:
		return append(dst, 250, byte(v>>16), byte(v>>8), byte(v))
	case v <= (1<<32)-1:
		return append(dst, 251, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
	case v <= (1<<40)-1:
		return append(dst, 252, byte(v>>32), byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
	case v <= (1<<48)-1:
		return append(dst, 253, byte(v>>40), byte(v>>32), byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
	case v <= (1<<56)-1:
		return append(dst, 254, byte(v>>48), byte(v>>40), byte(v>>32), byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
	default:
		return append(dst, 255, byte(v>>56), byte(v>>48), byte(v>>40), byte(v>>32), byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
	}
}

// 从buf的开头解析出一个varint，返回解析出的值和剩余的部分
func GetMemcmpableUvarint(buf []byte) (v uint64, rest []byte, err error) {
	if len(buf) == 0 {
		return 0, nil, errors.Wrap(ErrCorruption, "empty varint")
	}
	a0 := uint64(buf[0])
	// 第一个byte决定了总长度
	var need int
	switch {
	case a0 <= 240:
		return a0, buf[1:], nil
	case a0 <= 248:
		need = 2
	case a0 == 249:
		need = 3
	default:
		// 250~255对应 3~8 byte的大端整数
		need = int(a0-250) + 4
	}
	if len(buf) < need {
		return 0, nil, errors.Wrapf(ErrCorruption, "truncated varint, need %d bytes", need)
	}
	switch {
	case a0 <= 248:
		v = 241 + (a0-241)*256 + uint64(buf[1])
	case a0 == 249:
		v = 2288 + uint64(buf[1])*256 + uint64(buf[2])
	default:
		for i := 1; i < need; i++ {
			v = v<<8 | uint64(buf[i])
		}
	}
	return v, buf[need:], nil
}
