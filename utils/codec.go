// 编解码相关的小工具

package utils

import (
	"encoding/binary"
	"hash/crc32"
	"reflect"
	"unsafe"

	"github.com/pkg/errors"
)

// 计算checksum
func CalculateChecksum(data []byte) uint64 {
	return uint64(crc32.Checksum(data, CastagnoliCrcTable))
}

// 校验checksum，对不上返回ErrCorruption
func VerifyChecksum(data []byte, expected []byte) error {
	actual := CalculateChecksum(data)
	expectedU64 := Bytes2Uint64(expected)
	if actual != expectedU64 {
		return errors.Wrapf(ErrCorruption, "actual: %d, expected: %d", actual, expectedU64)
	}
	return nil
}

// 将byte数组转化为uint32，按照大端读取
func Bytes2Uint32(b []byte) uint32 {
	return binary.BigEndian.Uint32(b)
}

// 将byte数组转化为uint64，按照大端读取
func Bytes2Uint64(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}

// 将uint32转化为byte数组
func Uint32ToBytes(u32 uint32) []byte {
	var buf [U32Size]byte
	binary.BigEndian.PutUint32(buf[:], u32)
	return buf[:]
}

// 将uint64转化为byte数组
func Uint64ToBytes(u64 uint64) []byte {
	var buf [U64Size]byte
	binary.BigEndian.PutUint64(buf[:], u64)
	return buf[:]
}

// 将uint32切片转化为byte数组，不做拷贝
func Uint32Slice2Bytes(u32s []uint32) []byte {
	if len(u32s) == 0 {
		return nil
	}
	var buf []byte
	header := (*reflect.SliceHeader)(unsafe.Pointer(&buf))
	header.Len = len(u32s) * 4
	header.Cap = header.Len
	header.Data = uintptr(unsafe.Pointer(&u32s[0]))
	return buf
}

// 将byte数组转化为uint32切片，不做拷贝
func Bytes2Uint32Slice(buf []byte) []uint32 {
	if len(buf) == 0 {
		return nil
	}
	var u32s []uint32
	header := (*reflect.SliceHeader)(unsafe.Pointer(&u32s))
	header.Len = len(buf) / 4
	header.Cap = header.Len
	header.Data = uintptr(unsafe.Pointer(&buf[0]))
	return u32s
}
