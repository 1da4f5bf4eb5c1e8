// mmap相关的syscall封装
package file

import (
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// mremap的flag：原地放不下时允许内核把映射挪到新地址
// mman.h: #define MREMAP_MAYMOVE 1
const mremapMayMove = 0x1

// 把fd映射到用户态内存；MAP_SHARED让对返回[]byte的写入能同步回文件
func mmap(fd *os.File, writable bool, size int64) ([]byte, error) {
	prot := unix.PROT_READ
	if writable {
		prot |= unix.PROT_WRITE
	}
	return unix.Mmap(int(fd.Fd()), 0, int(size), prot, unix.MAP_SHARED)
}

// 调整映射的大小，内容保留；挪动之后指向旧映射的指针全部失效，
// 调用方只能按offset引用映射里的数据
func mremap(data []byte, size int) ([]byte, error) {
	addr, _, errno := unix.Syscall6(unix.SYS_MREMAP,
		uintptr(unsafe.Pointer(unsafe.SliceData(data))), // void *old_address
		uintptr(len(data)),     // size_t old_size
		uintptr(size),          // size_t new_size
		uintptr(mremapMayMove), // int flags
		0, 0,
	)
	if errno != 0 {
		return nil, errno
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), size), nil
}

// 解除映射
// mremap可能已经把映射挪走了，所以不能走x/sys自己记账的Munmap，直接发syscall
func munmap(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	_, _, errno := unix.Syscall(unix.SYS_MUNMAP,
		uintptr(unsafe.Pointer(unsafe.SliceData(data))),
		uintptr(len(data)),
		0,
	)
	if errno != 0 {
		return errno
	}
	return nil
}

// 把映射里的数据同步写入磁盘，MS_SYNC等写完才返回
func msync(data []byte) error {
	return unix.Msync(data, unix.MS_SYNC)
}
