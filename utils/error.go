package utils

import (
	"fmt"
	"log"
	"path/filepath"
	"runtime"

	"github.com/pkg/errors"
)

// rowset核心对外暴露的错误类别
var (
	// key不在这个rowset中，或者delta指向了越界的rowid；调用方可以去尝试其他rowset
	ErrKeyNotFound = errors.New("Key not found")
	// 文件内容和checksum/行数对不上，这个rowset不可用
	ErrCorruption = errors.New("Data corrupted")
	// 编程性错误：finish之后继续写入、修改key列、schema不匹配
	ErrInvalidArgument = errors.New("Invalid argument")
	// writer已经finish了，不允许再append；属于ErrInvalidArgument的一种
	ErrFinished = fmt.Errorf("%w: Writer already finished", ErrInvalidArgument)
)

func Panic(err error) {
	if err != nil {
		panic(err)
	}
}

func CondPanic(condition bool, err error) {
	if condition {
		Panic(err)
	}
}

// 内部不变式被破坏属于编程性错误，和其他InvalidArgument一样带栈panic出去
func AssertTrue(b bool) {
	if !b {
		panic(errors.Wrap(ErrInvalidArgument, "assertion failed"))
	}
}

func AssertTruef(b bool, format string, args ...interface{}) {
	if !b {
		panic(errors.Wrapf(ErrInvalidArgument, "assertion failed: "+format, args...))
	}
}

// 返回调用点的file:line，日志里定位用
func caller(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "???:0"
	}
	return fmt.Sprintf("%s:%d", filepath.Base(file), line)
}

// Err 记录err和发生的位置，原样返回err
// 只在不值得让调用方中断的路径上用（比如清理失败）
func Err(err error) error {
	if err != nil {
		log.Printf("%s %v", caller(2), err)
	}
	return err
}
