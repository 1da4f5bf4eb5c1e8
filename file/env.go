package file

import (
	"os"

	"github.com/pkg/errors"
)

// Env 文件系统操作的抽象，rowset通过它来创建/改名/删除目录
// 生产实现就是本地文件系统，测试中配合临时目录使用
type Env interface {
	// 创建目录，父目录不存在时一并创建
	MkdirAll(dir string) error
	// 原子改名
	Rename(oldPath, newPath string) error
	// 递归删除
	RemoveAll(path string) error
	// 列出目录下的所有文件名
	List(dir string) ([]string, error)
	// 判断路径是否存在
	Exists(path string) bool
	// 同步目录项
	SyncDir(dir string) error
}

// OSEnv 本地文件系统实现
type OSEnv struct{}

func NewOSEnv() *OSEnv {
	return &OSEnv{}
}

func (e *OSEnv) MkdirAll(dir string) error {
	return errors.Wrapf(os.MkdirAll(dir, 0755), "while mkdir %s", dir)
}

func (e *OSEnv) Rename(oldPath, newPath string) error {
	return errors.Wrapf(os.Rename(oldPath, newPath), "while rename %s -> %s", oldPath, newPath)
}

func (e *OSEnv) RemoveAll(path string) error {
	return errors.Wrapf(os.RemoveAll(path), "while remove %s", path)
}

func (e *OSEnv) List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "while listing %s", dir)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	return names, nil
}

func (e *OSEnv) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (e *OSEnv) SyncDir(dir string) error {
	return SyncDir(dir)
}
