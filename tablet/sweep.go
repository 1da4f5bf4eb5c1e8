package tablet

import (
	"path/filepath"
	"strings"

	"cstore/file"
	"cstore/utils"
)

// SweepTransients 启动时清理tablet目录下的过渡目录：
//   - <dir>.deleting：delete()在rename和递归删除之间崩溃留下的，接着删完
//   - <dir>.tmp：写到一半被放弃的rowset
//
// 返回清掉的路径
func SweepTransients(env file.Env, tabletDir string) ([]string, error) {
	names, err := env.List(tabletDir)
	if err != nil {
		return nil, err
	}
	var swept []string
	for _, name := range names {
		if !strings.HasSuffix(name, utils.DeletingRowSetSuffix) &&
			!strings.HasSuffix(name, utils.TmpRowSetSuffix) {
			continue
		}
		path := filepath.Join(tabletDir, name)
		if err := env.RemoveAll(path); err != nil {
			return swept, err
		}
		swept = append(swept, path)
	}
	return swept, nil
}
