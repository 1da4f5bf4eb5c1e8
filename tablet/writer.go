package tablet

import (
	"fmt"
	"path/filepath"

	"cstore/cfile"
	"cstore/file"
	"cstore/utils"

	"github.com/pkg/errors"
)

// 返回第colIdx列在rowset目录下的路径
func ColumnPath(dir string, colIdx int) string {
	return filepath.Join(dir, fmt.Sprintf("%s%d", utils.ColumnFilePrefix, colIdx))
}

// 返回第deltaIdx个delta文件的路径
func DeltaPath(dir string, deltaIdx int) string {
	return filepath.Join(dir, fmt.Sprintf("%s%d", utils.DeltaFilePrefix, deltaIdx))
}

// 返回bloom文件的路径
func BloomPath(dir string) string {
	return filepath.Join(dir, utils.BloomFileName)
}

// DiskRowSetWriter 从一串row block构建一个新的rowset目录
// rowid按到达顺序分配；要得到有序的base，调用方要按编码key升序喂行
// （memstore flush和compaction merge天然满足）
// 写到一半失败会留下半成品目录，由调用方删除，writer不做清理
type DiskRowSetWriter struct {
	env    file.Env
	dir    string
	schema *Schema
	opt    *Options

	colBuilders  []*cfile.Builder
	bloomWriter  *cfile.BloomWriter
	writtenCount uint32
	finished     bool
}

// OpenRowSetWriter 创建目录并打开每一列的writer和bloom writer
// key列会带上值索引(validx)；所有列共用同一个block行数节奏，
// 这样跨列按rowid对齐不需要额外的位置索引
func OpenRowSetWriter(env file.Env, schema *Schema, dir string, opt *Options) (*DiskRowSetWriter, error) {
	if opt == nil {
		opt = NewDefaultOptions()
	}
	if env.Exists(dir) {
		return nil, errors.Wrapf(utils.ErrInvalidArgument, "rowset dir already exists: %s", dir)
	}
	if err := env.MkdirAll(dir); err != nil {
		return nil, err
	}

	w := &DiskRowSetWriter{
		env:    env,
		dir:    dir,
		schema: schema,
		opt:    opt,
	}
	for i := 0; i < schema.NumColumns(); i++ {
		col := schema.Column(i)
		// TODO: 编码方式还可以按列配置，先用类型默认值
		w.colBuilders = append(w.colBuilders, cfile.NewBuilder(cfile.BuilderOptions{
			ValueType:  col.Type.CFileType(),
			FixedWidth: col.Type.FixedWidth(),
			BlockRows:  opt.BlockRows,
			// key列的索引里放的都是复合key，FindRow只用第0列的那份
			WriteValidx: schema.IsKeyColumn(i),
		}))
	}
	w.bloomWriter = cfile.NewBloomWriter(opt.BloomFalsePositive)
	return w, nil
}

// AppendBlock 把block追加到每一列，再把每行的编码key插入bloom
func (w *DiskRowSetWriter) AppendBlock(block *RowBlock) error {
	if w.finished {
		return errors.Wrap(utils.ErrFinished, "rowset append")
	}
	if !w.schema.Equals(block.Schema()) {
		return errors.Wrap(utils.ErrInvalidArgument, "block schema mismatch")
	}

	// 每一行的复合编码key：bloom要用，key列的validx也要用
	encodedKeys := make([][]byte, block.NumRows())
	for row := 0; row < block.NumRows(); row++ {
		key, err := w.schema.EncodeKeyFromRow(block.Row(row))
		if err != nil {
			return err
		}
		encodedKeys[row] = key
	}

	for col := 0; col < w.schema.NumColumns(); col++ {
		builder := w.colBuilders[col]
		for row := 0; row < block.NumRows(); row++ {
			if err := builder.Append(block.Cell(col, row), encodedKeys[row]); err != nil {
				return err
			}
		}
	}
	for _, key := range encodedKeys {
		if err := w.bloomWriter.AppendKey(key); err != nil {
			return err
		}
	}
	w.writtenCount += uint32(block.NumRows())
	return nil
}

// WriteRow 单行的便捷封装
func (w *DiskRowSetWriter) WriteRow(row [][]byte) error {
	block := NewRowBlock(w.schema, 1)
	if err := block.AppendRow(row); err != nil {
		return err
	}
	return w.AppendBlock(block)
}

// WrittenCount 已经写入的行数
func (w *DiskRowSetWriter) WrittenCount() uint32 {
	return w.writtenCount
}

// Finish 先依次finish每一列，再finish bloom；只允许调用一次
func (w *DiskRowSetWriter) Finish() error {
	if w.finished {
		return errors.Wrap(utils.ErrFinished, "rowset finish")
	}
	w.finished = true

	for i, builder := range w.colBuilders {
		if err := builder.Finish(ColumnPath(w.dir, i)); err != nil {
			return errors.Wrapf(err, "unable to finish writer for column %d", i)
		}
	}
	if err := w.bloomWriter.Finish(BloomPath(w.dir)); err != nil {
		return errors.Wrap(err, "unable to finish bloom filter writer")
	}
	return w.env.SyncDir(w.dir)
}
