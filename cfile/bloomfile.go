// bloom文件：base里所有行的编码key构成的bloom filter
// 写入时只攒hash，Finish时按目标假阳率一次性构建
package cfile

import (
	"os"

	"cstore/file"
	"cstore/pb"
	"cstore/utils"

	"github.com/pkg/errors"
)

// BloomWriter
type BloomWriter struct {
	falsePositive float64
	keyHashes     []uint32
	finished      bool
}

func NewBloomWriter(falsePositive float64) *BloomWriter {
	if falsePositive <= 0 {
		falsePositive = utils.DefaultBloomFalsePositive
	}
	return &BloomWriter{falsePositive: falsePositive}
}

// AppendKey 插入一个编码后的key
func (w *BloomWriter) AppendKey(encodedKey []byte) error {
	if w.finished {
		return errors.Wrap(utils.ErrFinished, "bloom append")
	}
	w.keyHashes = append(w.keyHashes, utils.Hash(encodedKey))
	return nil
}

// AppendKeys 批量插入
func (w *BloomWriter) AppendKeys(encodedKeys [][]byte) error {
	for _, key := range encodedKeys {
		if err := w.AppendKey(key); err != nil {
			return err
		}
	}
	return nil
}

// Finish 构建filter并写入path
func (w *BloomWriter) Finish(path string) error {
	if w.finished {
		return errors.Wrap(utils.ErrFinished, "bloom finish")
	}
	w.finished = true

	bitsPerKey := 10
	if len(w.keyHashes) > 0 {
		bitsPerKey = utils.BitsPerKey(len(w.keyHashes), w.falsePositive)
	}
	filter := utils.NewFilter(w.keyHashes, bitsPerKey)

	meta := (&pb.BloomMeta{
		NumKeys:    uint32(len(w.keyHashes)),
		BitsPerKey: uint32(bitsPerKey),
	}).Marshal()
	checksum := utils.Uint64ToBytes(utils.CalculateChecksum(filter))

	/*
		外 ---> 内
		+----------------------------------------------------------+
		| checksum_len | checksum | meta_len | meta | filter bytes |
		+----------------------------------------------------------+
	*/
	size := len(filter) + len(meta) + 4 + len(checksum) + 4
	buf := make([]byte, size)
	written := copy(buf, filter)
	written += copy(buf[written:], meta)
	written += copy(buf[written:], utils.Uint32ToBytes(uint32(len(meta))))
	written += copy(buf[written:], checksum)
	written += copy(buf[written:], utils.Uint32ToBytes(uint32(len(checksum))))
	utils.CondPanic(written != size, errors.New("bloom finish written != size"))

	return writeWholeFile(path, buf)
}

// BloomReader bloom文件的只读视图
type BloomReader struct {
	mf     *file.MmapFile
	filter utils.Filter
	meta   *pb.BloomMeta
	path   string
}

func OpenBloomReader(path string) (*BloomReader, error) {
	mf, err := file.OpenMmapFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, err
	}
	r := &BloomReader{mf: mf, path: path}
	if err := r.init(); err != nil {
		_ = mf.Close()
		return nil, err
	}
	return r, nil
}

func (r *BloomReader) init() error {
	dataSize := len(r.mf.Data)
	if dataSize < 8 {
		return errors.Wrapf(utils.ErrCorruption, "bloom file too short: %s", r.path)
	}
	dataSize -= 4
	buf, err := r.mf.Bytes(dataSize, 4)
	if err != nil {
		return err
	}
	checksumLen := int(utils.Bytes2Uint32(buf))
	if checksumLen != utils.U64Size || dataSize < checksumLen+4 {
		return errors.Wrapf(utils.ErrCorruption, "bad bloom checksum length in %s", r.path)
	}
	dataSize -= checksumLen
	checksum, err := r.mf.Bytes(dataSize, checksumLen)
	if err != nil {
		return err
	}
	dataSize -= 4
	buf, err = r.mf.Bytes(dataSize, 4)
	if err != nil {
		return err
	}
	metaLen := int(utils.Bytes2Uint32(buf))
	if dataSize < metaLen {
		return errors.Wrapf(utils.ErrCorruption, "bad bloom meta length in %s", r.path)
	}
	dataSize -= metaLen
	metaData, err := r.mf.Bytes(dataSize, metaLen)
	if err != nil {
		return err
	}
	meta := &pb.BloomMeta{}
	if err := meta.Unmarshal(metaData); err != nil {
		return errors.Wrapf(err, "while unmarshal bloom meta of %s", r.path)
	}
	filter, err := r.mf.Bytes(0, dataSize)
	if err != nil {
		return err
	}
	if err := utils.VerifyChecksum(filter, checksum); err != nil {
		return errors.Wrapf(err, "bloom filter checksum mismatch in %s", r.path)
	}
	r.meta = meta
	r.filter = utils.Filter(filter)
	return nil
}

// MayContain 用预先算好的probe探测；false表示一定不存在
func (r *BloomReader) MayContain(probe utils.BloomKeyProbe) bool {
	return r.filter.MayContain(probe.HashValue())
}

func (r *BloomReader) NumKeys() uint32 {
	return r.meta.NumKeys
}

func (r *BloomReader) SizeOnDisk() int64 {
	stat, err := r.mf.Fd.Stat()
	utils.Panic(err)
	return stat.Size()
}

func (r *BloomReader) Close() error {
	return r.mf.Close()
}
