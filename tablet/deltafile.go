package tablet

import (
	"os"

	"cstore/file"
	"cstore/pb"
	"cstore/utils"

	"github.com/cespare/xxhash/v2"
	"github.com/golang/snappy"
	"github.com/pkg/errors"
)

/*
	delta文件：按(rowid, txid)排好序的immutable record集合
	record体积小、数量多，整体snappy压缩；checksum用xxhash64

	文件整体结构：外 ---> 内
	+--------------------------------------------------------------------+
	| checksum_len | checksum | stats_len | stats | snappy(record data)  |
	+--------------------------------------------------------------------+

	record：
	+-------------------------------------------+
	| rowid u32 | txid u64 | len u32 | change   |
	+-------------------------------------------+
*/

// DeltaFileWriter 把一批排好序的record写成一个delta文件
type DeltaFileWriter struct {
	records  []DeltaRecordView
	finished bool
}

func NewDeltaFileWriter() *DeltaFileWriter {
	return &DeltaFileWriter{}
}

// Append record必须按(rowid, txid)升序到达
func (w *DeltaFileWriter) Append(rec DeltaRecordView) error {
	if w.finished {
		return errors.Wrap(utils.ErrFinished, "delta append")
	}
	if n := len(w.records); n > 0 {
		last := w.records[n-1].Key
		if rec.Key.Rowid < last.Rowid || (rec.Key.Rowid == last.Rowid && rec.Key.Txid <= last.Txid) {
			return errors.Wrapf(utils.ErrInvalidArgument,
				"delta out of order: (%d,%d) after (%d,%d)", rec.Key.Rowid, rec.Key.Txid, last.Rowid, last.Txid)
		}
	}
	w.records = append(w.records, rec)
	return nil
}

// Finish 编码、压缩并写入path
func (w *DeltaFileWriter) Finish(path string) error {
	if w.finished {
		return errors.Wrap(utils.ErrFinished, "delta finish")
	}
	w.finished = true

	stats := &pb.DeltaStats{}
	var body []byte
	for i, rec := range w.records {
		body = append(body, utils.Uint32ToBytes(rec.Key.Rowid)...)
		body = append(body, utils.Uint64ToBytes(rec.Key.Txid)...)
		body = append(body, utils.Uint32ToBytes(uint32(len(rec.Change)))...)
		body = append(body, rec.Change...)

		if i == 0 {
			stats.MinRowid = rec.Key.Rowid
			stats.MinTxid = rec.Key.Txid
			stats.MaxTxid = rec.Key.Txid
		}
		stats.MaxRowid = rec.Key.Rowid
		if rec.Key.Txid < stats.MinTxid {
			stats.MinTxid = rec.Key.Txid
		}
		if rec.Key.Txid > stats.MaxTxid {
			stats.MaxTxid = rec.Key.Txid
		}
		change, err := DecodeChangeList(rec.Change)
		if err != nil {
			return err
		}
		if change.IsDelete() {
			stats.DeleteCount++
		}
	}
	stats.Count = uint32(len(w.records))
	stats.RawSize = uint64(len(body))

	compressed := snappy.Encode(nil, body)
	statsData := stats.Marshal()
	checksum := utils.Uint64ToBytes(xxhash.Sum64(compressed))

	size := len(compressed) + len(statsData) + 4 + len(checksum) + 4
	buf := make([]byte, 0, size)
	buf = append(buf, compressed...)
	buf = append(buf, statsData...)
	buf = append(buf, utils.Uint32ToBytes(uint32(len(statsData)))...)
	buf = append(buf, checksum...)
	buf = append(buf, utils.Uint32ToBytes(uint32(len(checksum)))...)

	mf, err := file.OpenMmapFile(path, os.O_CREATE|os.O_RDWR, len(buf))
	if err != nil {
		return err
	}
	if err := mf.AppendBuffer(0, buf); err != nil {
		_ = mf.Close()
		return err
	}
	if err := mf.Sync(); err != nil {
		_ = mf.Close()
		return err
	}
	return mf.Close()
}

// DeltaFileReader 一个delta文件的只读视图
// 打开时一次性解压到内存，record按(rowid, txid)有序
type DeltaFileReader struct {
	path       string
	records    []DeltaRecordView
	stats      *pb.DeltaStats
	sizeOnDisk int64
}

func OpenDeltaFileReader(path string) (*DeltaFileReader, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open delta file: %s", path)
	}
	r := &DeltaFileReader{path: path, sizeOnDisk: int64(len(raw))}
	if err := r.init(raw); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *DeltaFileReader) init(raw []byte) error {
	if len(raw) < 8 {
		return errors.Wrapf(utils.ErrCorruption, "delta file too short: %s", r.path)
	}
	end := len(raw) - 4
	checksumLen := int(utils.Bytes2Uint32(raw[end:]))
	if checksumLen != utils.U64Size || end < checksumLen+4 {
		return errors.Wrapf(utils.ErrCorruption, "bad delta checksum length in %s", r.path)
	}
	end -= checksumLen
	checksum := utils.Bytes2Uint64(raw[end : end+checksumLen])
	end -= 4
	statsLen := int(utils.Bytes2Uint32(raw[end:]))
	if end < statsLen {
		return errors.Wrapf(utils.ErrCorruption, "bad delta stats length in %s", r.path)
	}
	end -= statsLen
	stats := &pb.DeltaStats{}
	if err := stats.Unmarshal(raw[end : end+statsLen]); err != nil {
		return errors.Wrapf(err, "while unmarshal delta stats of %s", r.path)
	}
	compressed := raw[:end]
	if xxhash.Sum64(compressed) != checksum {
		return errors.Wrapf(utils.ErrCorruption, "delta checksum mismatch in %s", r.path)
	}
	body, err := snappy.Decode(nil, compressed)
	if err != nil {
		return errors.Wrapf(utils.ErrCorruption, "while decompress delta file %s: %v", r.path, err)
	}

	records := make([]DeltaRecordView, 0, stats.Count)
	for len(body) > 0 {
		if len(body) < 16 {
			return errors.Wrapf(utils.ErrCorruption, "delta record truncated in %s", r.path)
		}
		rowid := utils.Bytes2Uint32(body[:4])
		txid := utils.Bytes2Uint64(body[4:12])
		changeLen := int(utils.Bytes2Uint32(body[12:16]))
		body = body[16:]
		if len(body) < changeLen {
			return errors.Wrapf(utils.ErrCorruption, "delta change truncated in %s", r.path)
		}
		records = append(records, DeltaRecordView{
			Key:    DeltaKey{Rowid: rowid, Txid: txid},
			Change: append([]byte(nil), body[:changeLen]...),
		})
		body = body[changeLen:]
	}
	if uint32(len(records)) != stats.Count {
		return errors.Wrapf(utils.ErrCorruption, "delta count mismatch in %s: %d != %d", r.path, len(records), stats.Count)
	}
	r.records = records
	r.stats = stats
	return nil
}

func (r *DeltaFileReader) Stats() *pb.DeltaStats {
	return r.stats
}

func (r *DeltaFileReader) SizeOnDisk() int64 {
	return r.sizeOnDisk
}

// CollectForRange 二分找到起点，收集[startRowid, endRowid)内的record
func (r *DeltaFileReader) CollectForRange(startRowid, endRowid uint32) []DeltaRecordView {
	lo, hi := 0, len(r.records)
	for lo < hi {
		mid := (lo + hi) / 2
		if r.records[mid].Key.Rowid < startRowid {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	var out []DeltaRecordView
	for i := lo; i < len(r.records) && r.records[i].Key.Rowid < endRowid; i++ {
		out = append(out, r.records[i])
	}
	return out
}

// DeletedRowsIn delta文件里带delete标记的rowid
func (r *DeltaFileReader) DeletedRowsIn() ([]uint32, error) {
	var out []uint32
	for _, rec := range r.records {
		change, err := DecodeChangeList(rec.Change)
		if err != nil {
			return nil, err
		}
		if change.IsDelete() {
			out = append(out, rec.Key.Rowid)
		}
	}
	return out, nil
}
