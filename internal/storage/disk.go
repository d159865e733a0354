package storage

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"sync"

	"github.com/sdrshn-nmbr/cleancity/internal/transaction"
	"github.com/sdrshn-nmbr/cleancity/internal/types"
	"golang.org/x/exp/mmap"
)

// DiskStorage is an append-only record file. Every write appends one
// batch of records and fsyncs; reads go through a read-only mmap of the
// file and an in-memory index of the latest offset per key.
type DiskStorage struct {
	path  string
	file  *os.File
	mmap  *mmap.ReaderAt
	size  int64
	index map[string]valueRef
	mu    sync.RWMutex
}

type valueRef struct {
	offset int64
	length uint32
}

var renameFile = os.Rename

const (
	recordPut    byte = 1
	recordDelete byte = 2

	// Format: [op (1)][key length (4)][key][value length (4)][value]
	recordHeaderSize = 1 + 4 + 4
)

func NewDiskStorage(filename string) (*DiskStorage, error) {
	if filename == "" {
		return nil, ErrInvalidPath
	}

	file, err := os.OpenFile(filename, os.O_RDWR|os.O_CREATE, 0666)
	if err != nil {
		return nil, err
	}

	d := &DiskStorage{
		path:  filename,
		file:  file,
		index: make(map[string]valueRef),
	}
	if err := d.remapFile(); err != nil {
		file.Close()
		return nil, err
	}
	if err := d.rebuildIndex(); err != nil {
		d.mmap.Close()
		file.Close()
		return nil, err
	}

	return d, nil
}

func (d *DiskStorage) Get(key types.Key) (types.Value, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.file == nil {
		return nil, ErrStorageClosed
	}
	ref, ok := d.index[string(key)]
	if !ok {
		return nil, ErrKeyNotFound
	}

	value := make([]byte, ref.length)
	if _, err := d.mmap.ReadAt(value, ref.offset); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return value, nil
}

func (d *DiskStorage) Put(key types.Key, value types.Value) error {
	txn := transaction.NewTransaction()
	txn.Put(key, value)
	return d.ExecuteTransaction(txn)
}

func (d *DiskStorage) Delete(key types.Key) error {
	txn := transaction.NewTransaction()
	txn.Delete(key)
	return d.ExecuteTransaction(txn)
}

// ExecuteTransaction appends every operation of t in a single write.
// Nothing is written if a delete targets a missing key.
func (d *DiskStorage) ExecuteTransaction(t *transaction.Transaction) error {
	if t == nil {
		return ErrInvalidTxn
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.file == nil {
		t.Status = transaction.Aborted
		return ErrStorageClosed
	}

	staged := make(map[string]bool)
	var buf bytes.Buffer
	for _, op := range t.Operations {
		switch op.Type {
		case types.Put:
			staged[string(op.Key)] = true
			writeRecord(&buf, recordPut, op.Key, op.Value)
		case types.Delete:
			exists, seen := staged[string(op.Key)]
			if !seen {
				_, exists = d.index[string(op.Key)]
			}
			if !exists {
				t.Status = transaction.Aborted
				return ErrKeyNotFound
			}
			staged[string(op.Key)] = false
			writeRecord(&buf, recordDelete, op.Key, nil)
		}
	}
	if buf.Len() == 0 {
		t.Status = transaction.Committed
		return nil
	}

	// We need to write to the file directly, as mmap is read-only
	start := d.size
	if _, err := d.file.WriteAt(buf.Bytes(), start); err != nil {
		t.Status = transaction.Aborted
		return err
	}
	if err := d.file.Sync(); err != nil {
		t.Status = transaction.Aborted
		return err
	}
	if err := d.remapFile(); err != nil {
		t.Status = transaction.Aborted
		return err
	}
	if _, err := d.scanRecords(start, d.applyRecord); err != nil {
		t.Status = transaction.Aborted
		return err
	}

	t.Status = transaction.Committed
	return nil
}

// Compact rewrites the file with only the live value of each key.
func (d *DiskStorage) Compact() (CompactStats, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.file == nil {
		return CompactStats{}, ErrStorageClosed
	}

	stats := CompactStats{
		EntriesTotal: uint32(len(d.index)),
		BytesBefore:  uint64(d.size),
	}

	var buf bytes.Buffer
	for key, ref := range d.index {
		value := make([]byte, ref.length)
		if _, err := d.mmap.ReadAt(value, ref.offset); err != nil && !errors.Is(err, io.EOF) {
			return stats, err
		}
		writeRecord(&buf, recordPut, types.Key(key), value)
		stats.EntriesWritten++
	}

	tempPath := d.path + ".compact"
	if err := os.WriteFile(tempPath, buf.Bytes(), 0666); err != nil {
		_ = os.Remove(tempPath)
		return stats, err
	}

	if err := d.mmap.Close(); err != nil {
		_ = os.Remove(tempPath)
		return stats, err
	}
	d.mmap = nil
	if err := d.file.Close(); err != nil {
		_ = os.Remove(tempPath)
		return stats, d.reopen(err)
	}
	if err := renameFile(tempPath, d.path); err != nil {
		_ = os.Remove(tempPath)
		return stats, d.reopen(err)
	}
	if err := d.reopen(nil); err != nil {
		return stats, err
	}

	stats.BytesAfter = uint64(d.size)
	return stats, nil
}

// reopen maps d.path again after its handles were closed and returns
// cause joined with any reopen error. If reopening fails the store is left
// closed, so later calls fail with ErrStorageClosed.
func (d *DiskStorage) reopen(cause error) error {
	d.file, d.mmap = nil, nil

	file, err := os.OpenFile(d.path, os.O_RDWR, 0666)
	if err != nil {
		return errors.Join(cause, err)
	}
	d.file = file
	d.index = make(map[string]valueRef)
	err = d.remapFile()
	if err == nil {
		err = d.rebuildIndex()
	}
	if err != nil {
		if d.mmap != nil {
			_ = d.mmap.Close()
			d.mmap = nil
		}
		_ = file.Close()
		d.file = nil
		return errors.Join(cause, err)
	}
	return cause
}

func (d *DiskStorage) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.file == nil {
		return nil
	}
	if err := d.mmap.Close(); err != nil {
		return err
	}
	err := d.file.Close()
	d.file = nil
	return err
}

func (d *DiskStorage) rebuildIndex() error {
	end, err := d.scanRecords(0, d.applyRecord)
	if err != nil {
		return err
	}
	if end != d.size {
		return ErrCorruptData
	}
	return nil
}

func (d *DiskStorage) applyRecord(op byte, key string, ref valueRef) {
	switch op {
	case recordPut:
		d.index[key] = ref
	case recordDelete:
		delete(d.index, key)
	}
}

// scanRecords walks records from offset to the end of the mapped file and
// returns the offset just past the last complete record.
func (d *DiskStorage) scanRecords(offset int64, fn func(op byte, key string, ref valueRef)) (int64, error) {
	header := make([]byte, 5)
	lenBytes := make([]byte, 4)
	for offset < d.size {
		if d.size-offset < recordHeaderSize {
			return offset, ErrCorruptData
		}
		if _, err := d.mmap.ReadAt(header, offset); err != nil {
			return offset, err
		}
		op := header[0]
		if op != recordPut && op != recordDelete {
			return offset, ErrCorruptData
		}
		keyLen := int64(binary.LittleEndian.Uint32(header[1:]))
		pos := offset + 5

		if d.size-pos < keyLen+4 {
			return offset, ErrCorruptData
		}
		key := make([]byte, keyLen)
		if _, err := d.mmap.ReadAt(key, pos); err != nil {
			return offset, err
		}
		pos += keyLen

		if _, err := d.mmap.ReadAt(lenBytes, pos); err != nil {
			return offset, err
		}
		valLen := binary.LittleEndian.Uint32(lenBytes)
		pos += 4

		if d.size-pos < int64(valLen) {
			return offset, ErrCorruptData
		}
		fn(op, string(key), valueRef{offset: pos, length: valLen})
		offset = pos + int64(valLen)
	}
	return offset, nil
}

func (d *DiskStorage) remapFile() error {
	// Close the existing mmap
	if d.mmap != nil {
		if err := d.mmap.Close(); err != nil {
			return err
		}
	}

	// Re-open the mmap
	mmapFile, err := mmap.Open(d.path)
	if err != nil {
		return err
	}
	d.mmap = mmapFile
	d.size = int64(mmapFile.Len())

	return nil
}

func writeRecord(buf *bytes.Buffer, op byte, key types.Key, value types.Value) {
	buf.WriteByte(op)
	buf.Write(uint32ToBytes(uint32(len(key))))
	buf.WriteString(string(key))
	buf.Write(uint32ToBytes(uint32(len(value))))
	buf.Write(value)
}

func uint32ToBytes(u uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, u)
	return b
}
