package storage

type CompactStats struct {
	EntriesTotal   uint32
	EntriesWritten uint32
	BytesBefore    uint64
	BytesAfter     uint64
}

// Compacter is implemented by backends whose files grow with every write.
type Compacter interface {
	Compact() (CompactStats, error)
}
