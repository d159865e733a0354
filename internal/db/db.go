package db

import (
	"context"
	"errors"

	"github.com/sdrshn-nmbr/cleancity/internal/maintenance"
	"github.com/sdrshn-nmbr/cleancity/internal/storage"
	"github.com/sdrshn-nmbr/cleancity/internal/transaction"
	"github.com/sdrshn-nmbr/cleancity/internal/types"
	"go.uber.org/zap"
)

type Options struct {
	Storage    storage.Storage
	Retry      RetryPolicy
	Compaction CompactionOptions
	Logger     *zap.Logger
}

// DB is the persistence adapter the billing service reads and writes its
// roster through.
type DB struct {
	storage   storage.Storage
	retry     RetryPolicy
	log       *zap.Logger
	scheduler *maintenance.CompactionScheduler
	cancel    context.CancelFunc
}

func Open(opts Options) (*DB, error) {
	if opts.Storage == nil {
		return nil, ErrStorageRequired
	}

	retry := opts.Retry
	if retry == (RetryPolicy{}) {
		retry = DefaultRetryPolicy()
	}
	if err := retry.Validate(); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	d := &DB{
		storage: opts.Storage,
		retry:   retry,
		log:     logger.Named("db"),
	}

	scheduler, cancel, err := startCompactionScheduler(opts.Storage, opts.Compaction, d.log)
	if err != nil {
		return nil, err
	}
	d.scheduler = scheduler
	d.cancel = cancel

	return d, nil
}

// Load returns the value stored under key, or storage.ErrKeyNotFound.
func (d *DB) Load(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var value []byte
	err := d.retry.do(ctx, func() error {
		var err error
		value, err = d.storage.Get(types.Key(key))
		return err
	})
	return value, err
}

// Save writes value under key, retrying transient failures per the
// configured policy.
func (d *DB) Save(ctx context.Context, key string, value []byte) error {
	attempts := 0
	err := d.retry.do(ctx, func() error {
		attempts++
		return d.Put([]byte(key), value)
	})
	if err != nil {
		d.log.Warn("save failed", zap.String("key", key), zap.Int("attempts", attempts), zap.Error(err))
		return err
	}
	if attempts > 1 {
		d.log.Info("save succeeded after retry", zap.String("key", key), zap.Int("attempts", attempts))
	}
	d.scheduler.NoteWrite()
	return nil
}

func (d *DB) Put(key []byte, value []byte) error {
	txn := transaction.NewTransaction()
	txn.Put(types.Key(key), types.Value(value))
	return d.ExecuteTransaction(txn)
}

func (d *DB) ExecuteTransaction(txn *transaction.Transaction) error {
	if txn == nil {
		return storage.ErrInvalidTxn
	}
	return d.storage.ExecuteTransaction(txn)
}

// Compact runs a compaction immediately when the backend supports it.
func (d *DB) Compact() (storage.CompactStats, error) {
	compacter, ok := d.storage.(storage.Compacter)
	if !ok {
		return storage.CompactStats{}, ErrCompactionUnsupported
	}
	return compacter.Compact()
}

func (d *DB) Close() error {
	if d.scheduler != nil {
		d.scheduler.Stop()
	}
	if d.cancel != nil {
		d.cancel()
	}
	if err := d.storage.Close(); err != nil {
		return errors.Join(ErrStorageCloseFail, err)
	}
	return nil
}
