package storage

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/devghori1264/aerophoenix/edgefleet/internal/models"
)

var (
	jobPrefix   = []byte("job/")
	indexPrefix = []byte("jobid/")
	seqKey      = []byte("seq/job")
)

// BadgerStore implements JobStore with Badger DB. Records live under
// "job/<seq>" so iteration follows insertion order; "jobid/<job_id>" maps
// the unique field to its record key.
type BadgerStore struct {
	db  *badger.DB
	seq *badger.Sequence
}

func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(filepath.Clean(path))
	opts.Logger = nil                         // disable badger logs
	opts = opts.WithValueLogFileSize(1 << 20) // smaller value log for local dev
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger %s: %w", path, err)
	}
	seq, err := db.GetSequence(seqKey, 64)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("job sequence: %w", err)
	}
	return &BadgerStore{db: db, seq: seq}, nil
}

func (s *BadgerStore) Close() error {
	if err := s.seq.Release(); err != nil {
		s.db.Close()
		return err
	}
	return s.db.Close()
}

func recordKey(n uint64) []byte {
	k := make([]byte, len(jobPrefix)+8)
	copy(k, jobPrefix)
	binary.BigEndian.PutUint64(k[len(jobPrefix):], n)
	return k
}

func indexKey(jobID string) []byte {
	return append(append([]byte{}, indexPrefix...), jobID...)
}

func (s *BadgerStore) GetAll(ctx context.Context) ([]models.Job, error) {
	var out []models.Job
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = jobPrefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var j models.Job
			if err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &j)
			}); err != nil {
				return err
			}
			out = append(out, j)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BadgerStore) Search(ctx context.Context, field string, value any) ([]models.Job, error) {
	if field == models.FieldJobID {
		id, ok := value.(string)
		if !ok {
			return nil, models.ErrFieldValue
		}
		j, err := s.get(id)
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return []models.Job{j}, nil
	}
	all, err := s.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	return filter(all, field, value)
}

func (s *BadgerStore) get(jobID string) (models.Job, error) {
	var out models.Job
	err := s.db.View(func(txn *badger.Txn) error {
		key, err := lookup(txn, jobID)
		if err != nil {
			return err
		}
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			return json.Unmarshal(v, &out)
		})
	})
	return out, err
}

func lookup(txn *badger.Txn, jobID string) ([]byte, error) {
	item, err := txn.Get(indexKey(jobID))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, fmt.Errorf("job %s: %w", jobID, ErrNotFound)
		}
		return nil, err
	}
	return item.ValueCopy(nil)
}

func (s *BadgerStore) Insert(ctx context.Context, job models.Job) (models.Job, error) {
	job, err := prepare(job, uuid.NewString)
	if err != nil {
		return models.Job{}, err
	}
	n, err := s.seq.Next()
	if err != nil {
		return models.Job{}, fmt.Errorf("next job sequence: %w", err)
	}
	key := recordKey(n)
	data, err := json.Marshal(job)
	if err != nil {
		return models.Job{}, err
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(indexKey(job.ID)); err == nil {
			return fmt.Errorf("job %s: %w", job.ID, ErrDuplicate)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set(key, data); err != nil {
			return err
		}
		return txn.Set(indexKey(job.ID), key)
	})
	if err != nil {
		return models.Job{}, err
	}
	return job, nil
}

func (s *BadgerStore) Update(ctx context.Context, jobID, field string, value any) error {
	return s.db.Update(func(txn *badger.Txn) error {
		key, err := lookup(txn, jobID)
		if err != nil {
			return err
		}
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		var j models.Job
		if err := item.Value(func(v []byte) error {
			return json.Unmarshal(v, &j)
		}); err != nil {
			return err
		}
		if err := j.SetField(field, value); err != nil {
			return err
		}
		data, err := json.Marshal(j.Normalize())
		if err != nil {
			return err
		}
		return txn.Set(key, data)
	})
}
