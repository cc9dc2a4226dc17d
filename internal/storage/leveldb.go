package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
)

// LevelDBBackend stores objects in a local leveldb directory. Each object is
// two entries, "o:<key>" for the body and "u:<key>" for the URL, written in
// one batch.
type LevelDBBackend struct {
	db *leveldb.DB
	mu sync.Mutex // serialises the existence check and write in Put
}

func NewLevelDBBackend(path string) (*LevelDBBackend, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &LevelDBBackend{db: db}, nil
}

func (l *LevelDBBackend) Head(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return l.db.Has([]byte("o:"+key), nil)
}

// Put reads body fully; leveldb values cannot be streamed. An existing object
// is kept; the first write wins.
func (l *LevelDBBackend) Put(ctx context.Context, key string, body io.Reader, size int64, meta Metadata) error {
	b, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	exists, err := l.db.Has([]byte("o:"+key), nil)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	batch := new(leveldb.Batch)
	batch.Put([]byte("o:"+key), b)
	batch.Put([]byte("u:"+key), []byte(meta.URL))
	return l.db.Write(batch, nil)
}

func (l *LevelDBBackend) Get(ctx context.Context, key string) (*StoredObject, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	snap, err := l.db.GetSnapshot()
	if err != nil {
		return nil, false, err
	}
	defer snap.Release()

	b, err := snap.Get([]byte("o:"+key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	u, err := snap.Get([]byte("u:"+key), nil)
	if err != nil && !errors.Is(err, leveldb.ErrNotFound) {
		return nil, false, err
	}
	return &StoredObject{
		Key:  key,
		URL:  string(u),
		Size: int64(len(b)),
		Body: io.NopCloser(bytes.NewReader(b)),
	}, true, nil
}

func (l *LevelDBBackend) Close() error {
	return l.db.Close()
}
