package commandlog

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/Kernelock/voltdb/pkg/ids"
	"github.com/Kernelock/voltdb/pkg/sps"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketCommandLog = []byte("commandlog")
	bucketFaultLog   = []byte("faultlog")
)

// BoltLog is a bbolt-backed sps.CommandLog: every entry is appended under
// a big-endian H key so ForEach iteration (used by recovery on restart,
// not by the dispatch path) naturally yields handle order, following the
// same bucket-per-entity, JSON-marshaled-value approach as the teacher's
// BoltStore.
type BoltLog struct {
	db   *bolt.DB
	mode sps.LogMode
}

// Open creates or opens a BoltLog rooted at dataDir/commandlog.db.
func Open(dataDir string, mode sps.LogMode) (*BoltLog, error) {
	dbPath := filepath.Join(dataDir, "commandlog.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open command log: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketCommandLog); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketFaultLog)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltLog{db: db, mode: mode}, nil
}

// Close closes the underlying database.
func (l *BoltLog) Close() error {
	return l.db.Close()
}

// Mode implements sps.CommandLog.
func (l *BoltLog) Mode() sps.LogMode {
	return l.mode
}

// Append implements sps.CommandLog. The write happens on its own
// goroutine; the returned Future resolves once it completes, mirroring
// raft.ApplyFuture's Error()-after-blocking shape (see pkg/sps.Future's
// doc comment).
func (l *BoltLog) Append(ctx context.Context, entry sps.LogEntry) sps.Future {
	f := &appendFuture{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		f.err = l.writeEntry(entry)
	}()
	return f
}

// AppendSync implements sps.CommandLog: blocks until the entry is durable.
func (l *BoltLog) AppendSync(ctx context.Context, entry sps.LogEntry) error {
	return l.writeEntry(entry)
}

func (l *BoltLog) writeEntry(entry sps.LogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal log entry: %w", err)
	}
	key := handleKey(entry.H)
	return l.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCommandLog)
		return b.Put(key, data)
	})
}

// WriteFaultLog implements sps.CommandLog: persists the viable-replay
// fault log entry spec.md §6 names as the only other on-disk state the
// scheduler owns, keyed by its fault handle.
func (l *BoltLog) WriteFaultLog(ctx context.Context, entry sps.FaultLogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal fault log entry: %w", err)
	}
	key := handleKey(entry.HFault)
	return l.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketFaultLog)
		return b.Put(key, data)
	})
}

// ReadAll returns every logged command entry in ascending H order, for
// recovery on restart.
func (l *BoltLog) ReadAll() ([]sps.LogEntry, error) {
	var entries []sps.LogEntry
	err := l.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCommandLog)
		return b.ForEach(func(k, v []byte) error {
			var entry sps.LogEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return err
			}
			entries = append(entries, entry)
			return nil
		})
	})
	return entries, err
}

func handleKey(h ids.SpHandle) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(h))
	return key
}

// appendFuture implements sps.Future over a completion channel.
type appendFuture struct {
	done chan struct{}
	err  error
}

func (f *appendFuture) Error() error {
	<-f.done
	return f.err
}
