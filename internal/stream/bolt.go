package stream

import (
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"go.etcd.io/bbolt"

	"github.com/tuannm99/novagather/internal/alias/bx"
)

var (
	topicsBucket  = []byte("topics")
	partitionsKey = []byte("partitions")
	smallestKey   = []byte("smallest")
	largestKey    = []byte("largest")
)

// Store keeps topic partition counts and offset ranges in a bbolt file:
//
//	topics/<topic>/partitions    = i32
//	topics/<topic>/<n>/smallest  = i64
//	topics/<topic>/<n>/largest   = i64
//
// Offsets are little-endian. largest is the next offset to be written.
type Store struct {
	db *bbolt.DB
}

func OpenStore(path string) (*Store, error) {
	opt := *bbolt.DefaultOptions
	opt.Timeout = time.Second
	db, err := bbolt.Open(path, 0o644, &opt)
	if err != nil {
		return nil, fmt.Errorf("stream: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(topicsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("stream: init: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// CreateTopic registers topic with n empty partitions. Existing partitions
// are kept; n may only grow.
func (s *Store) CreateTopic(topic string, n int) error {
	if n <= 0 {
		return fmt.Errorf("stream: topic %s needs at least one partition", topic)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		tb, err := tx.Bucket(topicsBucket).CreateBucketIfNotExists([]byte(topic))
		if err != nil {
			return err
		}
		if cur := tb.Get(partitionsKey); cur != nil && int(bx.I32(cur)) > n {
			return fmt.Errorf("stream: topic %s has %d partitions, cannot shrink to %d", topic, bx.I32(cur), n)
		}
		for p := 0; p < n; p++ {
			pb, err := tb.CreateBucketIfNotExists(partitionKey(p))
			if err != nil {
				return err
			}
			if pb.Get(largestKey) == nil {
				if err := putOffset(pb, smallestKey, 0); err != nil {
					return err
				}
				if err := putOffset(pb, largestKey, 0); err != nil {
					return err
				}
			}
		}
		return tb.Put(partitionsKey, bx.AppendI32(nil, int32(n)))
	})
}

// Append records count new messages on a partition and returns the new
// largest offset.
func (s *Store) Append(topic string, partition int, count int64) (int64, error) {
	var next int64
	err := s.db.Update(func(tx *bbolt.Tx) error {
		pb, err := partitionBucket(tx, topic, partition)
		if err != nil {
			return err
		}
		next = bx.I64(pb.Get(largestKey)) + count
		return putOffset(pb, largestKey, next)
	})
	return next, err
}

// Truncate drops messages below offset, as retention would.
func (s *Store) Truncate(topic string, partition int, offset int64) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		pb, err := partitionBucket(tx, topic, partition)
		if err != nil {
			return err
		}
		if largest := bx.I64(pb.Get(largestKey)); offset > largest {
			return fmt.Errorf("stream: truncate %s/%d to %d beyond largest %d", topic, partition, offset, largest)
		}
		return putOffset(pb, smallestKey, offset)
	})
}

// Provider returns a MetadataProvider for one partition of topic.
func (s *Store) Provider(topic string, partition int) *BoltProvider {
	return &BoltProvider{store: s, topic: topic, partition: partition}
}

func (s *Store) partitionCount(topic string) (int, error) {
	var n int
	err := s.db.View(func(tx *bbolt.Tx) error {
		tb := tx.Bucket(topicsBucket).Bucket([]byte(topic))
		if tb == nil {
			return fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
		}
		n = int(bx.I32(tb.Get(partitionsKey)))
		return nil
	})
	return n, err
}

func (s *Store) offset(topic string, partition int, c OffsetCriteria) (int64, error) {
	var key []byte
	switch c {
	case Smallest:
		key = smallestKey
	case Largest:
		key = largestKey
	default:
		return 0, fmt.Errorf("stream: unsupported offset criteria %s", c)
	}
	var off int64
	err := s.db.View(func(tx *bbolt.Tx) error {
		pb, err := partitionBucket(tx, topic, partition)
		if err != nil {
			return err
		}
		off = bx.I64(pb.Get(key))
		return nil
	})
	return off, err
}

func partitionKey(p int) []byte { return []byte(strconv.Itoa(p)) }

func partitionBucket(tx *bbolt.Tx, topic string, partition int) (*bbolt.Bucket, error) {
	tb := tx.Bucket(topicsBucket).Bucket([]byte(topic))
	if tb == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
	}
	pb := tb.Bucket(partitionKey(partition))
	if pb == nil {
		return nil, fmt.Errorf("%w: %s/%d", ErrUnknownPartition, topic, partition)
	}
	return pb, nil
}

func putOffset(b *bbolt.Bucket, key []byte, v int64) error {
	return b.Put(key, bx.AppendI64(nil, v))
}

// BoltProvider is a MetadataProvider over a Store.
type BoltProvider struct {
	store     *Store
	topic     string
	partition int
	closed    atomic.Bool
}

var _ MetadataProvider = (*BoltProvider)(nil)

func (p *BoltProvider) FetchPartitionCount(timeout time.Duration) (int, error) {
	if p.closed.Load() {
		return 0, ErrClosed
	}
	return withTimeout(timeout, func() (int, error) {
		return p.store.partitionCount(p.topic)
	})
}

func (p *BoltProvider) FetchPartitionOffset(c OffsetCriteria, timeout time.Duration) (int64, error) {
	if p.closed.Load() {
		return 0, ErrClosed
	}
	off, err := withTimeout(timeout, func() (int64, error) {
		return p.store.offset(p.topic, p.partition, c)
	})
	if err != nil {
		slog.Debug("stream: offset fetch failed", "topic", p.topic, "partition", p.partition, "criteria", c, "err", err)
	}
	return off, err
}

// Close releases the provider. The Store stays open.
func (p *BoltProvider) Close() error {
	p.closed.Store(true)
	return nil
}
