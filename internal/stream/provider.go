// Package stream discovers partitions and offsets of an ingestion stream.
// It is used by ingestion scheduling and is independent of result transport.
package stream

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

var (
	ErrTimeout          = errors.New("stream: metadata fetch timed out")
	ErrClosed           = errors.New("stream: provider closed")
	ErrUnknownTopic     = errors.New("stream: unknown topic")
	ErrUnknownPartition = errors.New("stream: unknown partition")
)

// OffsetCriteria selects which end of a partition to read.
type OffsetCriteria int

const (
	Smallest OffsetCriteria = iota + 1
	Largest
)

func (c OffsetCriteria) String() string {
	switch c {
	case Smallest:
		return "smallest"
	case Largest:
		return "largest"
	}
	return fmt.Sprintf("OffsetCriteria(%d)", int(c))
}

func ParseOffsetCriteria(s string) (OffsetCriteria, error) {
	switch strings.ToLower(s) {
	case "smallest":
		return Smallest, nil
	case "largest":
		return Largest, nil
	}
	return 0, fmt.Errorf("stream: unknown offset criteria %q", s)
}

// MetadataProvider answers partition metadata for one stream partition.
type MetadataProvider interface {
	// FetchPartitionCount returns how many partitions the topic has.
	FetchPartitionCount(timeout time.Duration) (int, error)
	// FetchPartitionOffset returns the offset selected by criteria, or
	// ErrTimeout when the answer takes longer than timeout.
	FetchPartitionOffset(criteria OffsetCriteria, timeout time.Duration) (int64, error)
	io.Closer
}

type result[T any] struct {
	v   T
	err error
}

// withTimeout runs fn and gives up after d. fn keeps running in the
// background; its late result is discarded.
func withTimeout[T any](d time.Duration, fn func() (T, error)) (T, error) {
	ch := make(chan result[T], 1)
	go func() {
		v, err := fn()
		ch <- result[T]{v: v, err: err}
	}()

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case r := <-ch:
		return r.v, r.err
	case <-t.C:
		var zero T
		return zero, fmt.Errorf("%w after %s", ErrTimeout, d)
	}
}
