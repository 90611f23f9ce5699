package stream

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenStore(filepath.Join(t.TempDir(), "stream.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestBoltProvider_PartitionCount(t *testing.T) {
	s := openStore(t)
	require.NoError(t, s.CreateTopic("events", 4))

	p := s.Provider("events", 0)
	n, err := p.FetchPartitionCount(time.Second)
	require.NoError(t, err)
	require.Equal(t, 4, n)

	require.NoError(t, s.CreateTopic("events", 6))
	n, err = p.FetchPartitionCount(time.Second)
	require.NoError(t, err)
	require.Equal(t, 6, n)

	require.Error(t, s.CreateTopic("events", 2))
	require.Error(t, s.CreateTopic("other", 0))
}

func TestBoltProvider_Offsets(t *testing.T) {
	s := openStore(t)
	require.NoError(t, s.CreateTopic("events", 2))

	next, err := s.Append("events", 1, 10)
	require.NoError(t, err)
	require.Equal(t, int64(10), next)
	next, err = s.Append("events", 1, 5)
	require.NoError(t, err)
	require.Equal(t, int64(15), next)
	require.NoError(t, s.Truncate("events", 1, 4))
	require.Error(t, s.Truncate("events", 1, 16))

	p := s.Provider("events", 1)
	off, err := p.FetchPartitionOffset(Smallest, time.Second)
	require.NoError(t, err)
	require.Equal(t, int64(4), off)
	off, err = p.FetchPartitionOffset(Largest, time.Second)
	require.NoError(t, err)
	require.Equal(t, int64(15), off)

	off, err = s.Provider("events", 0).FetchPartitionOffset(Largest, time.Second)
	require.NoError(t, err)
	require.Zero(t, off)

	_, err = p.FetchPartitionOffset(OffsetCriteria(9), time.Second)
	require.Error(t, err)
}

func TestBoltProvider_Unknown(t *testing.T) {
	s := openStore(t)
	require.NoError(t, s.CreateTopic("events", 1))

	_, err := s.Provider("missing", 0).FetchPartitionCount(time.Second)
	require.ErrorIs(t, err, ErrUnknownTopic)
	_, err = s.Provider("events", 3).FetchPartitionOffset(Smallest, time.Second)
	require.ErrorIs(t, err, ErrUnknownPartition)
	_, err = s.Append("events", 7, 1)
	require.ErrorIs(t, err, ErrUnknownPartition)
}

func TestBoltProvider_Close(t *testing.T) {
	s := openStore(t)
	require.NoError(t, s.CreateTopic("events", 1))
	p := s.Provider("events", 0)
	require.NoError(t, p.Close())

	_, err := p.FetchPartitionCount(time.Second)
	require.ErrorIs(t, err, ErrClosed)
	_, err = p.FetchPartitionOffset(Largest, time.Second)
	require.ErrorIs(t, err, ErrClosed)
}

func TestBoltProvider_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stream.db")
	s, err := OpenStore(path)
	require.NoError(t, err)
	require.NoError(t, s.CreateTopic("events", 3))
	_, err = s.Append("events", 2, 42)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = OpenStore(path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	off, err := s.Provider("events", 2).FetchPartitionOffset(Largest, time.Second)
	require.NoError(t, err)
	require.Equal(t, int64(42), off)
}

func TestWithTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	start := time.Now()
	_, err := withTimeout(20*time.Millisecond, func() (int64, error) {
		<-release
		return 1, nil
	})
	require.ErrorIs(t, err, ErrTimeout)
	require.Less(t, time.Since(start), time.Second)

	v, err := withTimeout(time.Second, func() (int, error) { return 7, nil })
	require.NoError(t, err)
	require.Equal(t, 7, v)

	boom := errors.New("boom")
	_, err = withTimeout(time.Second, func() (int, error) { return 0, boom })
	require.ErrorIs(t, err, boom)
}

func TestParseOffsetCriteria(t *testing.T) {
	c, err := ParseOffsetCriteria("LARGEST")
	require.NoError(t, err)
	require.Equal(t, Largest, c)
	require.Equal(t, "smallest", Smallest.String())
	_, err = ParseOffsetCriteria("period")
	require.Error(t, err)
}
