package sample

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tuannm99/novagather/internal/datatable"
	"github.com/tuannm99/novagather/internal/gather"
)

func TestExecutor_Scan(t *testing.T) {
	e := &Executor{Node: "n1", Rows: 4}
	b, err := e.Execute(context.Background(), gather.Request{Query: "scan"})
	require.NoError(t, err)
	tbl := b.Seal()
	require.Equal(t, 4, tbl.NumRows())
	require.True(t, tbl.Schema().Equal(Schema))

	prev := int64(-1)
	for r := 0; r < tbl.NumRows(); r++ {
		id, err := tbl.Int64(r, 0)
		require.NoError(t, err)
		require.Equal(t, ID("n1", r), id)
		require.Greater(t, id, prev)
		prev = id

		obj, err := tbl.Object(r, 4)
		require.NoError(t, err)
		require.Equal(t, datatable.AvgPair{Sum: float64(id), Count: 1}, obj)
	}
	v, _ := tbl.MetaValue(datatable.MetaNumDocsScanned)
	require.Equal(t, "4", v)
}

func TestExecutor_Limit(t *testing.T) {
	e := &Executor{Node: "n1", Rows: 10}
	b, err := e.Execute(context.Background(), gather.Request{Limit: 3})
	require.NoError(t, err)
	require.Equal(t, 3, b.NumRows())
}

func TestExecutor_Fail(t *testing.T) {
	e := &Executor{Node: "n1", Rows: 1}
	_, err := e.Execute(context.Background(), gather.Request{Query: "fail disk full"})
	require.EqualError(t, err, "sample: disk full")

	_, err = e.Execute(context.Background(), gather.Request{Query: "drop table"})
	require.Error(t, err)
}

func TestExecutor_SleepHonorsContext(t *testing.T) {
	e := &Executor{Node: "n1", Rows: 1}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := e.Execute(ctx, gather.Request{Query: "sleep 5s"})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	_, err = e.Execute(context.Background(), gather.Request{Query: "sleep soon"})
	require.Error(t, err)
}

func TestID_Deterministic(t *testing.T) {
	require.Equal(t, ID("n1", 3), ID("n1", 3))
	require.Equal(t, ID("n1", 0)+2*stride, ID("n1", 2))
}
