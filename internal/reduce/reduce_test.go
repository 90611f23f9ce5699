package reduce

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tuannm99/novagather/internal/datatable"
)

func idNameSchema() datatable.Schema {
	return datatable.NewSchema(
		datatable.Column{Name: "id", Type: datatable.Int32},
		datatable.Column{Name: "name", Type: datatable.String},
		datatable.Column{Name: "tags", Type: datatable.StringArray},
	)
}

// nodeTable builds a table whose rows carry ids and names derived from them.
func nodeTable(t *testing.T, node string, meta map[string]string, ids ...int32) *datatable.Table {
	t.Helper()
	b := datatable.NewBuilder(idNameSchema())
	for _, id := range ids {
		require.NoError(t, b.AddRow(id, fmt.Sprintf("%s-%d", node, id), []string{node, strings.Repeat("x", int(id)%5)}))
	}
	b.SetMetadata(datatable.MetaNodeID, node)
	for k, v := range meta {
		b.SetMetadata(k, v)
	}
	return b.Seal()
}

func failedTable(node, msg string) *datatable.Table {
	return datatable.Empty(datatable.Schema{}, datatable.Metadata{
		datatable.MetaNodeID:    node,
		datatable.MetaException: msg,
	})
}

func ids(t *testing.T, tbl *datatable.Table) []int32 {
	t.Helper()
	out := make([]int32, 0, tbl.NumRows())
	for r := 0; r < tbl.NumRows(); r++ {
		v, err := tbl.Int32(r, 0)
		require.NoError(t, err)
		out = append(out, v)
	}
	return out
}

func TestReduce_ConcatKeepsNodeOrderAndRebasesHeap(t *testing.T) {
	a := nodeTable(t, "a", nil, 1, 2)
	b := nodeTable(t, "b", nil, 3)
	c := nodeTable(t, "c", nil, 4, 5, 6)

	out, err := Reduce([]Response{{Node: "a", Table: a}, {Node: "b", Table: b}, {Node: "c", Table: c}})
	require.NoError(t, err)
	require.Equal(t, []int32{1, 2, 3, 4, 5, 6}, ids(t, out))

	rows, err := out.Rows()
	require.NoError(t, err)
	require.Equal(t, []any{int32(3), "b-3", []string{"b", "xxx"}}, rows[2])
	require.Equal(t, []any{int32(6), "c-6", []string{"c", "x"}}, rows[5])
	require.Equal(t, a.HeapSize()+b.HeapSize()+c.HeapSize(), out.HeapSize())
}

func TestReduce_DoesNotMutateInputs(t *testing.T) {
	a := nodeTable(t, "a", map[string]string{datatable.MetaNumDocsScanned: "3"}, 1, 2)
	b := nodeTable(t, "b", nil, 3)
	before := [][]byte{}
	for _, tbl := range []*datatable.Table{a, b} {
		buf, err := datatable.Encode(tbl)
		require.NoError(t, err)
		before = append(before, buf)
	}

	_, err := ReduceTables([]*datatable.Table{a, b})
	require.NoError(t, err)

	for i, tbl := range []*datatable.Table{a, b} {
		buf, err := datatable.Encode(tbl)
		require.NoError(t, err)
		require.Equal(t, before[i], buf)
	}
}

func TestReduce_SchemaMismatchIsFatal(t *testing.T) {
	a := nodeTable(t, "a", nil, 1)
	other := datatable.NewBuilder(datatable.NewSchema(datatable.Column{Name: "id", Type: datatable.Int64}))
	require.NoError(t, other.AddRow(int64(1)))

	_, err := Reduce([]Response{{Node: "a", Table: a}, {Node: "b", Table: other.Seal()}})
	require.ErrorIs(t, err, datatable.ErrSchemaMismatch)

	_, err = Reduce([]Response{{Node: "a", Table: a}}, WithSchema(datatable.NewSchema(
		datatable.Column{Name: "id", Type: datatable.Int32},
	)))
	require.ErrorIs(t, err, datatable.ErrSchemaMismatch)
}

func TestReduce_ErrorOnlySchemaIsIgnored(t *testing.T) {
	a := nodeTable(t, "a", nil, 1)
	out, err := Reduce([]Response{{Node: "a", Table: a}, {Node: "b", Table: failedTable("b", "oom")}})
	require.NoError(t, err)
	require.Equal(t, []int32{1}, ids(t, out))
	require.True(t, out.Metadata().Bool(datatable.MetaPartialResponse))
}

func TestReduce_AllFailed(t *testing.T) {
	out, err := Reduce([]Response{
		{Node: "a", Table: failedTable("a", "segment missing")},
		{Node: "b", Err: fmt.Errorf("fetch: %w", context.DeadlineExceeded)},
		{Node: "c", Err: fmt.Errorf("connection refused")},
	}, WithSchema(idNameSchema()))
	require.NoError(t, err)
	require.Zero(t, out.NumRows())
	require.True(t, out.Schema().Equal(idNameSchema()))

	exc := Exceptions(out.Metadata())
	require.Len(t, exc, 3)
	require.True(t, strings.HasPrefix(exc["a"], string(NodeException)+": segment missing"))
	require.True(t, strings.HasPrefix(exc["b"], string(NodeTimeout)+": "))
	require.True(t, strings.HasPrefix(exc["c"], string(NodeError)+": connection refused"))

	meta := out.Metadata()
	n, ok := meta.Int64(datatable.MetaNumServersQueried)
	require.True(t, ok)
	require.Equal(t, int64(3), n)
	n, ok = meta.Int64(datatable.MetaNumServersResponded)
	require.True(t, ok)
	require.Equal(t, int64(1), n)
}

func TestReduce_ThreeErrorOnlyTables(t *testing.T) {
	out, err := ReduceTables([]*datatable.Table{
		failedTable("n1", "boom"),
		failedTable("n2", "boom"),
		failedTable("n3", "boom"),
	})
	require.NoError(t, err)
	require.Zero(t, out.NumRows())
	require.Zero(t, out.FixedSize())
	require.Len(t, Exceptions(out.Metadata()), 3)
}

func TestReduce_ErrorOnlyRowsAreNotMerged(t *testing.T) {
	bad := nodeTable(t, "b", map[string]string{datatable.MetaException: "half done"}, 9, 9)
	out, err := Reduce([]Response{
		{Node: "a", Table: nodeTable(t, "a", nil, 1)},
		{Node: "b", Table: bad},
	})
	require.NoError(t, err)
	require.Equal(t, []int32{1}, ids(t, out))
}

func TestReduce_SameNodeFailingTwiceKeepsBoth(t *testing.T) {
	out, err := Reduce([]Response{
		{Node: "a", Err: fmt.Errorf("first")},
		{Node: "a", Err: fmt.Errorf("second")},
	})
	require.NoError(t, err)
	meta := out.Metadata()
	require.Equal(t, "NodeError: first", meta["exception.a"])
	require.Equal(t, "NodeError: second", meta["exception.a#2"])
}

func TestReduce_MetadataPolicies(t *testing.T) {
	a := nodeTable(t, "a", map[string]string{
		datatable.MetaNumDocsScanned:        "10",
		datatable.MetaTimeUsedMs:            "40",
		datatable.MetaRequestID:             "req-1",
		datatable.MetaTraceInfo:             "ta",
		datatable.MetaNumGroupsLimitReached: "false",
		"custom":                            "first",
	}, 1)
	b := nodeTable(t, "b", map[string]string{
		datatable.MetaNumDocsScanned:        "5",
		datatable.MetaTimeUsedMs:            "70",
		datatable.MetaRequestID:             "req-1",
		datatable.MetaTraceInfo:             "tb",
		datatable.MetaNumGroupsLimitReached: "true",
		"custom":                            "second",
	}, 2)

	out, err := Reduce([]Response{{Node: "a", Table: a}, {Node: "b", Table: b}})
	require.NoError(t, err)
	meta := out.Metadata()

	require.Equal(t, "15", meta[datatable.MetaNumDocsScanned])
	require.Equal(t, "70", meta[datatable.MetaTimeUsedMs])
	require.Equal(t, "req-1", meta[datatable.MetaRequestID])
	require.Equal(t, "ta", meta["traceInfo.a"])
	require.Equal(t, "tb", meta["traceInfo.b"])
	require.Equal(t, "true", meta[datatable.MetaNumGroupsLimitReached])
	require.Equal(t, "first", meta["custom"])
	require.Equal(t, "2", meta[datatable.MetaNumServersQueried])
	require.Equal(t, "2", meta[datatable.MetaNumServersResponded])
	require.NotContains(t, meta, datatable.MetaNodeID)
	require.NotContains(t, meta, datatable.MetaPartialResponse)
	require.Empty(t, Exceptions(meta))
}

func TestReduce_PolicyOverride(t *testing.T) {
	a := nodeTable(t, "a", map[string]string{"custom": "1"}, 1)
	b := nodeTable(t, "b", map[string]string{"custom": "2"}, 2)
	out, err := ReduceTables([]*datatable.Table{a, b}, WithPolicy("custom", Sum))
	require.NoError(t, err)
	v, _ := out.MetaValue("custom")
	require.Equal(t, "3", v)
}

func TestReduce_Associative(t *testing.T) {
	a := nodeTable(t, "a", map[string]string{datatable.MetaNumDocsScanned: "1"}, 1, 2)
	b := nodeTable(t, "b", map[string]string{datatable.MetaNumDocsScanned: "2"}, 3)
	c := nodeTable(t, "c", map[string]string{datatable.MetaNumDocsScanned: "4"}, 4, 5)

	all, err := ReduceTables([]*datatable.Table{a, b, c})
	require.NoError(t, err)

	ab, err := ReduceTables([]*datatable.Table{a, b})
	require.NoError(t, err)
	abc, err := ReduceTables([]*datatable.Table{ab, c})
	require.NoError(t, err)

	allRows, err := all.Rows()
	require.NoError(t, err)
	abcRows, err := abc.Rows()
	require.NoError(t, err)
	require.Equal(t, allRows, abcRows)

	require.Equal(t, all.Metadata()[datatable.MetaNumDocsScanned], abc.Metadata()[datatable.MetaNumDocsScanned])
	require.Equal(t, all.Metadata()[datatable.MetaNumServersQueried], abc.Metadata()[datatable.MetaNumServersQueried])
}

func TestReduce_AssociativeKeepsEarlierExceptions(t *testing.T) {
	first, err := Reduce([]Response{
		{Node: "a", Table: nodeTable(t, "a", nil, 1)},
		{Node: "b", Err: fmt.Errorf("down")},
	})
	require.NoError(t, err)

	second, err := Reduce([]Response{
		{Node: "broker", Table: first},
		{Node: "c", Err: fmt.Errorf("also down")},
	})
	require.NoError(t, err)
	exc := Exceptions(second.Metadata())
	require.Equal(t, "NodeError: down", exc["b"])
	require.Equal(t, "NodeError: also down", exc["c"])
	require.Equal(t, []int32{1}, ids(t, second))
}

func TestReduce_OrderedMerge(t *testing.T) {
	a := nodeTable(t, "a", nil, 1, 4, 7)
	b := nodeTable(t, "b", nil, 2, 3, 8, 9)
	c := nodeTable(t, "c", nil, 5, 6)

	out, err := ReduceTables([]*datatable.Table{a, b, c}, WithComparator(ByColumn(0, false)))
	require.NoError(t, err)
	require.Equal(t, []int32{1, 2, 3, 4, 5, 6, 7, 8, 9}, ids(t, out))

	name, err := out.String(4, 1)
	require.NoError(t, err)
	require.Equal(t, "c-5", name)
}

func TestReduce_OrderedMergeTiesKeepInputOrder(t *testing.T) {
	a := nodeTable(t, "a", nil, 1, 2)
	b := nodeTable(t, "b", nil, 1, 2)

	out, err := ReduceTables([]*datatable.Table{a, b}, WithComparator(ByColumn(0, false)))
	require.NoError(t, err)
	var names []string
	for r := 0; r < out.NumRows(); r++ {
		s, err := out.String(r, 1)
		require.NoError(t, err)
		names = append(names, s)
	}
	require.Equal(t, []string{"a-1", "b-1", "a-2", "b-2"}, names)
}

func TestReduce_OrderedMergeDescendingWithLimit(t *testing.T) {
	a := nodeTable(t, "a", nil, 9, 5, 1)
	b := nodeTable(t, "b", nil, 8, 7)

	out, err := ReduceTables([]*datatable.Table{a, b},
		WithComparator(Then(ByColumn(0, true), ByColumn(1, false))),
		WithLimit(3))
	require.NoError(t, err)
	require.Equal(t, []int32{9, 8, 7}, ids(t, out))
}

func TestReduce_ConcatLimit(t *testing.T) {
	a := nodeTable(t, "a", nil, 1, 2)
	b := nodeTable(t, "b", nil, 3, 4, 5)

	out, err := ReduceTables([]*datatable.Table{a, b}, WithLimit(3))
	require.NoError(t, err)
	require.Equal(t, []int32{1, 2, 3}, ids(t, out))
}

func TestReduce_ResultRoundTrips(t *testing.T) {
	out, err := Reduce([]Response{
		{Node: "a", Table: nodeTable(t, "a", nil, 1, 2)},
		{Node: "b", Err: ErrNodeTimeout},
	})
	require.NoError(t, err)

	buf, err := datatable.Encode(out)
	require.NoError(t, err)
	back, err := datatable.Decode(buf)
	require.NoError(t, err)
	require.Equal(t, []int32{1, 2}, ids(t, back))
	require.Equal(t, out.Metadata(), back.Metadata())
	require.True(t, strings.HasPrefix(Exceptions(back.Metadata())["b"], "NodeTimeout"))
}

func TestReduce_WithMetadataOverrides(t *testing.T) {
	a := nodeTable(t, "a", map[string]string{datatable.MetaRequestID: "node-side"}, 1)
	out, err := ReduceTables([]*datatable.Table{a}, WithMetadata(datatable.MetaRequestID, "broker-side"))
	require.NoError(t, err)
	v, _ := out.MetaValue(datatable.MetaRequestID)
	require.Equal(t, "broker-side", v)
}

func TestReduce_EarlierAllFailedResultMergesWithData(t *testing.T) {
	allFailed, err := ReduceTables([]*datatable.Table{failedTable("a", "x"), failedTable("b", "y")})
	require.NoError(t, err)
	require.Zero(t, allFailed.NumColumns())

	out, err := ReduceTables([]*datatable.Table{allFailed, nodeTable(t, "c", nil, 1, 2)})
	require.NoError(t, err)
	require.Equal(t, []int32{1, 2}, ids(t, out))
	require.Len(t, Exceptions(out.Metadata()), 2)

	n, _ := out.Metadata().Int64(datatable.MetaNumServersQueried)
	require.Equal(t, int64(3), n)
}
