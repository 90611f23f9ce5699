package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tuannm99/novagather/internal/datatable"
)

func TestHistory_AppendLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "history")
	h := NewHistory(path)
	require.NoError(t, h.Append("scan"))
	require.NoError(t, h.Append("  sleep\n 1s  "))
	require.NoError(t, h.Append("   "))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "scan\nsleep 1s\n", string(data))

	h2 := NewHistory(path)
	require.NoError(t, h2.Load(1))
	require.Equal(t, []string{"sleep 1s"}, h2.lines)

	var buf bytes.Buffer
	h.Print(&buf, 0)
	require.Equal(t, "    1  scan\n    2  sleep 1s\n", buf.String())
}

func TestPrintResult(t *testing.T) {
	s := datatable.NewSchema(
		datatable.Column{Name: "id", Type: datatable.Int32},
		datatable.Column{Name: "name", Type: datatable.String},
	)
	b := datatable.NewBuilder(s)
	require.NoError(t, b.AddRow(int32(1), "a"))
	require.NoError(t, b.AddRow(int32(22), "bb"))
	b.SetMetadata("exception.n2", "NodeTimeout: late")

	var buf bytes.Buffer
	require.NoError(t, printResult(&buf, b.Seal(), false))
	require.Equal(t, "id | name\n---+-----\n1  | a   \n22 | bb  \n(2 rows)\nnode n2 failed: NodeTimeout: late\n", buf.String())
}

func TestSession_SetOrder(t *testing.T) {
	s := &session{orderCol: -1}
	s.setOrder([]string{"id", "DESC"})
	require.Equal(t, 0, s.orderCol)
	require.True(t, s.desc)
	s.setOrder([]string{"nope"})
	require.Equal(t, 0, s.orderCol)
	s.setOrder([]string{"off"})
	require.Equal(t, -1, s.orderCol)
}
