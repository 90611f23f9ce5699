// Package sample is a stand-in query executor. Every node produces a
// deterministic, id-sorted slice of rows so results are easy to check.
package sample

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/tuannm99/novagather/internal/datatable"
	"github.com/tuannm99/novagather/internal/gather"
)

// Schema of every sample result.
var Schema = datatable.NewSchema(
	datatable.Column{Name: "id", Type: datatable.Int64},
	datatable.Column{Name: "node", Type: datatable.String},
	datatable.Column{Name: "score", Type: datatable.Double},
	datatable.Column{Name: "tags", Type: datatable.StringArray},
	datatable.Column{Name: "avg", Type: datatable.Object},
)

const stride = 100

// Executor answers queries for one node:
//
//	scan              all rows
//	fail <message>    an execution error
//	sleep <duration>  wait, then all rows
type Executor struct {
	Node     string
	Rows     int
	Registry *datatable.ObjectRegistry
}

func (e *Executor) Execute(ctx context.Context, req gather.Request) (*datatable.Builder, error) {
	verb, arg, _ := strings.Cut(strings.TrimSpace(req.Query), " ")
	switch strings.ToLower(verb) {
	case "", "scan":
	case "fail":
		return nil, fmt.Errorf("sample: %s", strings.TrimSpace(arg))
	case "sleep":
		d, err := time.ParseDuration(strings.TrimSpace(arg))
		if err != nil {
			return nil, fmt.Errorf("sample: bad duration: %w", err)
		}
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	default:
		return nil, fmt.Errorf("sample: unknown query %q", verb)
	}

	b := datatable.NewBuilder(Schema, datatable.WithRegistry(e.Registry))
	n := e.Rows
	if req.Limit > 0 && req.Limit < n {
		n = req.Limit
	}
	for i := 0; i < n; i++ {
		id := ID(e.Node, i)
		err := b.AddRow(
			id,
			e.Node,
			float64(id)/10,
			[]string{e.Node, fmt.Sprintf("r%d", i)},
			datatable.AvgPair{Sum: float64(id), Count: 1},
		)
		if err != nil {
			return nil, err
		}
	}
	b.SetMetadata(datatable.MetaNumDocsScanned, fmt.Sprint(n))
	b.SetMetadata(datatable.MetaTotalDocs, fmt.Sprint(e.Rows))
	b.SetMetadata(datatable.MetaNumSegmentsQueried, "1")
	return b, nil
}

// ID is the id of row i on node. Ids grow with i and interleave across
// nodes.
func ID(node string, i int) int64 {
	return int64(i)*stride + int64(xxhash.Sum64String(node)%stride)
}
