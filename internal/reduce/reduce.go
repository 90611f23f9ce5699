package reduce

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net"

	"github.com/tuannm99/novagather/internal/datatable"
)

// Kind classifies why a node contributed no rows.
type Kind string

const (
	NodeTimeout   Kind = "NodeTimeout"
	NodeException Kind = "NodeException"
	NodeError     Kind = "NodeError"
)

// ErrNodeTimeout marks a response that did not arrive in time.
var ErrNodeTimeout = errors.New("reduce: node timed out")

// Response is one node's contribution to a query: a decoded table, or the
// error that prevented getting one.
type Response struct {
	Node  string
	Table *datatable.Table
	Err   error
}

// classify reports whether r is error-only, and why.
func classify(r Response) (Kind, string, bool) {
	if r.Err != nil {
		if isTimeout(r.Err) {
			return NodeTimeout, r.Err.Error(), true
		}
		return NodeError, r.Err.Error(), true
	}
	if r.Table == nil {
		return NodeError, "no response", true
	}
	if msg, ok := r.Table.Exception(); ok {
		return NodeException, msg, true
	}
	return "", "", false
}

func isTimeout(err error) bool {
	if errors.Is(err, ErrNodeTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// Comparator orders two rows of schema-compatible tables.
type Comparator func(a, b RowRef) int

// RowRef points at one row of one input table.
type RowRef struct {
	Table *datatable.Table
	Row   int
}

type Option func(*options)

type options struct {
	cmp      Comparator
	limit    int
	schema   *datatable.Schema
	policies map[string]Policy
	registry *datatable.ObjectRegistry
	logger   *slog.Logger
	extra    datatable.Metadata
}

// WithComparator merges inputs that are each already sorted by cmp into one
// sorted result. Without it rows keep input order, table by table.
func WithComparator(cmp Comparator) Option {
	return func(o *options) { o.cmp = cmp }
}

// WithLimit keeps at most n rows. n <= 0 means no limit.
func WithLimit(n int) Option {
	return func(o *options) { o.limit = n }
}

// WithSchema fixes the expected schema. It is used for the empty result when
// no input carries rows, and data-bearing inputs must match it.
func WithSchema(s datatable.Schema) Option {
	return func(o *options) { o.schema = &s }
}

// WithPolicy overrides the merge policy of one metadata key.
func WithPolicy(key string, p Policy) Option {
	return func(o *options) { o.policies[key] = p }
}

// WithMetadata sets key on the result after merging, replacing any merged
// value. The broker uses it for its own requestId and timing.
func WithMetadata(key, value string) Option {
	return func(o *options) { o.extra[key] = value }
}

func WithRegistry(r *datatable.ObjectRegistry) Option {
	return func(o *options) { o.registry = r }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Reduce merges per-node responses into one table.
//
// Node failures never fail the reduction: they are recorded as
// "exception.<node>" metadata, and if every node failed the result is a
// zero-row table. Only inconsistent schemas among data-bearing inputs return
// an error (ErrSchemaMismatch). Inputs are not modified.
func Reduce(responses []Response, opts ...Option) (*datatable.Table, error) {
	o := options{policies: DefaultPolicies(), logger: slog.Default(), extra: datatable.Metadata{}}
	for _, fn := range opts {
		fn(&o)
	}

	mm := newMetaMerger(o.policies)
	var data []*datatable.Table
	var fallback *datatable.Schema
	schema := o.schema

	for i, r := range responses {
		node := nodeName(r, i)
		if r.Table != nil {
			mm.absorb(node, r.Table.Metadata())
		}
		mm.countServers(r)

		if kind, msg, failed := classify(r); failed {
			o.logger.Warn("reduce: node failed", "node", node, "kind", kind, "err", msg)
			mm.addException(node, kind, msg)
			if r.Table != nil && fallback == nil && r.Table.NumColumns() > 0 {
				s := r.Table.Schema()
				fallback = &s
			}
			continue
		}

		// e.g. an earlier all-failed reduction: nothing to merge, no schema to enforce
		if r.Table.NumColumns() == 0 && r.Table.NumRows() == 0 {
			continue
		}

		s := r.Table.Schema()
		if schema == nil {
			schema = &s
		} else if !schema.Equal(s) {
			return nil, fmt.Errorf("%w: node %s returned %s, expected %s",
				datatable.ErrSchemaMismatch, node, s, *schema)
		}
		data = append(data, r.Table)
	}

	if schema == nil {
		schema = fallback
	}
	if schema == nil {
		schema = &datatable.Schema{}
	}

	var bopts []datatable.Option
	if o.registry != nil {
		bopts = append(bopts, datatable.WithRegistry(o.registry))
	}
	b := datatable.NewBuilder(*schema, bopts...)

	var err error
	if o.cmp != nil {
		err = mergeOrdered(b, data, o.cmp, o.limit)
	} else {
		err = concat(b, data, o.limit)
	}
	if err != nil {
		return nil, err
	}

	meta := mm.result()
	maps.Copy(meta, o.extra)
	for _, k := range meta.Keys() {
		b.SetMetadata(k, meta[k])
	}
	out := b.Seal()
	o.logger.Debug("reduce: merged",
		"inputs", len(responses),
		"dataBearing", len(data),
		"rows", out.NumRows(),
		"heapBytes", out.HeapSize(),
	)
	return out, nil
}

// ReduceTables reduces already-decoded tables, e.g. a previous result with
// further responses.
func ReduceTables(tables []*datatable.Table, opts ...Option) (*datatable.Table, error) {
	rs := make([]Response, len(tables))
	for i, t := range tables {
		rs[i] = Response{Table: t}
	}
	return Reduce(rs, opts...)
}

func nodeName(r Response, i int) string {
	if r.Node != "" {
		return r.Node
	}
	if r.Table != nil {
		if id, ok := r.Table.MetaValue(datatable.MetaNodeID); ok && id != "" {
			return id
		}
	}
	return fmt.Sprintf("input-%d", i)
}

// concat appends whole tables in input order.
func concat(b *datatable.Builder, tables []*datatable.Table, limit int) error {
	for _, t := range tables {
		if limit > 0 && b.NumRows()+t.NumRows() > limit {
			for r := 0; b.NumRows() < limit; r++ {
				if err := b.AppendRow(t, r); err != nil {
					return err
				}
			}
			return nil
		}
		if err := b.AppendTable(t); err != nil {
			return err
		}
	}
	return nil
}
