// Package gather scatters a query to every node and reduces the answers.
package gather

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tuannm99/novagather/internal/datatable"
	"github.com/tuannm99/novagather/internal/metrics"
	"github.com/tuannm99/novagather/internal/reduce"
)

const DefaultNodeTimeout = 2 * time.Second

var ErrNoNodes = errors.New("gather: no nodes to query")

// Coordinator is the broker side of scatter-gather. It is safe for
// concurrent use; each Gather call owns its responses.
type Coordinator struct {
	fetcher  Fetcher
	nodes    NodeSource
	timeout  time.Duration
	registry *datatable.ObjectRegistry
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

type Option func(*Coordinator)

// WithNodeTimeout bounds how long one node may take, decode excluded.
func WithNodeTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithRegistry(r *datatable.ObjectRegistry) Option {
	return func(c *Coordinator) { c.registry = r }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

func New(f Fetcher, nodes NodeSource, opts ...Option) *Coordinator {
	c := &Coordinator{
		fetcher: f,
		nodes:   nodes,
		timeout: DefaultNodeTimeout,
	}
	for _, fn := range opts {
		fn(c)
	}
	if c.registry == nil {
		c.registry = datatable.NewObjectRegistry()
	}
	if c.metrics == nil {
		c.metrics = metrics.New(nil)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Gather sends req to every node concurrently, waits until each one has
// answered or hit its deadline, then reduces on the calling goroutine.
// Responses are reduced in arrival order unless ropts carries a comparator.
//
// Node failures end up in the result metadata. Gather itself fails only when
// there is nothing to query, ctx is done, or the node schemas disagree.
func (c *Coordinator) Gather(ctx context.Context, req Request, ropts ...reduce.Option) (*datatable.Table, error) {
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	nodes := c.nodes.Nodes()
	if len(nodes) == 0 {
		return nil, ErrNoNodes
	}
	log := c.logger.With("requestId", req.RequestID)
	start := time.Now()

	responses := make([]reduce.Response, len(nodes))
	var arrived atomic.Int32
	var g errgroup.Group
	for _, n := range nodes {
		g.Go(func() error {
			r := c.fetchOne(ctx, log, n, req)
			responses[arrived.Add(1)-1] = r
			// a node failure is data for the reducer; only the caller giving up aborts
			return ctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("gather: %w", err)
	}

	opts := []reduce.Option{
		reduce.WithLogger(log),
		reduce.WithRegistry(c.registry),
	}
	if req.Limit > 0 {
		opts = append(opts, reduce.WithLimit(req.Limit))
	}
	opts = append(opts, ropts...)
	opts = append(opts,
		reduce.WithMetadata(datatable.MetaRequestID, req.RequestID),
		reduce.WithMetadata(datatable.MetaTimeUsedMs, strconv.FormatInt(time.Since(start).Milliseconds(), 10)),
	)

	rstart := time.Now()
	out, err := reduce.Reduce(responses, opts...)
	c.metrics.ReduceDuration.Observe(time.Since(rstart).Seconds())
	if err != nil {
		log.Error("gather: reduce failed", "err", err)
		return nil, err
	}
	c.metrics.ResultRows.Observe(float64(out.NumRows()))

	log.Info("gather: done",
		"nodes", len(nodes),
		"failed", len(reduce.Exceptions(out.Metadata())),
		"rows", out.NumRows(),
		"elapsed", time.Since(start),
	)
	return out, nil
}

type fetchResult struct {
	payload []byte
	err     error
}

// fetchOne never outlives the node deadline, even when the Fetcher ignores ctx.
func (c *Coordinator) fetchOne(ctx context.Context, log *slog.Logger, n Node, req Request) reduce.Response {
	nctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	start := time.Now()
	defer func() {
		c.metrics.NodeLatency.WithLabelValues(n.ID).Observe(time.Since(start).Seconds())
	}()

	ch := make(chan fetchResult, 1)
	go func() {
		p, err := c.fetcher.Fetch(nctx, n, req)
		ch <- fetchResult{payload: p, err: err}
	}()

	var res fetchResult
	select {
	case res = <-ch:
	case <-nctx.Done():
		res.err = nctx.Err()
	}

	if res.err != nil {
		outcome := metrics.OutcomeError
		if errors.Is(nctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			outcome = metrics.OutcomeTimeout
			res.err = fmt.Errorf("%w after %s: %v", reduce.ErrNodeTimeout, c.timeout, res.err)
		}
		c.metrics.NodeResponses.WithLabelValues(n.ID, outcome).Inc()
		log.Warn("gather: node failed", "node", n.ID, "addr", n.Addr, "outcome", outcome, "err", res.err)
		return reduce.Response{Node: n.ID, Err: res.err}
	}

	t, err := datatable.Decode(res.payload, datatable.WithRegistry(c.registry))
	if err != nil {
		c.metrics.NodeResponses.WithLabelValues(n.ID, metrics.OutcomeError).Inc()
		log.Warn("gather: bad payload", "node", n.ID, "size", humanize.Bytes(uint64(len(res.payload))), "err", err)
		return reduce.Response{Node: n.ID, Err: fmt.Errorf("decode: %w", err)}
	}
	c.metrics.DecodedBytes.Add(float64(len(res.payload)))

	outcome := metrics.OutcomeOK
	if _, failed := t.Exception(); failed {
		outcome = metrics.OutcomeException
	}
	c.metrics.NodeResponses.WithLabelValues(n.ID, outcome).Inc()
	log.Debug("gather: node answered",
		"node", n.ID,
		"rows", t.NumRows(),
		"size", humanize.Bytes(uint64(len(res.payload))),
		"elapsed", time.Since(start),
	)
	return reduce.Response{Node: n.ID, Table: t}
}
