package gatherwire

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tuannm99/novagather/internal/gather"
)

// Pool is the broker's gather.Fetcher: one lazily dialed Client per node.
// A connection that fails is dropped and redialed on the next query, so a
// late answer can never be read as the reply to a newer request.
type Pool struct {
	DialTimeout time.Duration
	// RWTimeout bounds a query whose context carries no deadline.
	RWTimeout    time.Duration
	MaxFrameSize int

	mu      sync.Mutex
	clients map[string]*Client
}

var _ gather.Fetcher = (*Pool)(nil)

func NewPool(dialTimeout, rwTimeout time.Duration, maxFrameSize int) *Pool {
	return &Pool{
		DialTimeout:  dialTimeout,
		RWTimeout:    rwTimeout,
		MaxFrameSize: maxFrameSize,
		clients:      map[string]*Client{},
	}
}

func (p *Pool) Fetch(ctx context.Context, n gather.Node, req gather.Request) ([]byte, error) {
	qr := QueryRequest{RequestID: req.RequestID, Query: req.Query, Limit: req.Limit}
	if dl, ok := ctx.Deadline(); ok {
		qr.TimeoutMs = max(time.Until(dl).Milliseconds(), 1)
	}

	// a connection broken by an earlier request is replaced once
	for attempt := 0; ; attempt++ {
		cli, err := p.client(ctx, n)
		if err != nil {
			return nil, err
		}
		payload, err := cli.Query(ctx, qr)
		if err == nil {
			return payload, nil
		}
		p.drop(n.Addr, cli)
		if errors.Is(err, ErrBrokenConn) && attempt == 0 {
			continue
		}
		return nil, fmt.Errorf("node %s (%s): %w", n.ID, n.Addr, err)
	}
}

func (p *Pool) client(ctx context.Context, n gather.Node) (*Client, error) {
	p.mu.Lock()
	if cli, ok := p.clients[n.Addr]; ok && !cli.broken.Load() {
		p.mu.Unlock()
		return cli, nil
	}
	p.mu.Unlock()

	cli, err := DialContext(ctx, n.Addr, p.DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("dial %s (%s): %w", n.ID, n.Addr, err)
	}
	cli.SetMaxFrameSize(p.MaxFrameSize)
	cli.SetRWTimeout(p.RWTimeout)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.clients == nil {
		p.clients = map[string]*Client{}
	}
	if cur, ok := p.clients[n.Addr]; ok && !cur.broken.Load() {
		// lost a dial race
		_ = cli.Close()
		return cur, nil
	}
	p.clients[n.Addr] = cli
	return cli, nil
}

func (p *Pool) drop(addr string, cli *Client) {
	p.mu.Lock()
	if p.clients[addr] == cli {
		delete(p.clients, addr)
	}
	p.mu.Unlock()
	_ = cli.Close()
}

func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for addr, cli := range p.clients {
		_ = cli.Close()
		delete(p.clients, addr)
	}
	return nil
}
