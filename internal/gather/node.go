package gather

import "context"

// Node is one data-holding server a query can be scattered to.
type Node struct {
	ID   string
	Addr string
}

// Request is what every node executes for one query.
type Request struct {
	RequestID string
	Query     string
	Limit     int
}

// Fetcher carries a request to one node and returns its encoded DataTable.
// Implementations should honor ctx; the coordinator stops waiting at the
// node deadline regardless.
type Fetcher interface {
	Fetch(ctx context.Context, node Node, req Request) ([]byte, error)
}

// NodeSource lists the nodes a query goes to.
type NodeSource interface {
	Nodes() []Node
}

// StaticNodes is a fixed node list.
type StaticNodes []Node

func (s StaticNodes) Nodes() []Node { return s }
