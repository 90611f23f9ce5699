package reduce

import (
	"fmt"
	"maps"
	"strconv"
	"strings"

	"github.com/tuannm99/novagather/internal/datatable"
)

// Policy says how values of one metadata key from several tables combine.
type Policy int

const (
	// First keeps the first value seen, in input order. Default for unknown keys.
	First Policy = iota
	// Sum adds base-10 integers. Malformed values are ignored.
	Sum
	// Max keeps the largest base-10 integer.
	Max
	// Or is true if any value parses as true.
	Or
	// PerNode keeps every value under "<key>.<node>".
	PerNode
	// Drop discards the key.
	Drop
)

// ExceptionPrefix namespaces per-node failures in merged metadata:
// "exception.<node>" = "<Kind>: <message>".
const ExceptionPrefix = datatable.MetaException + "."

// DefaultPolicies is the per-key policy table.
//
//	numDocsScanned, totalDocs, numEntriesScanned*, numSegments*   Sum
//	timeUsedMs                                                   Max
//	numGroupsLimitReached, partialResponse                       Or
//	requestId                                                    First
//	traceInfo                                                    PerNode
//	nodeId                                                       Drop
//	numServersQueried, numServersResponded                       computed
//	exception                                                    namespaced per node
func DefaultPolicies() map[string]Policy {
	return map[string]Policy{
		datatable.MetaNumDocsScanned:        Sum,
		datatable.MetaTotalDocs:             Sum,
		datatable.MetaEntriesScannedFilter:  Sum,
		datatable.MetaEntriesScannedPost:    Sum,
		datatable.MetaNumSegmentsQueried:    Sum,
		datatable.MetaNumSegmentsProcessed:  Sum,
		datatable.MetaNumSegmentsMatched:    Sum,
		datatable.MetaTimeUsedMs:            Max,
		datatable.MetaNumGroupsLimitReached: Or,
		datatable.MetaPartialResponse:       Or,
		datatable.MetaRequestID:             First,
		datatable.MetaTraceInfo:             PerNode,
		datatable.MetaNodeID:                Drop,
	}
}

// metaMerger folds the metadata of every input into one map.
type metaMerger struct {
	policies  map[string]Policy
	out       datatable.Metadata
	ints      map[string]int64
	queried   int64
	responded int64
	failed    bool
}

func newMetaMerger(policies map[string]Policy) *metaMerger {
	return &metaMerger{
		policies: policies,
		out:      datatable.Metadata{},
		ints:     map[string]int64{},
	}
}

func (m *metaMerger) absorb(node string, meta datatable.Metadata) {
	for _, k := range meta.Keys() {
		v := meta[k]
		switch {
		case k == datatable.MetaException:
			// recorded by addException with its kind
			continue
		case strings.HasPrefix(k, ExceptionPrefix):
			// already namespaced by an earlier reduction
			m.put(k, v)
			m.failed = true
			continue
		case k == datatable.MetaNumServersQueried, k == datatable.MetaNumServersResponded:
			continue
		}

		switch m.policies[k] {
		case Sum:
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				m.ints[k] += n
			}
		case Max:
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				if cur, ok := m.ints[k]; !ok || n > cur {
					m.ints[k] = n
				}
			}
		case Or:
			b, _ := strconv.ParseBool(v)
			m.out[k] = strconv.FormatBool(b || m.out.Bool(k))
		case PerNode:
			m.put(k+"."+node, v)
		case Drop:
		default:
			if _, ok := m.out[k]; !ok {
				m.out[k] = v
			}
		}
	}
}

// countServers accounts one input. A previous reduction carries its own
// counts; a plain node response counts as one server.
func (m *metaMerger) countServers(r Response) {
	if r.Table == nil {
		m.queried++
		return
	}
	meta := r.Table.Metadata()
	if n, ok := meta.Int64(datatable.MetaNumServersQueried); ok {
		m.queried += n
	} else {
		m.queried++
	}
	if n, ok := meta.Int64(datatable.MetaNumServersResponded); ok {
		m.responded += n
	} else {
		m.responded++
	}
}

func (m *metaMerger) addException(node string, kind Kind, msg string) {
	m.put(ExceptionPrefix+node, fmt.Sprintf("%s: %s", kind, msg))
	m.failed = true
}

// put never overwrites: a second value for the same key gets a "#n" suffix.
func (m *metaMerger) put(k, v string) {
	key := k
	for i := 2; ; i++ {
		if _, taken := m.out[key]; !taken {
			m.out[key] = v
			return
		}
		key = k + "#" + strconv.Itoa(i)
	}
}

func (m *metaMerger) result() datatable.Metadata {
	out := maps.Clone(m.out)
	for k, n := range m.ints {
		out.SetInt64(k, n)
	}
	out.SetInt64(datatable.MetaNumServersQueried, m.queried)
	out.SetInt64(datatable.MetaNumServersResponded, m.responded)
	if m.failed || out.Bool(datatable.MetaPartialResponse) {
		out.SetBool(datatable.MetaPartialResponse, true)
	}
	return out
}

// Exceptions returns the per-node failure entries of a merged table, keyed by node.
func Exceptions(meta datatable.Metadata) map[string]string {
	out := map[string]string{}
	for k, v := range meta {
		if node, ok := strings.CutPrefix(k, ExceptionPrefix); ok {
			out[node] = v
		}
	}
	return out
}
