package datatable

import (
	"maps"
	"slices"
	"strconv"
)

// Well-known metadata keys. The reducer's merge policy is keyed on these.
const (
	MetaRequestID             = "requestId"
	MetaNodeID                = "nodeId"
	MetaTimeUsedMs            = "timeUsedMs"
	MetaNumDocsScanned        = "numDocsScanned"
	MetaTotalDocs             = "totalDocs"
	MetaEntriesScannedFilter  = "numEntriesScannedInFilter"
	MetaEntriesScannedPost    = "numEntriesScannedPostFilter"
	MetaNumSegmentsQueried    = "numSegmentsQueried"
	MetaNumSegmentsProcessed  = "numSegmentsProcessed"
	MetaNumSegmentsMatched    = "numSegmentsMatched"
	MetaNumGroupsLimitReached = "numGroupsLimitReached"
	MetaNumServersQueried     = "numServersQueried"
	MetaNumServersResponded   = "numServersResponded"
	MetaPartialResponse       = "partialResponse"
	MetaTraceInfo             = "traceInfo"

	// MetaException is reserved: a node that failed to execute sets it instead
	// of returning rows.
	MetaException = "exception"
)

// Metadata carries per-table diagnostics alongside the rows. Entry order is
// not meaningful.
type Metadata map[string]string

func (m Metadata) Get(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

// Int64 parses key as a base-10 integer. Missing or malformed values report ok=false.
func (m Metadata) Int64(key string) (int64, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func (m Metadata) Bool(key string) bool {
	b, _ := strconv.ParseBool(m[key])
	return b
}

func (m Metadata) SetInt64(key string, v int64) { m[key] = strconv.FormatInt(v, 10) }
func (m Metadata) SetBool(key string, v bool)   { m[key] = strconv.FormatBool(v) }

// Exception returns the node-level exception message, if any.
func (m Metadata) Exception() (string, bool) {
	return m.Get(MetaException)
}

func (m Metadata) Clone() Metadata {
	if m == nil {
		return Metadata{}
	}
	return maps.Clone(m)
}

// Keys returns the keys in sorted order.
func (m Metadata) Keys() []string {
	return slices.Sorted(maps.Keys(m))
}
