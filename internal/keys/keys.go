package keys

// Package keys centralizes Redis key construction.
// It is kept in internal to avoid leaking key formats to public API.
//
// Every key of a namespace shares the "{ns}" hash tag so the Lua scripts that
// touch a record, the sequence counter and the index stay cluster-safe.

// Namespace holds all precomputed keys for a job namespace.
type Namespace struct {
	prefix string
	// Index is a ZSET of record IDs scored by submission sequence.
	Index string
	// Seq is the counter that hands out submission sequence numbers.
	Seq string
}

// For returns the keys of namespace ns.
func For(ns string) Namespace {
	prefix := "jobmanager:{" + ns + "}:"
	return Namespace{
		prefix: prefix,
		Index:  prefix + "index",
		Seq:    prefix + "seq",
	}
}

// Job returns the HASH key of the record with the given ID.
func (n Namespace) Job(id string) string { return n.prefix + "job:" + id }

// Group returns the HASH key of a locally stored group record.
func Group(id string) string { return "groupsync:group:" + id }
