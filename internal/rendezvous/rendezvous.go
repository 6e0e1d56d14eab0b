// Package rendezvous implements the Rendezvous Store (spec.md §4.F): the
// completion-detection channel between the Query Orchestrator and the Map
// Worker pool. It is a keyed key-value store with merge semantics rather
// than a plain map store, so concurrent workers answering the same query
// converge on one aggregate document instead of clobbering each other.
package rendezvous

import "context"

// PartialAnswer is one Map Worker's contribution to a query's aggregate
// document (spec.md §6 Persisted state layout: "fields = map from community
// title/uid → {community, response, score}").
type PartialAnswer struct {
	CommunityUID string  `json:"community_uid"`
	Response     string  `json:"response"`
	Score        int     `json:"score"`
}

// Store is the completion-detection channel between Orchestrator and
// workers. Put is idempotent under retried delivery: writing the same
// sub_key twice with the identical value must not change the document's
// size as observed by Get (spec.md §4.D Idempotence & partial failure).
type Store interface {
	// Put inserts or overwrites value at document[queryKey][subKey]
	// atomically.
	Put(ctx context.Context, queryKey, subKey string, value PartialAnswer) error

	// Get returns the current document for queryKey, or an empty map if no
	// sub-key has been written yet (not an error — "absent" per spec.md
	// §4.F).
	Get(ctx context.Context, queryKey string) (map[string]PartialAnswer, error)

	// Delete removes the document for queryKey. The Orchestrator does not
	// call it; a query's document stays in the store after it is answered.
	Delete(ctx context.Context, queryKey string) error

	Close() error
}
