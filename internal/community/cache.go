package community

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rohankatakam/graphrag/internal/graphmodel"
	bolt "go.etcd.io/bbolt"
)

var summaryBucket = []byte("community_summaries")

// SummaryCache remembers a community's last report against a content digest
// of its member set, so Rebuild can skip a completion call for a cluster
// that is unchanged since the previous run (spec.md §4.C Summarization is
// the most expensive step in the pipeline). Rebuild's "recomputed wholesale,
// prior communities overwritten" contract is unaffected: a cache hit still
// overwrites the stored Community, it just reuses the prior report body
// instead of calling Completion again.
type SummaryCache struct {
	db *bolt.DB
}

// NewSummaryCache opens (creating if absent) a bbolt file at path, grounded
// on the teacher's internal/mcp/identity_resolver.go local disk-cache
// pattern.
func NewSummaryCache(path string) (*SummaryCache, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open summary cache: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(summaryBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init summary cache bucket: %w", err)
	}
	return &SummaryCache{db: db}, nil
}

func (c *SummaryCache) Close() error {
	return c.db.Close()
}

// digest identifies a cluster by its member set and incident edge
// descriptions, independent of the community uid (which encodes level and
// cluster index, not content).
func digest(memberUIDs []string, edges []*graphmodel.Edge) string {
	var b strings.Builder
	for _, uid := range memberUIDs {
		b.WriteString(uid)
		b.WriteByte('\n')
	}
	for _, e := range edges {
		fmt.Fprintf(&b, "%s>%s:%s\n", e.Source, e.Target, e.Description)
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached report for this exact member/edge content, if any.
func (c *SummaryCache) Get(memberUIDs []string, edges []*graphmodel.Edge) (*graphmodel.Community, bool) {
	key := digest(memberUIDs, edges)

	var raw []byte
	_ = c.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(summaryBucket).Get([]byte(key))
		if v != nil {
			raw = append([]byte(nil), v...)
		}
		return nil
	})
	if raw == nil {
		return nil, false
	}

	var report graphmodel.Community
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil, false
	}
	return &report, true
}

// Put stores report under this content's digest.
func (c *SummaryCache) Put(memberUIDs []string, edges []*graphmodel.Edge, report *graphmodel.Community) error {
	key := digest(memberUIDs, edges)
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal cached report: %w", err)
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(summaryBucket).Put([]byte(key), data)
	})
}
