package registry

import "sort"

// ShardRegistry is the monotonically growing set of shards known to the
// local node. Entries are only ever added; there is no liveness signal
// to justify eviction. Not thread-safe; only the shard core touches it.
type ShardRegistry struct {
	shards map[string]struct{}
	order  []string // Insertion order, for deterministic fan-out
}

func NewShardRegistry() *ShardRegistry {
	return &ShardRegistry{
		shards: make(map[string]struct{}),
	}
}

// Register inserts a shard. Returns true if the shard was new.
func (r *ShardRegistry) Register(shard string) bool {
	if shard == "" {
		return false
	}
	if _, ok := r.shards[shard]; ok {
		return false
	}
	r.shards[shard] = struct{}{}
	r.order = append(r.order, shard)
	return true
}

// Contains reports whether the shard is already registered.
func (r *ShardRegistry) Contains(shard string) bool {
	_, ok := r.shards[shard]
	return ok
}

// Peers returns every registered shard except self, in insertion order.
func (r *ShardRegistry) Peers(self string) []string {
	peers := make([]string, 0, len(r.order))
	for _, s := range r.order {
		if s != self {
			peers = append(peers, s)
		}
	}
	return peers
}

// All returns every registered shard sorted lexically.
func (r *ShardRegistry) All() []string {
	all := make([]string, 0, len(r.shards))
	for s := range r.shards {
		all = append(all, s)
	}
	sort.Strings(all)
	return all
}

// Size returns the number of registered shards.
func (r *ShardRegistry) Size() int {
	return len(r.shards)
}
