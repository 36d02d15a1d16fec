package dedup

// UnionFind is a disjoint-set forest laid out as an arena: dense parent and
// rank slices indexed by insertion order, plus an id-to-index lookup. Union
// and find are near O(1) amortized with path compression and union by rank.
type UnionFind struct {
	parent []int
	rank   []int
	ids    []int64
	index  map[int64]int
}

// NewUnionFind creates an arena sized for n elements.
func NewUnionFind(n int) *UnionFind {
	return &UnionFind{
		parent: make([]int, 0, n),
		rank:   make([]int, 0, n),
		ids:    make([]int64, 0, n),
		index:  make(map[int64]int, n),
	}
}

// Add registers an id as its own singleton set. Adding an existing id is a
// no-op.
func (uf *UnionFind) Add(id int64) {
	if _, ok := uf.index[id]; ok {
		return
	}
	idx := len(uf.parent)
	uf.parent = append(uf.parent, idx)
	uf.rank = append(uf.rank, 0)
	uf.ids = append(uf.ids, id)
	uf.index[id] = idx
}

// find returns the root index of the set containing idx, compressing the
// path as it walks.
func (uf *UnionFind) find(idx int) int {
	for uf.parent[idx] != idx {
		uf.parent[idx] = uf.parent[uf.parent[idx]]
		idx = uf.parent[idx]
	}
	return idx
}

// Union merges the sets containing ids a and b. Unknown ids are added first.
func (uf *UnionFind) Union(a, b int64) {
	uf.Add(a)
	uf.Add(b)

	ra := uf.find(uf.index[a])
	rb := uf.find(uf.index[b])
	if ra == rb {
		return
	}

	if uf.rank[ra] < uf.rank[rb] {
		ra, rb = rb, ra
	}
	uf.parent[rb] = ra
	if uf.rank[ra] == uf.rank[rb] {
		uf.rank[ra]++
	}
}

// Connected reports whether a and b are in the same set. Unknown ids are
// never connected to anything.
func (uf *UnionFind) Connected(a, b int64) bool {
	ia, ok := uf.index[a]
	if !ok {
		return false
	}
	ib, ok := uf.index[b]
	if !ok {
		return false
	}
	return uf.find(ia) == uf.find(ib)
}

// Clusters returns the member ids of every set, keyed by the set's lowest
// id. Member lists are not sorted.
func (uf *UnionFind) Clusters() map[int64][]int64 {
	byRoot := make(map[int][]int64)
	for idx, id := range uf.ids {
		root := uf.find(idx)
		byRoot[root] = append(byRoot[root], id)
	}

	clusters := make(map[int64][]int64, len(byRoot))
	for _, members := range byRoot {
		canonical := members[0]
		for _, id := range members[1:] {
			if id < canonical {
				canonical = id
			}
		}
		clusters[canonical] = members
	}
	return clusters
}
