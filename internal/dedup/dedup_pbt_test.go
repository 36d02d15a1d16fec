package dedup

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func tokenSetGen() gopter.Gen {
	return gen.SliceOf(gen.RegexMatch(`[a-z]{3,8}`)).Map(func(words []string) map[string]struct{} {
		set := make(map[string]struct{}, len(words))
		for _, w := range words {
			set[w] = struct{}{}
		}
		return set
	})
}

func TestJaccardProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("similarity is symmetric", prop.ForAll(
		func(a, b map[string]struct{}) bool {
			return Jaccard(a, b) == Jaccard(b, a)
		},
		tokenSetGen(),
		tokenSetGen(),
	))

	properties.Property("similarity is within [0, 1]", prop.ForAll(
		func(a, b map[string]struct{}) bool {
			s := Jaccard(a, b)
			return s >= 0 && s <= 1
		},
		tokenSetGen(),
		tokenSetGen(),
	))

	properties.Property("non-empty set matches itself exactly", prop.ForAll(
		func(a map[string]struct{}) bool {
			if len(a) == 0 {
				return Jaccard(a, a) == 0
			}
			return Jaccard(a, a) == 1
		},
		tokenSetGen(),
	))

	properties.TestingRun(t)
}

func TestUnionFindProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	idsGen := gen.SliceOf(gen.Int64Range(1, 50))

	properties.Property("every union is reflected by Connected", prop.ForAll(
		func(pairs []int64) bool {
			uf := NewUnionFind(len(pairs))
			for i := 0; i+1 < len(pairs); i += 2 {
				uf.Union(pairs[i], pairs[i+1])
			}
			for i := 0; i+1 < len(pairs); i += 2 {
				if !uf.Connected(pairs[i], pairs[i+1]) {
					return false
				}
			}
			return true
		},
		idsGen,
	))

	properties.Property("cluster key is the minimum of its members", prop.ForAll(
		func(pairs []int64) bool {
			uf := NewUnionFind(len(pairs))
			for i := 0; i+1 < len(pairs); i += 2 {
				uf.Union(pairs[i], pairs[i+1])
			}
			for canonical, members := range uf.Clusters() {
				for _, id := range members {
					if id < canonical {
						return false
					}
				}
			}
			return true
		},
		idsGen,
	))

	properties.TestingRun(t)
}
