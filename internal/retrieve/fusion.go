package retrieve

import (
	"sort"

	"github.com/openclaw/openclaw-memory/internal/store"
)

// rrfK is the reciprocal rank fusion smoothing constant. k=60 is the
// standard choice across search engines.
const rrfK = 60

// fused is one chunk after merging the vector and full-text lists.
type fused struct {
	rec store.Record
	rrf float64
	sem float64 // cosine similarity from the vector list, 0 when FTS-only
	src *store.Store
}

// rankedList pairs hits with the store they came from, so access counters
// can be incremented against the right scope later.
type rankedList struct {
	hits []store.Hit
	src  map[string]*store.Store
}

// rrfFuse merges a vector list and a full-text list by reciprocal rank.
// Each chunk contributes 1/(k + rank + 1) per list it appears in, with
// zero-based ranks. Output is ordered by descending fusion score, ties
// broken by chunk id.
func rrfFuse(vec, fts rankedList) []fused {
	merged := make(map[string]*fused, len(vec.hits)+len(fts.hits))

	for rank, h := range vec.hits {
		f := &fused{rec: h.Record, src: vec.src[h.ID]}
		f.rrf = 1 / float64(rrfK+rank+1)
		// Vector scores are (1+cos)/2; salience wants plain cosine,
		// floored at zero for the weighting to stay in [0,1].
		f.sem = max(0, 2*h.Score-1)
		merged[h.ID] = f
	}
	for rank, h := range fts.hits {
		if f, ok := merged[h.ID]; ok {
			f.rrf += 1 / float64(rrfK+rank+1)
			continue
		}
		merged[h.ID] = &fused{
			rec: h.Record,
			rrf: 1 / float64(rrfK+rank+1),
			src: fts.src[h.ID],
		}
	}

	out := make([]fused, 0, len(merged))
	for _, f := range merged {
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].rrf != out[j].rrf {
			return out[i].rrf > out[j].rrf
		}
		return out[i].rec.ID < out[j].rec.ID
	})
	return out
}
