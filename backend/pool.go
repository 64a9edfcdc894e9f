package backend

import "sort"

// Pool is a static, prioritized registry of interchangeable backends.
// Separate pools exist for chat responses and for deterministic utility
// calls (classification, query rewriting, reranking, titles).
type Pool struct {
	backends []*Descriptor
}

// NewPool builds a pool from the given descriptors.
func NewPool(backends ...*Descriptor) *Pool {
	return &Pool{backends: backends}
}

// Backends returns the registered descriptors.
func (p *Pool) Backends() []*Descriptor { return p.backends }

// Select produces the ordered candidate lists for one request. Candidates
// matching the preferred size come first, then backends serving only the
// other size, each partition sorted by priority descending with currently
// rate-limited backends pushed behind healthy ones. Premium-only backends
// are excluded unless the caller is premium eligible. Backup-only backends
// are returned separately and must only be tried after every primary failed.
// An empty preferred size skips the size partition and orders purely by
// priority.
func (p *Pool) Select(preferred Size, allowPremium bool) (primary, backup []*Descriptor) {
	eligible := make([]*Descriptor, 0, len(p.backends))
	for _, d := range p.backends {
		if d.PremiumOnly && !allowPremium {
			continue
		}
		eligible = append(eligible, d)
	}

	var ordered []*Descriptor
	if preferred == "" {
		ordered = sortCandidates(eligible)
	} else {
		var matching, spillover []*Descriptor
		for _, d := range eligible {
			if d.HasSize(preferred) {
				matching = append(matching, d)
			} else {
				spillover = append(spillover, d)
			}
		}
		ordered = append(sortCandidates(matching), sortCandidates(spillover)...)
	}

	for _, d := range ordered {
		if d.BackupOnly {
			backup = append(backup, d)
		} else {
			primary = append(primary, d)
		}
	}
	return primary, backup
}

func sortCandidates(candidates []*Descriptor) []*Descriptor {
	out := append([]*Descriptor(nil), candidates...)
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := out[i].RateLimited(), out[j].RateLimited()
		if ri != rj {
			return !ri
		}
		return out[i].Priority > out[j].Priority
	})
	return out
}
