package backend

import "sync/atomic"

// Size classifies a backend by model capability.
type Size string

const (
	SizeSmall Size = "small"
	SizeLarge Size = "large"
)

// Descriptor is one registered generation backend. Descriptors are created
// from static configuration at process start and live for the process
// lifetime; only the rate-limit flag mutates afterwards.
type Descriptor struct {
	Name   string
	Client Client
	// Sizes lists the size classes this backend can serve.
	Sizes []Size
	// Priority orders candidates within a partition; higher wins.
	Priority int
	// CapacityPerMinute estimates how many concurrent users the backend
	// sustains per minute. Informational; exposed for monitoring.
	CapacityPerMinute int
	// PremiumOnly restricts the backend to premium-eligible requests.
	PremiumOnly bool
	// BackupOnly keeps the backend out of the primary tier; it is tried
	// only after every primary candidate failed.
	BackupOnly bool

	rateLimited atomic.Bool
}

// HasSize reports whether the backend serves the given size class.
func (d *Descriptor) HasSize(s Size) bool {
	for _, have := range d.Sizes {
		if have == s {
			return true
		}
	}
	return false
}

// RateLimited reports the last observed rate-limit state. The flag is shared
// across all concurrent sessions; writes are last-writer-wins since staleness
// only affects routing preference, not correctness.
func (d *Descriptor) RateLimited() bool { return d.rateLimited.Load() }

func (d *Descriptor) setRateLimited(v bool) { d.rateLimited.Store(v) }
