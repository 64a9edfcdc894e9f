package backend

import "testing"

func descriptorNames(list []*Descriptor) []string {
	out := make([]string, len(list))
	for i, d := range list {
		out[i] = d.Name
	}
	return out
}

func equalNames(got []*Descriptor, want ...string) bool {
	if len(got) != len(want) {
		return false
	}
	for i, d := range got {
		if d.Name != want[i] {
			return false
		}
	}
	return true
}

func TestSelectPrefersSizeThenPriority(t *testing.T) {
	pool := NewPool(
		&Descriptor{Name: "large-low", Sizes: []Size{SizeLarge}, Priority: 1},
		&Descriptor{Name: "small-high", Sizes: []Size{SizeSmall}, Priority: 10},
		&Descriptor{Name: "small-low", Sizes: []Size{SizeSmall}, Priority: 2},
		&Descriptor{Name: "large-high", Sizes: []Size{SizeLarge}, Priority: 9},
	)

	primary, backup := pool.Select(SizeSmall, false)
	if len(backup) != 0 {
		t.Fatalf("unexpected backup tier: %v", descriptorNames(backup))
	}
	if !equalNames(primary, "small-high", "small-low", "large-high", "large-low") {
		t.Fatalf("unexpected order: %v", descriptorNames(primary))
	}
}

func TestSelectExcludesPremium(t *testing.T) {
	pool := NewPool(
		&Descriptor{Name: "premium", Sizes: []Size{SizeSmall}, Priority: 10, PremiumOnly: true},
		&Descriptor{Name: "standard", Sizes: []Size{SizeSmall}, Priority: 1},
	)

	primary, _ := pool.Select(SizeSmall, false)
	if !equalNames(primary, "standard") {
		t.Fatalf("premium backend leaked into non-premium selection: %v", descriptorNames(primary))
	}

	primary, _ = pool.Select(SizeSmall, true)
	if !equalNames(primary, "premium", "standard") {
		t.Fatalf("premium selection wrong: %v", descriptorNames(primary))
	}
}

func TestSelectSplitsBackupTier(t *testing.T) {
	pool := NewPool(
		&Descriptor{Name: "primary", Sizes: []Size{SizeSmall}, Priority: 5},
		&Descriptor{Name: "backup", Sizes: []Size{SizeSmall}, Priority: 10, BackupOnly: true},
	)

	primary, backup := pool.Select(SizeSmall, false)
	if !equalNames(primary, "primary") {
		t.Fatalf("primary tier wrong: %v", descriptorNames(primary))
	}
	if !equalNames(backup, "backup") {
		t.Fatalf("backup tier wrong: %v", descriptorNames(backup))
	}
}

func TestSelectDeprioritizesRateLimited(t *testing.T) {
	limited := &Descriptor{Name: "limited", Sizes: []Size{SizeSmall}, Priority: 10}
	limited.setRateLimited(true)
	pool := NewPool(
		limited,
		&Descriptor{Name: "healthy", Sizes: []Size{SizeSmall}, Priority: 1},
	)

	primary, _ := pool.Select(SizeSmall, false)
	if !equalNames(primary, "healthy", "limited") {
		t.Fatalf("rate-limited backend not deprioritized: %v", descriptorNames(primary))
	}
}

func TestSelectNoPreferredSizeUsesPriorityOnly(t *testing.T) {
	pool := NewPool(
		&Descriptor{Name: "small", Sizes: []Size{SizeSmall}, Priority: 1},
		&Descriptor{Name: "large", Sizes: []Size{SizeLarge}, Priority: 5},
	)

	primary, _ := pool.Select("", false)
	if !equalNames(primary, "large", "small") {
		t.Fatalf("priority-only order wrong: %v", descriptorNames(primary))
	}
}
