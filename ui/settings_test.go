package ui

import (
	"testing"

	"github.com/pthm-cable/fieldview/transfer"
)

func TestNextSchemeCycles(t *testing.T) {
	names := transfer.Names()
	seen := map[string]bool{}
	name := names[0]
	for range names {
		seen[name] = true
		name = NextScheme(name)
	}
	if name != names[0] {
		t.Errorf("cycle ended at %q, want %q", name, names[0])
	}
	if len(seen) != len(names) {
		t.Errorf("visited %d schemes, want %d", len(seen), len(names))
	}
	if got := NextScheme("custom"); got != names[0] {
		t.Errorf("NextScheme(custom) = %q, want %q", got, names[0])
	}
}

func TestSectionHeightSkipsHidden(t *testing.T) {
	r := NewRenderer()
	data := HUDData{LiveTime: -1, Building: true}
	var total int32
	for _, sd := range infoSections {
		total += r.SectionHeight(sd, data)
	}
	// Only the rebuild section: header, one bar, trailing gap.
	want := r.Theme.LineHeight + r.Theme.LineHeight + 2 + 4
	if total != want {
		t.Errorf("height = %d, want %d", total, want)
	}
}
