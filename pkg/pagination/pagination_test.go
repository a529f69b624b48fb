package pagination

import "testing"

func TestNewPageNormalizes(t *testing.T) {
	page := NewPage(0, 0)
	if page.Number != 1 || page.PerPage != DefaultPerPage {
		t.Fatalf("unexpected defaults %+v", page)
	}
	if got := NewPage(3, 1000).PerPage; got != MaxPerPage {
		t.Fatalf("expected per page capped at %d, got %d", MaxPerPage, got)
	}
	if got := NewPage(3, 10).Offset(); got != 20 {
		t.Fatalf("expected offset 20, got %d", got)
	}
}

func TestMetaForRoundsUp(t *testing.T) {
	page := NewPage(2, 10)
	meta := page.MetaFor(21)
	if meta.TotalPages != 3 || meta.Total != 21 || meta.Page != 2 || meta.PerPage != 10 {
		t.Fatalf("unexpected meta %+v", meta)
	}
	if empty := page.MetaFor(0); empty.TotalPages != 0 {
		t.Fatalf("expected zero pages for empty result, got %d", empty.TotalPages)
	}
}
