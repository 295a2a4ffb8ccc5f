package h3mapper

import (
	"testing"

	"github.com/mohammed-shakir/h3-refcat/internal/core/sky"
)

func TestToParent_ContainsChildPoint(t *testing.T) {
	m := New()
	p := sky.NewCoord(215.5, 53)

	leaf, err := m.CellForCoord(p, 8)
	if err != nil {
		t.Fatalf("CellForCoord: %v", err)
	}
	parent, err := m.ToParent(leaf, 5)
	if err != nil {
		t.Fatalf("ToParent: %v", err)
	}
	if parent.Resolution() != 5 {
		t.Fatalf("parent res=%d want 5", parent.Resolution())
	}
	if same, err := m.ToParent(leaf, 8); err != nil || same != leaf {
		t.Fatalf("ToParent at own res: got %s err=%v", same, err)
	}
	if _, err := m.ToParent(parent, 6); err == nil {
		t.Fatalf("expected error for parentRes finer than cell")
	}
}

func TestParseCell_RoundTrip(t *testing.T) {
	m := New()
	c, err := m.CellForCoord(sky.NewCoord(1, 2), 7)
	if err != nil {
		t.Fatalf("CellForCoord: %v", err)
	}
	got, err := ParseCell(c.String())
	if err != nil || got != c {
		t.Fatalf("ParseCell(%s) = %s, %v", c, got, err)
	}
	if _, err := ParseCell("not-a-cell"); err == nil {
		t.Fatalf("expected parse error")
	}
}
