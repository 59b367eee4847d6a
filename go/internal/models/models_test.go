package models

import (
	"testing"
	"time"
)

func TestGameRemainingNumbers(t *testing.T) {
	g := &Game{DrawnNumbers: []int{1, 75, 40}}
	remaining := g.RemainingNumbers()
	if len(remaining) != 72 {
		t.Fatalf("expected 72 remaining, got %d", len(remaining))
	}
	for _, n := range remaining {
		if g.HasDrawn(n) {
			t.Fatalf("%d is drawn but listed as remaining", n)
		}
	}
	if g.LastDrawn() != 40 {
		t.Errorf("LastDrawn() = %d, want 40", g.LastDrawn())
	}
}

func TestGameCloneIsDeep(t *testing.T) {
	now := time.Now()
	g := &Game{DrawnNumbers: []int{3}, AdminConnections: []string{"a"}, StartedAt: &now}
	c := g.Clone()
	c.DrawnNumbers[0] = 9
	c.AdminConnections[0] = "b"
	*c.StartedAt = now.Add(time.Hour)

	if g.DrawnNumbers[0] != 3 || g.AdminConnections[0] != "a" || !g.StartedAt.Equal(now) {
		t.Fatal("Clone shares memory with the original")
	}
}

func TestPlayerClone(t *testing.T) {
	conn := "conn-1"
	p := &Player{MarkedNumbers: []int{4}, ConnectionID: &conn}
	c := p.Clone()
	c.MarkedNumbers = append(c.MarkedNumbers[:0], 5)
	*c.ConnectionID = "conn-2"

	if !p.IsMarked(4) || *p.ConnectionID != "conn-1" {
		t.Fatal("Clone shares memory with the original")
	}
}

func TestIsTimed(t *testing.T) {
	if (&Game{DrawMode: DrawModeTimed}).IsTimed() {
		t.Error("timed mode without an interval is not timed")
	}
	if !(&Game{DrawMode: DrawModeTimed, DrawIntervalSec: 5}).IsTimed() {
		t.Error("expected timed")
	}
}
