package geo

import "testing"

func TestCell_Children(t *testing.T) {
	parent := Cell{Box: BoundingBox{MinLng: 0, MinLat: 0, MaxLng: 2, MaxLat: 2}, Depth: 3}
	children := parent.Children()

	for i, c := range children {
		if c.Depth != 4 {
			t.Errorf("child %d depth = %d, want 4", i, c.Depth)
		}
		if c.Box.Area() != 1 {
			t.Errorf("child %d area = %v, want 1", i, c.Box.Area())
		}
	}

	// The parent is a value and must not change.
	if parent.Depth != 3 || parent.Box.Area() != 4 {
		t.Errorf("parent mutated: %+v", parent)
	}
}

func TestMaxCells(t *testing.T) {
	tests := []struct {
		depth int
		want  int
	}{
		{-1, 0},
		{0, 1},
		{1, 5},
		{2, 21},
		{3, 85},
		{6, 5461},
	}

	for _, tt := range tests {
		if got := MaxCells(tt.depth); got != tt.want {
			t.Errorf("MaxCells(%d) = %d, want %d", tt.depth, got, tt.want)
		}
	}
}
