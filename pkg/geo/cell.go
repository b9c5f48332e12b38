package geo

// Cell is one unit of work in a decomposition: a box and how many splits
// produced it. The seed cell of a region has depth 0.
type Cell struct {
	Box   BoundingBox `json:"box"`
	Depth int         `json:"depth"`
}

// SeedCell returns the depth-0 cell for a region.
func SeedCell(box BoundingBox) Cell {
	return Cell{Box: box}
}

// Children returns the four quadrant cells one level deeper.
func (c Cell) Children() [4]Cell {
	boxes := c.Box.Split()
	var out [4]Cell
	for i, b := range boxes {
		out[i] = Cell{Box: b, Depth: c.Depth + 1}
	}
	return out
}

// MaxCells is the number of cells in a full quadtree of the given depth,
// (4^(d+1)-1)/3. No decomposition bounded by depth can enqueue more.
func MaxCells(depth int) int {
	if depth < 0 {
		return 0
	}
	total, level := 0, 1
	for d := 0; d <= depth; d++ {
		total += level
		level *= 4
	}
	return total
}
