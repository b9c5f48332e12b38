// Package geo provides the bounding boxes and decomposition cells used to
// sweep a region with a capped spatial search API.
package geo

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

// ErrInvalidBox is returned when a box has no area or inverted edges.
var ErrInvalidBox = errors.New("invalid bounding box")

// BoundingBox is an axis-aligned box in WGS84-style degrees.
type BoundingBox struct {
	MinLng float64 `json:"min_lng"`
	MinLat float64 `json:"min_lat"`
	MaxLng float64 `json:"max_lng"`
	MaxLat float64 `json:"max_lat"`
}

// NewBoundingBox validates the edges and returns the box.
func NewBoundingBox(minLng, minLat, maxLng, maxLat float64) (BoundingBox, error) {
	b := BoundingBox{MinLng: minLng, MinLat: minLat, MaxLng: maxLng, MaxLat: maxLat}
	if err := b.Validate(); err != nil {
		return BoundingBox{}, err
	}
	return b, nil
}

// ParseBoundingBox parses "minLng,minLat,maxLng,maxLat".
func ParseBoundingBox(s string) (BoundingBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return BoundingBox{}, fmt.Errorf("%w: want 4 comma-separated values, got %q", ErrInvalidBox, s)
	}

	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return BoundingBox{}, fmt.Errorf("%w: parse %q: %v", ErrInvalidBox, p, err)
		}
		v[i] = f
	}

	return NewBoundingBox(v[0], v[1], v[2], v[3])
}

// FromBound converts an orb.Bound into a BoundingBox.
func FromBound(b orb.Bound) BoundingBox {
	return BoundingBox{MinLng: b.Min.Lon(), MinLat: b.Min.Lat(), MaxLng: b.Max.Lon(), MaxLat: b.Max.Lat()}
}

// Validate checks minLng < maxLng and minLat < maxLat.
func (b BoundingBox) Validate() error {
	for _, v := range []float64{b.MinLng, b.MinLat, b.MaxLng, b.MaxLat} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite edge in %s", ErrInvalidBox, b)
		}
	}
	if b.MinLng >= b.MaxLng || b.MinLat >= b.MaxLat {
		return fmt.Errorf("%w: %s", ErrInvalidBox, b)
	}
	return nil
}

// Bound returns the box as an orb.Bound.
func (b BoundingBox) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{b.MinLng, b.MinLat},
		Max: orb.Point{b.MaxLng, b.MaxLat},
	}
}

// Width is the longitude span in degrees.
func (b BoundingBox) Width() float64 { return b.MaxLng - b.MinLng }

// Height is the latitude span in degrees.
func (b BoundingBox) Height() float64 { return b.MaxLat - b.MinLat }

// Area is Width*Height in square degrees.
func (b BoundingBox) Area() float64 { return b.Width() * b.Height() }

// Center returns the midpoint of the box.
func (b BoundingBox) Center() orb.Point { return b.Bound().Center() }

// Contains reports whether p lies inside the box, edges included.
func (b BoundingBox) Contains(p orb.Point) bool { return b.Bound().Contains(p) }

// CanSplit reports whether both edges are longer than minEdge.
func (b BoundingBox) CanSplit(minEdge float64) bool {
	return b.Width() > minEdge && b.Height() > minEdge
}

// Split partitions the box at its midpoint into SW, SE, NW, NE quadrants.
// The children share edges with each other and cover the parent exactly.
func (b BoundingBox) Split() [4]BoundingBox {
	c := b.Center()
	midLng, midLat := c.Lon(), c.Lat()

	return [4]BoundingBox{
		{MinLng: b.MinLng, MinLat: b.MinLat, MaxLng: midLng, MaxLat: midLat},
		{MinLng: midLng, MinLat: b.MinLat, MaxLng: b.MaxLng, MaxLat: midLat},
		{MinLng: b.MinLng, MinLat: midLat, MaxLng: midLng, MaxLat: b.MaxLat},
		{MinLng: midLng, MinLat: midLat, MaxLng: b.MaxLng, MaxLat: b.MaxLat},
	}
}

// Ring returns the closed 5-point ring SW, SE, NE, NW, SW (counter-clockwise).
func (b BoundingBox) Ring() orb.Ring {
	return orb.Ring{
		{b.MinLng, b.MinLat},
		{b.MaxLng, b.MinLat},
		{b.MaxLng, b.MaxLat},
		{b.MinLng, b.MaxLat},
		{b.MinLng, b.MinLat},
	}
}

// PolygonParam renders the ring in the provider's polygon format:
// "lng,lat|lng,lat|..." with 6 decimals.
func (b BoundingBox) PolygonParam() string {
	ring := b.Ring()
	parts := make([]string, len(ring))
	for i, p := range ring {
		parts[i] = strconv.FormatFloat(p.Lon(), 'f', 6, 64) + "," + strconv.FormatFloat(p.Lat(), 'f', 6, 64)
	}
	return strings.Join(parts, "|")
}

// String implements fmt.Stringer.
func (b BoundingBox) String() string {
	return fmt.Sprintf("[%.6f,%.6f,%.6f,%.6f]", b.MinLng, b.MinLat, b.MaxLng, b.MaxLat)
}
