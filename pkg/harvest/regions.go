package harvest

import "github.com/Sternrassler/poi-sweep/pkg/geo"

// Municipalities returns approximate boundaries of the provincial-level
// cities, enough to seed a sweep without a boundary lookup.
func Municipalities() []Region {
	return []Region{
		{Name: "北京", Code: "110000", Seed: &geo.BoundingBox{MinLng: 115.42, MinLat: 39.44, MaxLng: 117.51, MaxLat: 41.06}},
		{Name: "天津", Code: "120000", Seed: &geo.BoundingBox{MinLng: 116.70, MinLat: 38.55, MaxLng: 118.06, MaxLat: 40.25}},
		{Name: "上海", Code: "310000", Seed: &geo.BoundingBox{MinLng: 120.85, MinLat: 30.67, MaxLng: 122.20, MaxLat: 31.88}},
		{Name: "重庆", Code: "500000", Seed: &geo.BoundingBox{MinLng: 105.28, MinLat: 28.16, MaxLng: 110.20, MaxLat: 32.21}},
	}
}
