package harvest

import (
	"context"
	"fmt"
	"strings"

	"github.com/Sternrassler/poi-sweep/pkg/geo"
)

// Region is one unit of a batch as supplied by boundary resolution. Seed is
// nil when no boundary could be found.
type Region struct {
	Name string
	Code string
	Seed *geo.BoundingBox
}

// Resolver looks up the boundary of a region by name or code.
type Resolver interface {
	Resolve(ctx context.Context, name string) (Region, error)
}

// StaticResolver resolves regions from a fixed table keyed by name and code.
// Unknown names resolve to a region without a seed.
type StaticResolver map[string]Region

// NewStaticResolver indexes regions by name and, when set, by code.
func NewStaticResolver(regions ...Region) StaticResolver {
	s := make(StaticResolver, len(regions)*2)
	for _, r := range regions {
		s[r.Name] = r
		if r.Code != "" {
			s[r.Code] = r
		}
	}
	return s
}

// Resolve implements Resolver.
func (s StaticResolver) Resolve(_ context.Context, name string) (Region, error) {
	if r, ok := s[strings.TrimSpace(name)]; ok {
		return r, nil
	}
	return Region{Name: strings.TrimSpace(name)}, nil
}

// ParseRegion reads "name[:code[:minLng,minLat,maxLng,maxLat]]". A region
// without a box has a nil Seed.
func ParseRegion(s string) (Region, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 3)

	r := Region{Name: strings.TrimSpace(parts[0])}
	if r.Name == "" {
		return Region{}, fmt.Errorf("region %q: name is required", s)
	}
	if len(parts) > 1 {
		r.Code = strings.TrimSpace(parts[1])
	}
	if len(parts) > 2 && strings.TrimSpace(parts[2]) != "" {
		box, err := geo.ParseBoundingBox(parts[2])
		if err != nil {
			return Region{}, fmt.Errorf("region %q: %w", s, err)
		}
		r.Seed = &box
	}
	return r, nil
}

// ResolveAll parses each region argument and fills missing seeds from resolver, which
// may be nil.
func ResolveAll(ctx context.Context, resolver Resolver, args []string) ([]Region, error) {
	regions := make([]Region, 0, len(args))
	for _, arg := range args {
		r, err := ParseRegion(arg)
		if err != nil {
			return nil, err
		}
		if r.Seed == nil && resolver != nil {
			key := r.Name
			if r.Code != "" {
				key = r.Code
			}
			resolved, err := resolver.Resolve(ctx, key)
			if err != nil {
				return nil, fmt.Errorf("resolve region %s: %w", r.Name, err)
			}
			r.Seed = resolved.Seed
			if r.Code == "" {
				r.Code = resolved.Code
			}
		}
		regions = append(regions, r)
	}
	return regions, nil
}
