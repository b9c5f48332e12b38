package cache

import (
	"fmt"
	"strings"
)

// PageKey identifies one page of one query.
type PageKey struct {
	Keyword  string
	City     string
	Polygon  string
	Page     int
	PageSize int
}

// String generates a deterministic cache key string.
// Format: poi:page:keyword:city:polygon:p=1:n=25
func (k PageKey) String() string {
	parts := []string{"poi", "page",
		strings.TrimSpace(k.Keyword),
		strings.TrimSpace(k.City),
		k.Polygon,
		fmt.Sprintf("p=%d", k.Page),
		fmt.Sprintf("n=%d", k.PageSize),
	}
	return strings.Join(parts, ":")
}
