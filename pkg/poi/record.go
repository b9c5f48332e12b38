// Package poi defines the point-of-interest record returned by the search
// provider and the identity key used to deduplicate it.
package poi

import "strings"

// Record is one point of interest.
type Record struct {
	// ID is the provider-assigned id. May be empty.
	ID       string `json:"id,omitempty"`
	Name     string `json:"name"`
	Address  string `json:"address"`
	Phone    string `json:"phone"`
	Location string `json:"location,omitempty"` // "lng,lat" as returned by the provider
	Type     string `json:"type,omitempty"`
	AdName   string `json:"ad_name,omitempty"`
}

// Key returns the identity used for deduplication: the provider id when
// present, otherwise trimmed name, address and location joined together.
//
// The fallback is a heuristic. Two businesses sharing a name and address
// collapse into one, and the same business with differently formatted
// addresses is kept twice. Fields are trimmed but otherwise not normalized.
func (r Record) Key() string {
	if id := strings.TrimSpace(r.ID); id != "" {
		return id
	}
	return "~" + strings.TrimSpace(r.Name) + "|" + strings.TrimSpace(r.Address) + "|" + strings.TrimSpace(r.Location)
}

// HasID reports whether the record carries a provider id.
func (r Record) HasID() bool {
	return strings.TrimSpace(r.ID) != ""
}
