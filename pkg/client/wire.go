package client

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/Sternrassler/poi-sweep/pkg/poi"
)

// searchResponse is the provider's JSON envelope.
type searchResponse struct {
	Status   string      `json:"status"`
	Count    flexString  `json:"count"`
	Info     string      `json:"info"`
	InfoCode string      `json:"infocode"`
	POIs     []searchPOI `json:"pois"`
}

type searchPOI struct {
	ID       flexString `json:"id"`
	Name     flexString `json:"name"`
	Type     flexString `json:"type"`
	Address  flexString `json:"address"`
	Tel      flexString `json:"tel"`
	Location flexString `json:"location"`
	AdName   flexString `json:"adname"`
}

// flexString accepts a string, a number, null or an array of strings. The
// provider sends [] instead of "" for empty text fields and several phone
// numbers as one ";"-separated string or as an array.
type flexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
	case '[':
		var parts []string
		if err := json.Unmarshal(data, &parts); err != nil {
			return err
		}
		*f = flexString(strings.Join(parts, ";"))
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		*f = flexString(n.String())
	}
	return nil
}

// declaredTotal parses the count field. Missing or unparseable counts
// return nil.
func (r *searchResponse) declaredTotal() *int {
	s := strings.TrimSpace(string(r.Count))
	if s == "" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return nil
	}
	return &n
}

func (r *searchResponse) records() []poi.Record {
	out := make([]poi.Record, 0, len(r.POIs))
	for _, p := range r.POIs {
		out = append(out, poi.Record{
			ID:       string(p.ID),
			Name:     string(p.Name),
			Address:  string(p.Address),
			Phone:    string(p.Tel),
			Location: string(p.Location),
			Type:     string(p.Type),
			AdName:   string(p.AdName),
		})
	}
	return out
}
