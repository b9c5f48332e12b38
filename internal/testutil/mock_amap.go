// Package testutil provides a fake polygon-search provider for tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/paulmach/orb"
)

// MockPOI is one point served by the mock provider.
type MockPOI struct {
	ID      string
	Name    string
	Address string
	Tel     string
	Point   orb.Point
}

// MockResponse is a scripted reply served before normal handling.
type MockResponse struct {
	StatusCode int
	Body       string
	Delay      time.Duration

	// Drop closes the connection without a response.
	Drop bool

	// Pass serves the request normally. Used to script a failure for a
	// later request.
	Pass bool
}

// MockAMap is a configurable polygon-search server. It answers each query
// with the points inside the polygon's bounding box, sorted by id, after
// applying the per-query cap and paging.
type MockAMap struct {
	server *httptest.Server
	mu     sync.Mutex

	points []MockPOI
	script []MockResponse

	// QueryCap is the most results any single query can reach. Zero means
	// unlimited. The declared count still reports the true total.
	QueryCap int

	// OmitCount leaves the count field out of responses.
	OmitCount bool

	// EndCode, when set, is returned as infocode for pages past the end
	// instead of an empty page.
	EndCode string

	// Tracking
	RequestCount int
	Queries      []url.Values
}

// NewMockAMap creates and starts a mock provider.
func NewMockAMap() *MockAMap {
	m := &MockAMap{}
	m.server = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

// URL returns the mock server URL.
func (m *MockAMap) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockAMap) Close() {
	m.server.Close()
}

// SetPoints replaces the served point set.
func (m *MockAMap) SetPoints(points []MockPOI) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.points = append([]MockPOI(nil), points...)
}

// SetQueryCap sets the per-query result ceiling.
func (m *MockAMap) SetQueryCap(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.QueryCap = n
}

// Enqueue scripts replies for the next requests, in order.
func (m *MockAMap) Enqueue(responses ...MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, responses...)
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockAMap) GetRequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.RequestCount
}

// GetQueries returns a copy of every query received.
func (m *MockAMap) GetQueries() []url.Values {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]url.Values(nil), m.Queries...)
}

func (m *MockAMap) handle(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.RequestCount++
	m.Queries = append(m.Queries, r.URL.Query())
	var scripted *MockResponse
	if len(m.script) > 0 {
		s := m.script[0]
		m.script = m.script[1:]
		scripted = &s
	}
	m.mu.Unlock()

	if scripted != nil && !scripted.Pass {
		m.serveScripted(w, *scripted)
		return
	}

	m.serveSearch(w, r.URL.Query())
}

func (m *MockAMap) serveScripted(w http.ResponseWriter, s MockResponse) {
	if s.Delay > 0 {
		time.Sleep(s.Delay)
	}
	if s.Drop {
		hj, ok := w.(http.Hijacker)
		if !ok {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		conn, _, err := hj.Hijack()
		if err == nil {
			conn.Close()
		}
		return
	}

	status := s.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json;charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(s.Body))
}

type wirePOI struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Address  any    `json:"address"`
	Tel      any    `json:"tel"`
	Location string `json:"location"`
}

type wireResponse struct {
	Status   string    `json:"status"`
	Count    *string   `json:"count,omitempty"`
	Info     string    `json:"info"`
	InfoCode string    `json:"infocode"`
	POIs     []wirePOI `json:"pois"`
}

func (m *MockAMap) serveSearch(w http.ResponseWriter, q url.Values) {
	bound, err := parsePolygon(q.Get("polygon"))
	if err != nil {
		writeJSON(w, wireResponse{Status: "0", Info: "INVALID_PARAMS", InfoCode: "20000"})
		return
	}
	page, _ := strconv.Atoi(q.Get("page"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	if page < 1 {
		page = 1
	}
	if offset < 1 {
		offset = 20
	}

	m.mu.Lock()
	var matches []MockPOI
	for _, p := range m.points {
		if bound.Contains(p.Point) {
			matches = append(matches, p)
		}
	}
	queryCap, omitCount, endCode := m.QueryCap, m.OmitCount, m.EndCode
	m.mu.Unlock()

	sort.Slice(matches, func(i, j int) bool { return matches[i].ID < matches[j].ID })
	total := len(matches)

	reachable := matches
	if queryCap > 0 && len(reachable) > queryCap {
		reachable = reachable[:queryCap]
	}

	start := (page - 1) * offset
	if start >= len(reachable) && endCode != "" && page > 1 {
		writeJSON(w, wireResponse{Status: "0", Info: "PAGE_OUT_OF_RANGE", InfoCode: endCode})
		return
	}

	resp := wireResponse{Status: "1", Info: "OK", InfoCode: "10000", POIs: []wirePOI{}}
	if !omitCount {
		count := strconv.Itoa(total)
		resp.Count = &count
	}
	for i := start; i < start+offset && i < len(reachable); i++ {
		resp.POIs = append(resp.POIs, toWire(reachable[i]))
	}

	writeJSON(w, resp)
}

// toWire mimics the provider: empty text fields are sent as [].
func toWire(p MockPOI) wirePOI {
	var address, tel any = p.Address, p.Tel
	if p.Address == "" {
		address = []string{}
	}
	if p.Tel == "" {
		tel = []string{}
	}
	return wirePOI{
		ID:       p.ID,
		Name:     p.Name,
		Type:     "商务住宅;住宅区;住宅小区",
		Address:  address,
		Tel:      tel,
		Location: fmt.Sprintf("%.6f,%.6f", p.Point.Lon(), p.Point.Lat()),
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json;charset=utf-8")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(v)
}

// parsePolygon reads "lng,lat|lng,lat|..." and returns its bounds.
func parsePolygon(s string) (orb.Bound, error) {
	if s == "" {
		return orb.Bound{}, fmt.Errorf("empty polygon")
	}
	var ring orb.Ring
	for _, pair := range strings.Split(s, "|") {
		xy := strings.Split(pair, ",")
		if len(xy) != 2 {
			return orb.Bound{}, fmt.Errorf("bad point %q", pair)
		}
		lng, err := strconv.ParseFloat(xy[0], 64)
		if err != nil {
			return orb.Bound{}, err
		}
		lat, err := strconv.ParseFloat(xy[1], 64)
		if err != nil {
			return orb.Bound{}, err
		}
		ring = append(ring, orb.Point{lng, lat})
	}
	return ring.Bound(), nil
}

// GridPoints spreads nx*ny points over bound at grid cell centers, row by
// row. With an odd count along an axis the middle row or column lies on the
// split line and is returned for both halves. IDs are prefix plus a
// zero-padded index.
func GridPoints(bound orb.Bound, nx, ny int, prefix string) []MockPOI {
	w := (bound.Max.Lon() - bound.Min.Lon()) / float64(nx)
	h := (bound.Max.Lat() - bound.Min.Lat()) / float64(ny)

	out := make([]MockPOI, 0, nx*ny)
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			n := j*nx + i
			out = append(out, MockPOI{
				ID:      fmt.Sprintf("%s%05d", prefix, n),
				Name:    fmt.Sprintf("物业公司 %d", n),
				Address: fmt.Sprintf("测试路 %d 号", n),
				Tel:     fmt.Sprintf("021-%08d", n),
				Point:   orb.Point{bound.Min.Lon() + (float64(i)+0.5)*w, bound.Min.Lat() + (float64(j)+0.5)*h},
			})
		}
	}
	return out
}

// RateLimitResponse is the provider's too-frequent reply.
func RateLimitResponse() MockResponse {
	return MockResponse{Body: `{"status":"0","info":"CUQPS_HAS_EXCEEDED_THE_LIMIT","infocode":"10021"}`}
}

// DailyQuotaResponse is the provider's daily-quota reply.
func DailyQuotaResponse() MockResponse {
	return MockResponse{Body: `{"status":"0","info":"DAILY_QUERY_OVER_LIMIT","infocode":"10003"}`}
}

// HTTPTooManyRequests is a bare 429.
func HTTPTooManyRequests() MockResponse {
	return MockResponse{StatusCode: http.StatusTooManyRequests, Body: "slow down"}
}

// InvalidKeyResponse is the provider's rejected-key reply.
func InvalidKeyResponse() MockResponse {
	return MockResponse{Body: `{"status":"0","info":"INVALID_USER_KEY","infocode":"10001"}`}
}

// UnknownErrorResponse is an application error the client cannot classify.
func UnknownErrorResponse() MockResponse {
	return MockResponse{Body: `{"status":"0","info":"ENGINE_RESPONSE_DATA_ERROR","infocode":"30001"}`}
}

// ServerErrorResponse is a 500 from the provider's front end.
func ServerErrorResponse() MockResponse {
	return MockResponse{StatusCode: http.StatusInternalServerError, Body: "internal error"}
}

// MalformedResponse is a truncated JSON body.
func MalformedResponse() MockResponse {
	return MockResponse{Body: `{"status":"1","count":"3","pois":[{"id":`}
}

// DroppedConnection closes the connection without replying.
func DroppedConnection() MockResponse {
	return MockResponse{Drop: true}
}

// PassThrough serves one request normally.
func PassThrough() MockResponse {
	return MockResponse{Pass: true}
}

// Repeat returns n copies of r.
func Repeat(r MockResponse, n int) []MockResponse {
	out := make([]MockResponse, n)
	for i := range out {
		out[i] = r
	}
	return out
}

// HTTPClient returns a client that never reuses connections, so a dropped
// connection is seen by the caller instead of being retried by the
// transport on a fresh one.
func HTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{DisableKeepAlives: true},
		Timeout:   5 * time.Second,
	}
}
