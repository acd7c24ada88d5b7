package store

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
)

// fakeServer is an in-memory backend speaking the REST envelope.
type fakeServer struct {
	mu       sync.Mutex
	records  map[string]map[string]map[string]any // collection -> id -> fields
	next     int
	requests []string
	bodies   map[string]map[string]any // "METHOD path" -> last body
}

func newFakeServer(t *testing.T) (*fakeServer, *httptest.Server) {
	t.Helper()
	f := &fakeServer{
		records: map[string]map[string]map[string]any{
			"tasks":          {},
			"goals":          {},
			"timer-sessions": {},
		},
		bodies: map[string]map[string]any{},
	}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeServer) put(collection, id string, fields map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fields["id"] = id
	f.records[collection][id] = fields
}

func (f *fakeServer) get(collection, id string) (map[string]any, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[collection][id]
	return rec, ok
}

func (f *fakeServer) count(collection string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records[collection])
}

func (f *fakeServer) log() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

func (f *fakeServer) clearLog() {
	f.mu.Lock()
	f.requests = nil
	f.mu.Unlock()
}

func (f *fakeServer) body(key string) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bodies[key]
}

func (f *fakeServer) serve(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") == "" {
		writeEnvelope(w, http.StatusUnauthorized, nil)
		return
	}

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	collection := parts[0]

	var body map[string]any
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	key := r.Method + " " + r.URL.Path
	f.requests = append(f.requests, key)
	if body != nil {
		f.bodies[key] = body
	}

	records, ok := f.records[collection]
	if !ok {
		writeEnvelope(w, http.StatusNotFound, nil)
		return
	}

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		ids := make([]string, 0, len(records))
		for id := range records {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		list := make([]map[string]any, 0, len(ids))
		for _, id := range ids {
			list = append(list, records[id])
		}
		writeEnvelope(w, http.StatusOK, list)

	case len(parts) == 1 && r.Method == http.MethodPost:
		f.next++
		id := fmt.Sprintf("%s-%d", strings.TrimSuffix(collection, "s"), f.next)
		body["id"] = id
		records[id] = body
		writeEnvelope(w, http.StatusCreated, body)

	case len(parts) >= 2:
		rec, ok := records[parts[1]]
		if !ok {
			writeEnvelope(w, http.StatusNotFound, nil)
			return
		}
		switch {
		case r.Method == http.MethodPut:
			for k, v := range body {
				rec[k] = v
			}
			writeEnvelope(w, http.StatusOK, rec)
		case r.Method == http.MethodDelete:
			delete(records, parts[1])
			writeEnvelope(w, http.StatusOK, nil)
		case r.Method == http.MethodPatch && len(parts) == 3 && parts[2] == "toggle":
			done, _ := rec["completed"].(bool)
			rec["completed"] = !done
			writeEnvelope(w, http.StatusOK, rec)
		case r.Method == http.MethodPatch && len(parts) == 3 && parts[2] == "progress":
			rec["progress"] = body["progress"]
			writeEnvelope(w, http.StatusOK, rec)
		default:
			writeEnvelope(w, http.StatusMethodNotAllowed, nil)
		}

	default:
		writeEnvelope(w, http.StatusMethodNotAllowed, nil)
	}
}

func writeEnvelope(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": status < 300,
		"data":    data,
	})
}
