package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

type record struct {
	FirebaseKey string `json:"firebaseKey"`
	Name        string `json:"name"`
}

func TestPushIDShapeAndOrder(t *testing.T) {
	base := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	tick := 0
	g := &KeyGenerator{now: func() time.Time {
		tick++
		return base.Add(time.Duration(tick/3) * time.Millisecond)
	}}

	var prev string
	for i := 0; i < 50; i++ {
		id := g.Next()
		if len(id) != 20 {
			t.Fatalf("id %q: length %d, want 20", id, len(id))
		}
		for _, r := range id {
			if !strings.ContainsRune(pushChars, r) {
				t.Fatalf("id %q contains %q outside the push alphabet", id, r)
			}
		}
		if prev != "" && id <= prev {
			t.Fatalf("ids not strictly increasing: %q then %q", prev, id)
		}
		prev = id
	}
}

func TestPushIDSameMillisecondIncrements(t *testing.T) {
	fixed := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	g := &KeyGenerator{now: func() time.Time { return fixed }}

	a, b := g.Next(), g.Next()
	if a[:8] != b[:8] {
		t.Errorf("timestamp prefix differs within one millisecond: %q vs %q", a, b)
	}
	if b <= a {
		t.Errorf("second id %q not greater than first %q", b, a)
	}
}

func TestPushIDConcurrentUnique(t *testing.T) {
	seen := make(map[string]bool)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				id := PushID()
				mu.Lock()
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if len(seen) != 800 {
		t.Errorf("got %d unique ids, want 800", len(seen))
	}
}

func TestValidKey(t *testing.T) {
	tests := []struct {
		key     string
		wantErr bool
	}{
		{"-NkA1b2C3d4E5f6G7h8", false},
		{"", true},
		{"a/b", true},
		{"a.b", true},
		{"a#b", true},
		{"a$b", true},
		{"a[0]", true},
		{"tab\there", true},
	}
	for _, tt := range tests {
		err := ValidKey(tt.key)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidKey(%q) err=%v, wantErr=%v", tt.key, err, tt.wantErr)
		}
	}
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	key, err := m.NewKey(ctx, Courses)
	if err != nil {
		t.Fatalf("NewKey: %v", err)
	}
	if err := m.Set(ctx, Courses, key, record{FirebaseKey: key, Name: "Hatha"}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	var got record
	if err := m.Get(ctx, Courses, key, &got); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.FirebaseKey != key || got.Name != "Hatha" {
		t.Errorf("unexpected record: %+v", got)
	}

	all, err := m.GetAll(ctx, Courses)
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("GetAll: got %d nodes, want 1", len(all))
	}

	if err := m.Remove(ctx, Courses, key); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := m.Get(ctx, Courses, key, &got); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after remove: expected ErrNotFound, got %v", err)
	}
	if err := m.Remove(ctx, Courses, key); err != nil {
		t.Errorf("removing a missing node should succeed, got %v", err)
	}
}

func TestMemoryStoreEmptyCollection(t *testing.T) {
	all, err := NewMemoryStore().GetAll(context.Background(), Classes)
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if all == nil || len(all) != 0 {
		t.Errorf("expected empty non-nil map, got %v", all)
	}
}

func TestMemoryStoreOffline(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	m.SetOffline(true)

	if err := m.Ping(ctx); !errors.Is(err, ErrOffline) {
		t.Errorf("Ping: expected ErrOffline, got %v", err)
	}
	if err := m.Set(ctx, Courses, "k1", record{}); !errors.Is(err, ErrOffline) {
		t.Errorf("Set: expected ErrOffline, got %v", err)
	}
	if _, err := m.NewKey(ctx, Courses); !errors.Is(err, ErrOffline) {
		t.Errorf("NewKey: expected ErrOffline, got %v", err)
	}

	m.SetOffline(false)
	if err := m.Ping(ctx); err != nil {
		t.Errorf("Ping after reconnect: %v", err)
	}
}

func TestMemoryStoreRejectsUnknownCollection(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	if err := m.Set(ctx, "instructors", "k1", record{}); err == nil {
		t.Error("expected error for unknown collection")
	}
	if _, err := m.NewKey(ctx, "instructors"); err == nil {
		t.Error("expected NewKey error for unknown collection")
	}
}

func TestDecodeAllSkipsBadNodes(t *testing.T) {
	nodes := map[string]json.RawMessage{
		"a": json.RawMessage(`{"firebaseKey":"a","name":"Yin"}`),
		"b": json.RawMessage(`"not an object"`),
	}
	var skipped []string
	out := DecodeAll[record](nodes, func(key string, err error) { skipped = append(skipped, key) })

	if len(out) != 1 || out["a"].Name != "Yin" {
		t.Errorf("unexpected decode result: %+v", out)
	}
	if len(skipped) != 1 || skipped[0] != "b" {
		t.Errorf("skipped: got %v, want [b]", skipped)
	}
}

// fakeDatabase is a minimal Realtime Database REST endpoint
type fakeDatabase struct {
	mu    sync.Mutex
	nodes map[string]string
	token string
	calls []string
}

func (f *fakeDatabase) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, r.Method+" "+r.URL.Path)
	if f.token != "" && r.URL.Query().Get("auth") != f.token {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error":"Permission denied"}`)
		return
	}

	path := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/"), ".json")
	switch r.Method {
	case http.MethodGet:
		if v, ok := f.nodes[path]; ok {
			io.WriteString(w, v)
			return
		}
		if !strings.Contains(path, "/") {
			var parts []string
			for k, v := range f.nodes {
				if c, key, ok := strings.Cut(k, "/"); ok && c == path {
					if r.URL.Query().Get("shallow") == "true" {
						v = "true"
					}
					parts = append(parts, `"`+key+`":`+v)
				}
			}
			if len(parts) > 0 {
				io.WriteString(w, "{"+strings.Join(parts, ",")+"}")
				return
			}
		}
		io.WriteString(w, "null")
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.nodes[path] = string(body)
		w.Write(body)
	case http.MethodDelete:
		delete(f.nodes, path)
		io.WriteString(w, "null")
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newFakeREST(t *testing.T, token string) (*fakeDatabase, *RESTStore) {
	t.Helper()
	fake := &fakeDatabase{nodes: make(map[string]string), token: token}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	return fake, NewRESTStore(srv.URL+"/", token)
}

func TestRESTStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	fake, s := newFakeREST(t, "secret")

	if err := s.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	key, err := s.NewKey(ctx, Classes)
	if err != nil {
		t.Fatalf("NewKey: %v", err)
	}
	if err := s.Set(ctx, Classes, key, record{FirebaseKey: key, Name: "Vinyasa"}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	var got record
	if err := s.Get(ctx, Classes, key, &got); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != "Vinyasa" || got.FirebaseKey != key {
		t.Errorf("unexpected record: %+v", got)
	}

	all, err := s.GetAll(ctx, Classes)
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if _, ok := all[key]; !ok || len(all) != 1 {
		t.Errorf("GetAll: got %v", all)
	}

	if err := s.Remove(ctx, Classes, key); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := s.Get(ctx, Classes, key, &got); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after remove: expected ErrNotFound, got %v", err)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	wantPut := "PUT /classes/" + key + ".json"
	found := false
	for _, c := range fake.calls {
		if c == wantPut {
			found = true
		}
	}
	if !found {
		t.Errorf("expected %q among calls %v", wantPut, fake.calls)
	}
}

func TestRESTStoreEmptyCollection(t *testing.T) {
	_, s := newFakeREST(t, "")
	all, err := s.GetAll(context.Background(), Bookings)
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if len(all) != 0 {
		t.Errorf("expected empty map, got %v", all)
	}
}

func TestRESTStoreUnauthorized(t *testing.T) {
	fake, _ := newFakeREST(t, "secret")
	srv := httptest.NewServer(fake)
	defer srv.Close()

	s := NewRESTStore(srv.URL, "wrong")
	err := s.Ping(context.Background())
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if !strings.Contains(err.Error(), "Permission denied") {
		t.Errorf("error should carry server message, got %v", err)
	}
}

func TestRESTStoreOffline(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	s := NewRESTStore(url, "")
	if err := s.Ping(context.Background()); !errors.Is(err, ErrOffline) {
		t.Fatalf("expected ErrOffline for closed server, got %v", err)
	}
}

func TestRESTStoreServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `{"error":"boom"}`)
	}))
	defer srv.Close()

	err := NewRESTStore(srv.URL, "").Set(context.Background(), Courses, "k1", record{})
	if err == nil || !strings.Contains(err.Error(), "HTTP 500: boom") {
		t.Fatalf("expected HTTP 500 error, got %v", err)
	}
}

func TestRESTStoreRejectsBadKeyWithoutRequest(t *testing.T) {
	fake, s := newFakeREST(t, "")
	if err := s.Set(context.Background(), Courses, "../users", record{}); err == nil {
		t.Fatal("expected invalid key error")
	}
	if len(fake.calls) != 0 {
		t.Errorf("no request should be sent, got %v", fake.calls)
	}
}
