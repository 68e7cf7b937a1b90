package geocode

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestForward(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotQuery = r.URL.Query().Get("q")
		w.Write([]byte(`[{"lat":"19.0760","lon":"72.8777"}]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	coords, err := c.Forward(context.Background(), "221B Hill Road, Mumbai")
	if err != nil {
		t.Fatalf("Forward error: %v", err)
	}
	if coords.Lat != 19.076 || coords.Lon != 72.8777 {
		t.Fatalf("unexpected coordinates: %+v", coords)
	}
	if gotQuery != "221B Hill Road, Mumbai" {
		t.Fatalf("query not passed through: %q", gotQuery)
	}
}

func TestForward_ShortQuerySkipsNetwork(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.Forward(context.Background(), "short")
	if !errors.Is(err, ErrQueryTooShort) {
		t.Fatalf("expected ErrQueryTooShort, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Fatalf("short query must not reach the geocoder")
	}
}

func TestForward_NoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	if _, err := c.Forward(context.Background(), "nowhere in particular at all"); !errors.Is(err, ErrNoResults) {
		t.Fatalf("expected ErrNoResults, got %v", err)
	}
}

func TestForward_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	if _, err := c.Forward(context.Background(), "221B Hill Road, Mumbai"); err == nil {
		t.Fatalf("expected upstream error to surface")
	}
}

func TestReverse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/reverse" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"address":{"road":"Hill Road","city":"Mumbai","state":"Maharashtra","postcode":"400050"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	addr, err := c.Reverse(context.Background(), Coordinates{Lat: 19.076, Lon: 72.8777})
	if err != nil {
		t.Fatalf("Reverse error: %v", err)
	}
	if addr.City != "Mumbai" || addr.Pincode != "400050" {
		t.Fatalf("unexpected address: %+v", addr)
	}
}

func TestDebouncer_OnlyLastScheduledRuns(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)
	var first, second int32

	d.Schedule(func() { atomic.AddInt32(&first, 1) })
	d.Schedule(func() { atomic.AddInt32(&second, 1) })

	time.Sleep(150 * time.Millisecond)
	if atomic.LoadInt32(&first) != 0 {
		t.Fatalf("superseded call still ran")
	}
	if atomic.LoadInt32(&second) != 1 {
		t.Fatalf("last scheduled call ran %d times", second)
	}
}

func TestDebouncer_ConcurrentScheduleAndStop(t *testing.T) {
	d := NewDebouncer(time.Millisecond)
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				d.Schedule(func() {})
				d.Stop()
			}
		}()
	}
	wg.Wait()
	d.Stop()
}

func TestDebouncer_Stop(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)
	var ran int32

	d.Schedule(func() { atomic.AddInt32(&ran, 1) })
	d.Stop()

	time.Sleep(100 * time.Millisecond)
	if atomic.LoadInt32(&ran) != 0 {
		t.Fatalf("stopped call still ran")
	}
}
