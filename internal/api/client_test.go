package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/OCAP2/bookmarks/internal/cloud"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeService keeps uploaded objects in memory.
type fakeService struct {
	t       *testing.T
	apiKey  string
	mu      sync.Mutex
	objects map[string][]byte
	names   map[string]string
}

func newFakeService(t *testing.T, apiKey string) (*fakeService, *httptest.Server) {
	f := &fakeService{t: t, apiKey: apiKey, objects: map[string][]byte{}, names: map[string]string{}}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthcheck", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST "+objectsPath, f.authorized(f.upload))
	mux.HandleFunc("GET "+objectsPath, f.authorized(f.download))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeService) authorized(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+f.apiKey {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (f *fakeService) upload(w http.ResponseWriter, r *http.Request) {
	if !assert.NoError(f.t, r.ParseMultipartForm(1<<20)) {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("file")
	if !assert.NoError(f.t, err) {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	defer file.Close()
	data, _ := io.ReadAll(file)

	f.mu.Lock()
	defer f.mu.Unlock()
	key := r.FormValue("key")
	f.objects[key] = data
	f.names[key] = header.Filename
	w.WriteHeader(http.StatusCreated)
}

func (f *fakeService) download(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	data, ok := f.objects[r.URL.Query().Get("key")]
	f.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	_, _ = w.Write(data)
}

func TestNew_TrimsTrailingSlash(t *testing.T) {
	c := New("http://localhost:5000/", "secret")
	assert.Equal(t, "http://localhost:5000", c.baseURL)
	assert.Equal(t, "secret", c.apiKey)
}

func TestHealthcheck(t *testing.T) {
	_, srv := newFakeService(t, "k")
	assert.NoError(t, New(srv.URL, "").Healthcheck(context.Background()))
}

func TestHealthcheck_Failures(t *testing.T) {
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer broken.Close()
	assert.ErrorContains(t, New(broken.URL, "").Healthcheck(context.Background()), "status 500")

	down := httptest.NewServer(http.NotFoundHandler())
	down.Close()
	assert.Error(t, New(down.URL, "").Healthcheck(context.Background()))
}

func TestPutGet_RoundTrip(t *testing.T) {
	svc, srv := newFakeService(t, "mysecret")
	c := New(srv.URL, "mysecret")
	ctx := context.Background()

	body := `{"type":"FeatureCollection"}`
	require.NoError(t, c.Put(ctx, "files/Trip.geojson", []byte(body)))

	got, err := c.Get(ctx, "files/Trip.geojson")
	require.NoError(t, err)
	assert.Equal(t, body, string(got))
	assert.Equal(t, "Trip.geojson", svc.names["files/Trip.geojson"])
}

func TestPut_Overwrites(t *testing.T) {
	_, srv := newFakeService(t, "k")
	c := New(srv.URL, "k")
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "manifest.json", []byte("old")))
	require.NoError(t, c.Put(ctx, "manifest.json", []byte("new")))

	got, err := c.Get(ctx, "manifest.json")
	require.NoError(t, err)
	assert.Equal(t, "new", string(got))
}

func TestGet_NotFound(t *testing.T) {
	_, srv := newFakeService(t, "k")
	_, err := New(srv.URL, "k").Get(context.Background(), "manifest.json")
	assert.ErrorIs(t, err, cloud.ErrNotFound)
}

func TestPut_WrongKey(t *testing.T) {
	_, srv := newFakeService(t, "right")
	err := New(srv.URL, "wrong").Put(context.Background(), "manifest.json", []byte("{}"))
	assert.ErrorIs(t, err, cloud.ErrAuth)
}

func TestGet_TooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		chunk := []byte(strings.Repeat("x", 1<<20))
		for i := 0; i <= maxObjectSize>>20; i++ {
			_, _ = w.Write(chunk)
		}
	}))
	defer srv.Close()

	_, err := New(srv.URL, "").Get(context.Background(), "big")
	assert.ErrorContains(t, err, "exceeds")
}

func TestStatusError(t *testing.T) {
	assert.NoError(t, statusError("upload", "k", http.StatusNoContent))
	assert.ErrorIs(t, statusError("upload", "k", http.StatusForbidden), cloud.ErrAuth)

	err := statusError("upload", "k", http.StatusBadGateway)
	assert.ErrorContains(t, err, "status 502")
	assert.NotErrorIs(t, err, cloud.ErrAuth)
	assert.NotErrorIs(t, err, cloud.ErrNotFound)
}
