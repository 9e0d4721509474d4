package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI accepts only its current token; every other token is answered with a
// 401 carrying expiredReason.
type fakeAPI struct {
	mu              sync.Mutex
	current         string
	next            string
	expiredReason   string
	refreshFails    bool
	rejectRefreshed bool

	refreshes atomic.Int32
	calls     atomic.Int32
	lastBody  atomic.Value
}

func (f *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/refresh-token", func(w http.ResponseWriter, r *http.Request) {
		f.refreshes.Add(1)
		if f.refreshFails {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "token expired", "reason": "Expired"})
			return
		}
		f.mu.Lock()
		if !f.rejectRefreshed {
			f.current = f.next
		}
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]string{"token": f.next})
	})
	mux.HandleFunc("POST /posts/{id}/comment", func(w http.ResponseWriter, r *http.Request) {
		f.calls.Add(1)
		raw, _ := io.ReadAll(r.Body)
		f.lastBody.Store(string(raw))
		f.mu.Lock()
		accepted := r.Header.Get("Authorization") == "Bearer "+f.current
		f.mu.Unlock()
		if !accepted {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "rejected", "reason": f.expiredReason})
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"message": "Comment added",
			"comment": map[string]any{"id": 7, "text": "hi"},
		})
	})
	mux.HandleFunc("GET /posts", func(w http.ResponseWriter, r *http.Request) {
		f.calls.Add(1)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "Internal server error", "code": "INTERNAL"})
	})
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newFake(t *testing.T, f *fakeAPI) *Client {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	return New(srv.URL, WithHTTPClient(srv.Client()), WithToken("old"))
}

func TestDo_RefreshesOnceAndReplays(t *testing.T) {
	f := &fakeAPI{current: "stale", next: "fresh", expiredReason: ReasonExpired}
	c := newFake(t, f)

	comment, err := c.AddComment(context.Background(), 1, "hi")
	require.NoError(t, err)
	assert.Equal(t, uint(7), comment.ID)

	assert.Equal(t, int32(1), f.refreshes.Load())
	assert.Equal(t, int32(2), f.calls.Load())
	assert.Equal(t, "fresh", c.Token())
	assert.JSONEq(t, `{"text":"hi"}`, f.lastBody.Load().(string))
}

func TestDo_FailedRefreshClearsSession(t *testing.T) {
	f := &fakeAPI{current: "stale", expiredReason: ReasonExpired, refreshFails: true}
	c := newFake(t, f)

	_, err := c.AddComment(context.Background(), 1, "hi")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "rejected", apiErr.Message)
	assert.True(t, apiErr.TokenExpired())

	assert.Empty(t, c.Token())
	assert.Equal(t, int32(1), f.refreshes.Load())
	assert.Equal(t, int32(1), f.calls.Load())
}

func TestDo_NeverRetriesTwice(t *testing.T) {
	// The refreshed token is rejected too; the replay's 401 is surfaced as is.
	f := &fakeAPI{current: "stale", next: "fresh", expiredReason: ReasonExpired, rejectRefreshed: true}
	c := newFake(t, f)

	_, err := c.AddComment(context.Background(), 1, "hi")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, int32(1), f.refreshes.Load())
	assert.Equal(t, int32(2), f.calls.Load())
	assert.Equal(t, "fresh", c.Token())
}

// singleUseAPI exchanges each token at most once and holds the first expired
// answers back until `waiters` requests are waiting on them.
type singleUseAPI struct {
	mu        sync.Mutex
	exchanged map[string]bool
	refreshes atomic.Int32
	arrived   chan struct{}
	release   chan struct{}
	waiters   int
	onExpired func()
}

func newSingleUseAPI(waiters int) *singleUseAPI {
	return &singleUseAPI{
		exchanged: map[string]bool{},
		arrived:   make(chan struct{}, waiters),
		release:   make(chan struct{}),
		waiters:   waiters,
	}
}

func (a *singleUseAPI) handler() http.Handler {
	go func() {
		for i := 0; i < a.waiters; i++ {
			<-a.arrived
		}
		close(a.release)
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/refresh-token", func(w http.ResponseWriter, r *http.Request) {
		a.refreshes.Add(1)
		var req struct {
			Token string `json:"token"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)

		a.mu.Lock()
		used := a.exchanged[req.Token]
		a.exchanged[req.Token] = true
		a.mu.Unlock()
		if used || req.Token != "old" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "invalid token", "reason": "Invalid"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"token": "new"})
	})
	mux.HandleFunc("GET /posts", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer new" {
			writeJSON(w, http.StatusOK, []map[string]any{{"id": 1}})
			return
		}
		if a.onExpired != nil {
			a.onExpired()
		}
		select {
		case a.arrived <- struct{}{}:
		default:
		}
		<-a.release
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "token expired", "reason": ReasonExpired})
	})
	return mux
}

func TestDo_ConcurrentExpiryKeepsSession(t *testing.T) {
	api := newSingleUseAPI(2)
	srv := httptest.NewServer(api.handler())
	t.Cleanup(srv.Close)
	c := New(srv.URL, WithHTTPClient(srv.Client()), WithToken("old"))

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.Feed(context.Background())
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, "new", c.Token())
	assert.GreaterOrEqual(t, api.refreshes.Load(), int32(1))
}

func TestDo_ReplaysWithTokenRefreshedElsewhere(t *testing.T) {
	api := newSingleUseAPI(1)
	// Every exchange is refused; the only valid token is the one another
	// caller stored while this request was in flight.
	api.exchanged["old"] = true
	srv := httptest.NewServer(api.handler())
	t.Cleanup(srv.Close)
	c := New(srv.URL, WithHTTPClient(srv.Client()), WithToken("old"))
	api.onExpired = func() { c.SetToken("new") }

	posts, err := c.Feed(context.Background())
	require.NoError(t, err)
	assert.Len(t, posts, 1)
	assert.Equal(t, "new", c.Token())
	assert.Equal(t, int32(0), api.refreshes.Load())
}

func TestDo_InvalidTokenIsNotRefreshed(t *testing.T) {
	f := &fakeAPI{current: "stale", next: "fresh", expiredReason: "Invalid"}
	c := newFake(t, f)

	_, err := c.AddComment(context.Background(), 1, "hi")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.False(t, apiErr.TokenExpired())
	assert.Equal(t, int32(0), f.refreshes.Load())
	assert.Equal(t, "old", c.Token())
}

func TestDo_NonAuthErrorsPassThrough(t *testing.T) {
	f := &fakeAPI{}
	c := newFake(t, f)

	_, err := c.Feed(context.Background())

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
	assert.Equal(t, "INTERNAL", apiErr.Code)
	assert.Equal(t, int32(0), f.refreshes.Load())
	assert.Equal(t, int32(1), f.calls.Load())
}

func TestRefresh_WithoutSession(t *testing.T) {
	c := New("http://127.0.0.1:0")
	assert.ErrorIs(t, c.Refresh(context.Background()), ErrNoSession)
}

func TestDecodeError_PlainBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	c := New(srv.URL, WithHTTPClient(srv.Client()))
	err := c.Do(context.Background(), http.MethodGet, "/anything", nil, nil)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.Equal(t, "bad gateway", apiErr.Message)
}
