package roblox

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(Endpoints{
		Users: srv.URL, Thumbs: srv.URL, Games: srv.URL, Catalog: srv.URL, Groups: srv.URL, Web: "https://www.roblox.com",
	}, 2*time.Second, nil)
}

func TestResolveHandle(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/usernames/users", func(w http.ResponseWriter, r *http.Request) {
		var req usernamesRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.ExcludeBannedUsers)
		if req.Usernames[0] != "Builderman" {
			_, _ = w.Write([]byte(`{"data":[]}`))
			return
		}
		_, _ = w.Write([]byte(`{"data":[{"id":156,"name":"builderman","displayName":"Builderman"}]}`))
	})
	c := newTestClient(t, mux)

	id, err := c.ResolveHandle(context.Background(), "Builderman")
	require.NoError(t, err)
	assert.Equal(t, int64(156), id.ID)
	assert.Equal(t, "builderman", id.Name)

	_, err = c.ResolveHandle(context.Background(), "nobody")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestResolveHandle_MissingDataIsNotFound(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	_, err := c.ResolveHandle(context.Background(), "x")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestFetchBio(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/users/156", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":156,"name":"builderman","description":"code 4821 here","created":"2006-02-27T21:06:40.3Z"}`))
	})
	mux.HandleFunc("GET /v1/users/404", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("GET /v1/users/500", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	c := newTestClient(t, mux)

	bio, err := c.FetchBio(context.Background(), 156)
	require.NoError(t, err)
	assert.Equal(t, "code 4821 here", bio)

	_, err = c.FetchBio(context.Background(), 404)
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = c.FetchBio(context.Background(), 500)
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestTimeoutIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()
	c := NewClient(Endpoints{Users: srv.URL}, 20*time.Millisecond, nil)

	_, err := c.FetchBio(context.Background(), 1)
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestHeadshotAndProfileURL(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/users/avatar-headshot", r.URL.Path)
		assert.Equal(t, "156", r.URL.Query().Get("userIds"))
		assert.Equal(t, "150x150", r.URL.Query().Get("size"))
		_, _ = w.Write([]byte(`{"data":[{"targetId":156,"imageUrl":"https://tr.rbxcdn.com/abc.png"}]}`))
	}))

	u, err := c.Headshot(context.Background(), 156)
	require.NoError(t, err)
	assert.Equal(t, "https://tr.rbxcdn.com/abc.png", u)
	assert.Equal(t, "https://www.roblox.com/users/156/profile", c.ProfileURL(156))
}

func TestFindLink(t *testing.T) {
	kind, id, link, ok := FindLink("join my group https://www.roblox.com/groups/77/cool and play https://roblox.com/games/920587237/Adopt-Me")
	require.True(t, ok)
	assert.Equal(t, KindGroup, kind)
	assert.Equal(t, int64(77), id)
	assert.Equal(t, "https://www.roblox.com/groups/77/cool", link)

	kind, id, _, ok = FindLink("buy https://www.roblox.com/catalog/123/hat")
	require.True(t, ok)
	assert.Equal(t, KindCatalog, kind)
	assert.Equal(t, int64(123), id)

	_, _, _, ok = FindLink("no links here")
	assert.False(t, ok)
}

func TestDescribe(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/games/multiget-place-details", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "920587237", r.URL.Query().Get("placeIds"))
		_, _ = w.Write([]byte(`[{"placeId":920587237,"name":"Adopt Me!","builder":"DreamCraft","description":"pets"}]`))
	})
	mux.HandleFunc("GET /v1/catalog/items/details", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"name":"Cool Hat","creatorName":"Roblox"}]}`))
	})
	mux.HandleFunc("GET /v1/groups/77", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"name":"Blox","description":"we build","owner":{"username":"boss"}}`))
	})
	c := newTestClient(t, mux)

	a, err := c.Describe(context.Background(), "play https://www.roblox.com/games/920587237/Adopt-Me now")
	require.NoError(t, err)
	assert.Equal(t, "Play Adopt Me! Today!", a.Title)
	assert.Equal(t, "DreamCraft", a.Creator)
	assert.Equal(t, "https://www.roblox.com/games/920587237/Adopt-Me", a.Link)

	a, err = c.Describe(context.Background(), "https://www.roblox.com/catalog/5/x")
	require.NoError(t, err)
	assert.Equal(t, "Cool Hat", a.Title)

	a, err = c.Describe(context.Background(), "https://www.roblox.com/groups/77")
	require.NoError(t, err)
	assert.Equal(t, "boss", a.Creator)
	assert.Contains(t, a.ThumbnailURL, "gid=77")

	_, err = c.Describe(context.Background(), "plain text")
	assert.True(t, errors.Is(err, ErrNotFound))
}
