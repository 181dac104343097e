package httpserver_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gighop/internal/adapters/blob"
	httpserver "gighop/internal/adapters/http_server"
	"gighop/internal/app"
	"gighop/internal/domain"
	"gighop/internal/storage/memory"
)

// tokenAuth accepts "tok-<uid>".
type tokenAuth struct{}

func (tokenAuth) Authenticate(_ context.Context, token string) (string, error) {
	uid, ok := strings.CutPrefix(token, "tok-")
	if !ok || uid == "" {
		return "", domain.ErrNotAuthenticated
	}
	return uid, nil
}

type discardBlobs struct{}

func (discardBlobs) Put(_ context.Context, key, _ string, r io.Reader) (string, error) {
	if _, err := io.Copy(io.Discard, r); err != nil {
		return "", err
	}
	return "/media/" + key, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *memory.Store) {
	t.Helper()
	return newTestServerWithBlobs(t, discardBlobs{})
}

func newTestServerWithBlobs(t *testing.T, blobs domain.BlobStore) (*httptest.Server, *memory.Store) {
	t.Helper()
	store := memory.New()
	ratings := app.NewRatingService(store, nil)
	h := &httpserver.Handlers{
		Q:               app.NewQueryService(store, nil, time.Minute),
		Objects:         app.NewObjectService(store, ratings, blobs, nil),
		Users:           app.NewUserService(store, blobs, nil),
		LeaderboardSize: 10,
	}
	srv := httpserver.New()
	srv.MountHandlers(h, tokenAuth{})
	ts := httptest.NewServer(srv.Mux())
	t.Cleanup(ts.Close)
	return ts, store
}

func do(t *testing.T, ts *httptest.Server, method, path, uid, body string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, ts.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if uid != "" {
		req.Header.Set("Authorization", "Bearer tok-"+uid)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, b
}

func register(t *testing.T, ts *httptest.Server, uid, username string) {
	t.Helper()
	resp, body := do(t, ts, http.MethodPost, "/v1/users", uid, fmt.Sprintf(`{"username":%q}`, username))
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
}

func createObject(t *testing.T, ts *httptest.Server, uid, payload string) domain.MapObject {
	t.Helper()
	resp, body := do(t, ts, http.MethodPost, "/v1/objects", uid, payload)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var o domain.MapObject
	require.NoError(t, json.Unmarshal(body, &o))
	return o
}

func TestHealthz(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, body := do(t, ts, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))
}

func TestRatingFlowOverHTTP(t *testing.T) {
	ts, _ := newTestServer(t)
	register(t, ts, "owner", "owner")
	register(t, ts, "fan", "fan")

	o := createObject(t, ts, "owner", `{"title":"Jam","type":"Jazz","lat":43.32,"lng":21.89}`)
	assert.Equal(t, "owner", o.Author)

	// owner cannot rate
	resp, body := do(t, ts, http.MethodPost, "/v1/objects/"+o.ID+"/ratings", "owner", `{"value":10}`)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode, string(body))
	assert.Equal(t, "application/problem+json", resp.Header.Get("Content-Type"))

	// anonymous cannot rate
	resp, _ = do(t, ts, http.MethodPost, "/v1/objects/"+o.ID+"/ratings", "", `{"value":5}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// out of range
	resp, _ = do(t, ts, http.MethodPost, "/v1/objects/"+o.ID+"/ratings", "fan", `{"value":11}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = do(t, ts, http.MethodPost, "/v1/objects/"+o.ID+"/ratings", "fan", `{"value":0}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// missing value fails validation
	resp, body = do(t, ts, http.MethodPost, "/v1/objects/"+o.ID+"/ratings", "fan", `{}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode, string(body))

	resp, body = do(t, ts, http.MethodPost, "/v1/objects/"+o.ID+"/ratings", "fan", `{"value":8}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var res domain.RatingResult
	require.NoError(t, json.Unmarshal(body, &res))
	assert.Equal(t, 8.0, res.NewAverage)
	assert.Equal(t, 8, res.PointDelta)

	resp, body = do(t, ts, http.MethodPost, "/v1/objects/"+o.ID+"/ratings", "fan", `{"value":5}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &res))
	assert.Equal(t, -3, res.PointDelta)
	assert.Equal(t, 5, res.OwnerPoints)

	resp, body = do(t, ts, http.MethodGet, "/v1/objects/"+o.ID+"/ratings/me", "fan", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rate domain.Rate
	require.NoError(t, json.Unmarshal(body, &rate))
	assert.Equal(t, 5, rate.Value)

	resp, _ = do(t, ts, http.MethodPost, "/v1/objects/nope/ratings", "fan", `{"value":5}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = do(t, ts, http.MethodGet, "/v1/leaderboard?limit=1", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var lb struct {
		Items []domain.LeaderboardEntry `json:"items"`
	}
	require.NoError(t, json.Unmarshal(body, &lb))
	require.Len(t, lb.Items, 1)
	assert.Equal(t, "owner", lb.Items[0].User.ID)
	assert.Equal(t, 5, lb.Items[0].User.Points)
}

func TestListObjects_FiltersAndETag(t *testing.T) {
	ts, _ := newTestServer(t)
	register(t, ts, "u1", "Marko")
	createObject(t, ts, "u1", `{"title":"Near","type":"Rock","subject":"Concert","lat":43.321445,"lng":21.896104}`)
	createObject(t, ts, "u1", `{"title":"Far","type":"Jazz","lat":44.8125,"lng":20.4612}`)

	resp, body := do(t, ts, http.MethodGet, "/v1/objects", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var page struct {
		Items []domain.MapObject `json:"items"`
		Count int                `json:"count"`
	}
	require.NoError(t, json.Unmarshal(body, &page))
	assert.Equal(t, 2, page.Count)
	assert.Equal(t, "Near", page.Items[0].Title)

	resp, body = do(t, ts, http.MethodGet, "/v1/objects?radiusKm=5&lat=43.321445&lng=21.896104&author=marko", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &page))
	require.Equal(t, 1, page.Count)
	assert.Equal(t, "Near", page.Items[0].Title)

	resp, _ = do(t, ts, http.MethodGet, "/v1/objects?type=Jazz&minRating=1", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// radius without a position
	resp, body = do(t, ts, http.MethodGet, "/v1/objects?radiusKm=5", "", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, string(body))
	resp, _ = do(t, ts, http.MethodGet, "/v1/objects?minRating=abc", "", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	for _, q := range []string{
		"radiusKm=1&lat=NaN&lng=NaN",
		"radiusKm=1&lat=43.3&lng=Inf",
		"radiusKm=NaN&lat=43.3&lng=21.9",
		"radiusKm=%2BInf&lat=43.3&lng=21.9",
	} {
		resp, body = do(t, ts, http.MethodGet, "/v1/objects?"+q, "", "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, q+": "+string(body))
	}

	// conditional GET
	resp, _ = do(t, ts, http.MethodGet, "/v1/objects", "", "")
	etag := resp.Header.Get("ETag")
	require.NotEmpty(t, etag)
	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/v1/objects", nil)
	req.Header.Set("If-None-Match", etag)
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusNotModified, resp2.StatusCode)
}

func TestCreateObject_Validation(t *testing.T) {
	ts, _ := newTestServer(t)
	register(t, ts, "u1", "mika")

	resp, body := do(t, ts, http.MethodPost, "/v1/objects", "u1", `{"title":"x","type":"Polka","lat":100,"lng":1}`)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	var p struct {
		Fields map[string]string `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(body, &p))
	assert.Contains(t, p.Fields, "Type")
	assert.Contains(t, p.Fields, "Lat")

	resp, _ = do(t, ts, http.MethodPost, "/v1/objects", "u1", `{not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, ts, http.MethodPost, "/v1/objects", "", `{"title":"x","type":"Rock","lat":1,"lng":1}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestBadTokenIsRejected(t *testing.T) {
	ts, _ := newTestServer(t)
	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/v1/object-types", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	r2, body := do(t, ts, http.MethodGet, "/v1/object-types", "", "")
	assert.Equal(t, http.StatusOK, r2.StatusCode)
	assert.Contains(t, string(body), "Techno")
}

// tooLargeBlobs rejects every upload the way the disk store rejects oversized ones.
type tooLargeBlobs struct{}

func (tooLargeBlobs) Put(context.Context, string, string, io.Reader) (string, error) {
	return "", blob.ErrTooLarge
}

func TestPhotoUpload_TooLarge(t *testing.T) {
	ts, _ := newTestServerWithBlobs(t, tooLargeBlobs{})
	register(t, ts, "u1", "mika")

	req, _ := http.NewRequest(http.MethodPut, ts.URL+"/v1/users/me/photo", strings.NewReader("imgbytes"))
	req.Header.Set("Authorization", "Bearer tok-u1")
	req.Header.Set("Content-Type", "image/png")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestPhotoUpload(t *testing.T) {
	ts, _ := newTestServer(t)
	register(t, ts, "u1", "mika")
	register(t, ts, "u2", "other")
	o := createObject(t, ts, "u1", `{"title":"x","type":"Rock","lat":1,"lng":1}`)

	put := func(path, uid, ct string) *http.Response {
		req, _ := http.NewRequest(http.MethodPut, ts.URL+path, strings.NewReader("imgbytes"))
		req.Header.Set("Authorization", "Bearer tok-"+uid)
		req.Header.Set("Content-Type", ct)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp
	}

	assert.Equal(t, http.StatusForbidden, put("/v1/objects/"+o.ID+"/photo", "u2", "image/jpeg").StatusCode)
	assert.Equal(t, http.StatusUnprocessableEntity, put("/v1/objects/"+o.ID+"/photo", "u1", "text/plain").StatusCode)
	assert.Equal(t, http.StatusOK, put("/v1/objects/"+o.ID+"/photo", "u1", "image/jpeg").StatusCode)
	assert.Equal(t, http.StatusOK, put("/v1/users/me/photo", "u2", "image/png").StatusCode)

	resp, body := do(t, ts, http.MethodGet, "/v1/objects/"+o.ID, "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got domain.MapObject
	require.NoError(t, json.Unmarshal(body, &got))
	require.NotNil(t, got.PhotoURL)
	assert.Equal(t, "/media/object_photos/"+o.ID+".jpg", *got.PhotoURL)
}
