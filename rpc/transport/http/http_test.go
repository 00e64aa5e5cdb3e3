package http

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/ValentinKolb/dDoc/rpc/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echo answers with "<collection>:<body>" and records every collection it saw
type echo struct {
	mu   sync.Mutex
	seen []string
}

func (e *echo) handle(collection string, req []byte) []byte {
	e.mu.Lock()
	e.seen = append(e.seen, collection)
	e.mu.Unlock()
	return []byte(collection + ":" + string(req))
}

func connect(t *testing.T, endpoints ...string) *httpClientTransport {
	t.Helper()
	c := NewHttpClientTransport().(*httpClientTransport)
	require.NoError(t, c.Connect(common.ClientConfig{
		Endpoints:     endpoints,
		TimeoutSecond: 5,
		RetryCount:    2,
	}))
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestRoundTrip(t *testing.T) {
	e := &echo{}
	srv := httptest.NewServer(NewHandler(e.handle, true))
	defer srv.Close()

	c := connect(t, srv.URL)

	resp, err := c.Send("leads", []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, "leads:hello", string(resp))

	// store level requests use the root path
	resp, err = c.Send("", []byte("list"))
	require.NoError(t, err)
	assert.Equal(t, ":list", string(resp))

	// names are escaped on the wire and restored by the server
	resp, err = c.Send("odd name", nil)
	require.NoError(t, err)
	assert.Equal(t, "odd name:", string(resp))

	assert.Equal(t, []string{"leads", "", "odd name"}, e.seen)
}

func TestMetricsEndpoint(t *testing.T) {
	e := &echo{}
	srv := httptest.NewServer(NewHandler(e.handle, false))
	defer srv.Close()

	c := connect(t, srv.URL)
	_, err := c.Send("metered", []byte("x"))
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `ddoc_http_requests_total{collection="metered"}`)
}

func TestRejectsWrongMethod(t *testing.T) {
	srv := httptest.NewServer(NewHandler((&echo{}).handle, false))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/leads")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestRoundRobinSkipsDeadEndpoint(t *testing.T) {
	e := &echo{}
	srv := httptest.NewServer(NewHandler(e.handle, false))
	defer srv.Close()

	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	c := connect(t, deadURL, srv.URL)

	// with two attempts every request reaches the live server
	for i := 0; i < 6; i++ {
		resp, err := c.Send("leads", []byte("ping"))
		require.NoError(t, err)
		assert.Equal(t, "leads:ping", string(resp))
	}
}

func TestClientErrors(t *testing.T) {
	c := NewHttpClientTransport()
	_, err := c.Send("leads", nil)
	assert.Error(t, err, "send before connect")

	assert.Error(t, c.Connect(common.ClientConfig{}))
	assert.Error(t, c.Connect(common.ClientConfig{Endpoints: []string{"localhost"}}))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	cc := connect(t, srv.URL)
	_, err = cc.Send("leads", nil)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "500"))
}

func TestListenWithoutHandler(t *testing.T) {
	assert.Error(t, NewHttpServerTransport().Listen(common.ServerConfig{Endpoint: "127.0.0.1:0"}))
}
