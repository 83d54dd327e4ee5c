package client

import (
	"context"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mcncl/jsonmeta/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RequiresBaseURL(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrNoInvoker))
}

func TestInvoke(t *testing.T) {
	var gotMethod, gotPath, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.RequestURI()
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1"}`))
	}))
	defer server.Close()

	c, err := New(Options{BaseURL: server.URL + "/api/", Token: "secret", Timeout: time.Second})
	require.NoError(t, err)

	resp, err := c.Invoke(context.Background(), "/v1/vm/1?detail=true")
	require.NoError(t, err)
	assert.True(t, resp.OK())
	assert.Equal(t, `{"id":"1"}`, resp.Body)
	assert.Equal(t, http.MethodGet, gotMethod)
	assert.Equal(t, "/api/v1/vm/1?detail=true", gotPath)
	assert.Equal(t, "Bearer secret", gotAuth)

	_, err = c.Invoke(context.Background(), "delete v1/vm/1")
	require.NoError(t, err)
	assert.Equal(t, http.MethodDelete, gotMethod)
	assert.Equal(t, "/api/v1/vm/1", gotPath)
}

func TestInvoke_NonSuccessStatusIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("not found"))
	}))
	defer server.Close()

	c, err := New(Options{BaseURL: server.URL})
	require.NoError(t, err)

	resp, err := c.Invoke(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, resp.OK())
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not found", resp.Body)
}

func TestInvoke_AbsoluteURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.URL.Path))
	}))
	defer server.Close()

	c, err := New(Options{BaseURL: "http://unused.invalid"})
	require.NoError(t, err)

	resp, err := c.Invoke(context.Background(), server.URL+"/direct")
	require.NoError(t, err)
	assert.Equal(t, "/direct", resp.Body)
}

func TestInvoke_TransportFailure(t *testing.T) {
	failing := doerFunc(func(*http.Request) (*http.Response, error) {
		return nil, stderrors.New("connection refused")
	})
	c, err := New(Options{BaseURL: "http://example.test", Doer: failing})
	require.NoError(t, err)

	_, err = c.Invoke(context.Background(), "vm")
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, &errors.AppError{Type: errors.ErrorTypeRequest}))
}

func TestInvoke_Cancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("{}"))
	}))
	defer server.Close()

	c, err := New(Options{BaseURL: server.URL})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Invoke(ctx, "vm")
	assert.Error(t, err)
}

func TestSplitMethod(t *testing.T) {
	tests := []struct {
		endpoint   string
		wantMethod string
		wantTarget string
	}{
		{"v1/vm", "GET", "v1/vm"},
		{"post v1/vm", "POST", "v1/vm"},
		{"PATCH v1/vm/1", "PATCH", "v1/vm/1"},
		{"get", "GET", "get"},
		{"  v1/vm  ", "GET", "v1/vm"},
	}
	for _, tt := range tests {
		t.Run(tt.endpoint, func(t *testing.T) {
			method, target := SplitMethod(tt.endpoint)
			assert.Equal(t, tt.wantMethod, method)
			assert.Equal(t, tt.wantTarget, target)
		})
	}
}

func TestInvokerFunc(t *testing.T) {
	var inv Invoker = InvokerFunc(func(_ context.Context, endpoint string) (*Response, error) {
		return &Response{StatusCode: 200, Body: endpoint}, nil
	})
	resp, err := inv.Invoke(context.Background(), "thing/1")
	require.NoError(t, err)
	assert.Equal(t, "thing/1", resp.Body)
}

type doerFunc func(*http.Request) (*http.Response, error)

func (f doerFunc) Do(req *http.Request) (*http.Response, error) { return f(req) }
