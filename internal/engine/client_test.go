package engine

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_PostsBodyAndHeaders(t *testing.T) {
	var gotBody []byte
	var gotHeaders http.Header
	var gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotHeaders = r.Header.Clone()
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	headers := http.Header{}
	headers.Set(HeaderEventName, "conversation.created")

	code, err := NewClient(time.Second).Attempt(context.Background(), srv.URL, []byte(`{"a":1}`), headers, 0)
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, code)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, `{"a":1}`, string(gotBody))
	assert.Equal(t, "application/json", gotHeaders.Get("Content-Type"))
	assert.Equal(t, "conversation.created", gotHeaders.Get(HeaderEventName))
}

func TestClient_DoesNotFollowRedirects(t *testing.T) {
	followed := false
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		followed = true
	}))
	defer target.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, target.URL, http.StatusFound)
	}))
	defer srv.Close()

	code, err := NewClient(time.Second).Attempt(context.Background(), srv.URL, []byte(`{}`), nil, 0)
	require.NoError(t, err)
	assert.Equal(t, http.StatusFound, code)
	assert.False(t, followed)
}

func TestClient_TimeoutIsTransportError(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	_, err := NewClient(time.Second).Attempt(context.Background(), srv.URL, []byte(`{}`), nil, 50*time.Millisecond)
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.True(t, te.Timeout())
	assert.Equal(t, srv.URL, te.URL)
}

func TestClient_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewClient(time.Second).Attempt(context.Background(), url, []byte(`{}`), nil, 0)
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.False(t, te.Timeout())
}

func TestClient_DetachedFromCallerCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	code, err := NewClient(time.Second).Attempt(ctx, srv.URL, []byte(`{}`), nil, 0)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, code)
}

func TestTransportError_Unwrap(t *testing.T) {
	inner := errors.New("dial tcp: no such host")
	err := error(&TransportError{URL: "http://x", Err: inner})
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "dial tcp: no such host", err.Error())
}
