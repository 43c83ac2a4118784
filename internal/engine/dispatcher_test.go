package engine

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Priya8975/hookrelay/internal/domain"
	"github.com/Priya8975/hookrelay/internal/formatter"
	"github.com/Priya8975/hookrelay/internal/store/memstore"
	"github.com/Priya8975/hookrelay/internal/worker"
)

type capturedRequest struct {
	body    []byte
	headers http.Header
}

// endpoint is a test receiver answering with the queued status codes, then
// the last one forever.
type endpoint struct {
	*httptest.Server
	mu       sync.Mutex
	statuses []int
	requests []capturedRequest
}

func newEndpoint(t *testing.T, statuses ...int) *endpoint {
	t.Helper()
	ep := &endpoint{statuses: statuses}
	ep.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		ep.mu.Lock()
		ep.requests = append(ep.requests, capturedRequest{body: body, headers: r.Header.Clone()})
		status := ep.statuses[0]
		if len(ep.statuses) > 1 {
			ep.statuses = ep.statuses[1:]
		}
		ep.mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(ep.Close)
	return ep
}

func (ep *endpoint) calls() []capturedRequest {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	return append([]capturedRequest(nil), ep.requests...)
}

func newTestDispatcher(st *memstore.Store, c *clock) *Dispatcher {
	d := NewDispatcher(st, formatter.Default{}, NewSigner(func() string { return "fallback" }, testLogger()),
		NewClient(2*time.Second), staticKey("api-key-123"), testLogger())
	if c != nil {
		d.now = c.Now
	}
	return d
}

func addSubscription(t *testing.T, st *memstore.Store, url string, secret *string) domain.Subscription {
	t.Helper()
	sub, err := st.CreateSubscription(context.Background(), domain.SubscriptionInput{
		URL: url, Events: []string{"conversation.created"}, Secret: secret,
	})
	require.NoError(t, err)
	return *sub
}

func onlyLog(t *testing.T, st *memstore.Store) domain.DeliveryLogEntry {
	t.Helper()
	logs, err := st.ListDeliveryLogs(context.Background(), storeFilterAll)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	return logs[0]
}

func TestDispatch_SuccessCreatesFinishedEntry(t *testing.T) {
	ep := newEndpoint(t, http.StatusOK)
	st := memstore.New()
	sub := addSubscription(t, st, ep.URL, strPtr("s3cr3t"))
	d := newTestDispatcher(st, nil)

	ok := d.Dispatch(context.Background(), sub, "conversation.created", map[string]any{"a": 1}, nil)
	require.True(t, ok)

	reqs := ep.calls()
	require.Len(t, reqs, 1)
	assert.Equal(t, `{"a":1}`, string(reqs[0].body))
	assert.Equal(t, "1CknQ0BJ4LjHPOiHBiI4zBxrtmRL/mbmbY3Q8wuFZ54=", reqs[0].headers.Get(HeaderSignature))
	assert.Equal(t, "conversation.created", reqs[0].headers.Get(HeaderEventName))
	assert.Equal(t, "api-key-123", reqs[0].headers.Get(HeaderAPIKey))
	assert.Equal(t, "application/json", reqs[0].headers.Get("Content-Type"))
	assert.NotEmpty(t, reqs[0].headers.Get(HeaderDeliveryID))

	e := onlyLog(t, st)
	assert.True(t, e.Finished)
	assert.Equal(t, 1, e.Attempts)
	require.NotNil(t, e.StatusCode)
	assert.Equal(t, 200, *e.StatusCode)
	assert.Nil(t, e.Error)
	assert.Equal(t, `{"a":1}`, string(e.Payload))

	got, _ := st.GetSubscription(context.Background(), sub.ID)
	assert.NotNil(t, got.LastAttemptAt)
	assert.Nil(t, got.LastError)
}

func TestDispatch_StoredPayloadIsSentBytes(t *testing.T) {
	ep := newEndpoint(t, http.StatusOK)
	st := memstore.New()
	sub := addSubscription(t, st, ep.URL, nil)
	d := newTestDispatcher(st, nil)

	d.Dispatch(context.Background(), sub, "conversation.created", json.RawMessage("{ \"b\" : [1, 2],\n \"a\": \"x\" }"), nil)

	sent := ep.calls()[0].body
	assert.Equal(t, `{"b":[1,2],"a":"x"}`, string(sent))
	assert.Equal(t, string(sent), string(onlyLog(t, st).Payload))
	assert.Equal(t, ComputeSignature(sent, "fallback"), ep.calls()[0].headers.Get(HeaderSignature))
}

func TestDispatch_HTTPFailureLeavesEntryRetrying(t *testing.T) {
	ep := newEndpoint(t, http.StatusInternalServerError)
	st := memstore.New()
	sub := addSubscription(t, st, ep.URL, nil)
	d := newTestDispatcher(st, nil)

	ok := d.Dispatch(context.Background(), sub, "conversation.created", map[string]any{"a": 1}, nil)
	require.False(t, ok)

	e := onlyLog(t, st)
	assert.False(t, e.Finished)
	assert.Equal(t, 1, e.Attempts)
	assert.Equal(t, 500, *e.StatusCode)
	assert.Equal(t, "HTTP 500", *e.Error)

	got, _ := st.GetSubscription(context.Background(), sub.ID)
	require.NotNil(t, got.LastError)
	assert.Equal(t, "HTTP 500", *got.LastError)
}

func TestDispatch_RedirectIsFailure(t *testing.T) {
	ep := newEndpoint(t, http.StatusMovedPermanently)
	st := memstore.New()
	sub := addSubscription(t, st, ep.URL, nil)

	ok := newTestDispatcher(st, nil).Dispatch(context.Background(), sub, "conversation.created", map[string]any{}, nil)
	assert.False(t, ok)
	assert.Equal(t, "HTTP 301", *onlyLog(t, st).Error)
}

func TestDispatch_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	st := memstore.New()
	sub := addSubscription(t, st, url, nil)

	ok := newTestDispatcher(st, nil).Dispatch(context.Background(), sub, "conversation.created", map[string]any{"a": 1}, nil)
	require.False(t, ok)

	e := onlyLog(t, st)
	assert.Nil(t, e.StatusCode)
	require.NotNil(t, e.Error)
	assert.Contains(t, *e.Error, "connect")
	assert.False(t, e.Finished)
}

func TestDispatch_FormatFailureIsRecorded(t *testing.T) {
	ep := newEndpoint(t, http.StatusOK)
	st := memstore.New()
	sub := addSubscription(t, st, ep.URL, nil)

	ok := newTestDispatcher(st, nil).Dispatch(context.Background(), sub, "conversation.created", 42, nil)
	require.False(t, ok)
	assert.Empty(t, ep.calls(), "nothing is sent when formatting fails")

	e := onlyLog(t, st)
	assert.Nil(t, e.StatusCode)
	assert.Contains(t, *e.Error, "unsupported type int")
}

func TestDispatch_FiltersRewriteDocument(t *testing.T) {
	ep := newEndpoint(t, http.StatusOK)
	st := memstore.New()
	sub := addSubscription(t, st, ep.URL, nil)
	d := newTestDispatcher(st, nil)

	d.BeforeDispatch(func(_ context.Context, _ domain.Subscription, event string, doc json.RawMessage) (json.RawMessage, error) {
		var m map[string]any
		if err := json.Unmarshal(doc, &m); err != nil {
			return nil, err
		}
		m["event"] = event
		return json.Marshal(m)
	})

	require.True(t, d.Dispatch(context.Background(), sub, "conversation.created", map[string]any{"a": 1}, nil))
	assert.JSONEq(t, `{"a":1,"event":"conversation.created"}`, string(ep.calls()[0].body))
	assert.JSONEq(t, `{"a":1,"event":"conversation.created"}`, string(onlyLog(t, st).Payload))
}

func TestDispatch_FilterErrorFailsAttempt(t *testing.T) {
	ep := newEndpoint(t, http.StatusOK)
	st := memstore.New()
	sub := addSubscription(t, st, ep.URL, nil)
	d := newTestDispatcher(st, nil)
	d.BeforeDispatch(func(context.Context, domain.Subscription, string, json.RawMessage) (json.RawMessage, error) {
		return nil, errors.New("payload rejected")
	})

	assert.False(t, d.Dispatch(context.Background(), sub, "conversation.created", map[string]any{"a": 1}, nil))
	assert.Empty(t, ep.calls())
	assert.Equal(t, "payload rejected", *onlyLog(t, st).Error)
}

func TestDispatch_ExistingEntryUpdatedInPlace(t *testing.T) {
	ep := newEndpoint(t, http.StatusServiceUnavailable, http.StatusOK)
	st := memstore.New()
	sub := addSubscription(t, st, ep.URL, nil)
	c := newClock()
	d := newTestDispatcher(st, c)

	require.False(t, d.Dispatch(context.Background(), sub, "conversation.created", map[string]any{"a": 1}, nil))
	first := onlyLog(t, st)

	c.Advance(5 * time.Minute)
	entry := first
	require.True(t, d.Dispatch(context.Background(), sub, "conversation.created", json.RawMessage(first.Payload), &entry))

	e := onlyLog(t, st)
	assert.Equal(t, first.ID, e.ID, "no second row for the same occurrence")
	assert.True(t, e.Finished)
	assert.Equal(t, 200, *e.StatusCode)
	assert.Nil(t, e.Error)
	assert.Equal(t, 1, e.Attempts, "success never touches attempts")
	assert.Equal(t, c.Now(), e.UpdatedAt)
	assert.Equal(t, first.CreatedAt, e.CreatedAt)
}

func TestDispatch_FinishedEntryIsNotResent(t *testing.T) {
	ep := newEndpoint(t, http.StatusOK)
	st := memstore.New()
	sub := addSubscription(t, st, ep.URL, nil)
	d := newTestDispatcher(st, nil)

	done := domain.DeliveryLogEntry{ID: 9, SubscriptionID: sub.ID, Finished: true, Attempts: 1}
	assert.False(t, d.Dispatch(context.Background(), sub, "conversation.created", json.RawMessage(`{}`), &done))
	assert.Empty(t, ep.calls())
}

func TestDispatch_ObserversNotified(t *testing.T) {
	ep := newEndpoint(t, http.StatusOK)
	st := memstore.New()
	sub := addSubscription(t, st, ep.URL, nil)
	d := newTestDispatcher(st, nil)
	obs := &recordingObserver{}
	d.AddObserver(obs)

	d.Dispatch(context.Background(), sub, "conversation.created", map[string]any{"a": 1}, nil)

	outcomes := obs.all()
	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Success)
	assert.False(t, outcomes[0].Retry)
	assert.Equal(t, sub.ID, outcomes[0].SubscriptionID)
	assert.NotZero(t, outcomes[0].LogID)
}

func TestDispatch_CancelledCallerStillRecords(t *testing.T) {
	ep := newEndpoint(t, http.StatusOK)
	st := memstore.New()
	sub := addSubscription(t, st, ep.URL, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.True(t, newTestDispatcher(st, nil).Dispatch(ctx, sub, "conversation.created", map[string]any{"a": 1}, nil))
	assert.Equal(t, 1, st.LogCount())
}

func TestHandleJob_DispatchesEventPayload(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	st := memstore.New()
	sub := addSubscription(t, st, srv.URL, nil)

	newTestDispatcher(st, nil).HandleJob(context.Background(), worker.Job{
		Subscription: sub,
		Event:        domain.Event{Name: "conversation.created", Payload: map[string]any{"id": 1}},
	})
	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, 1, st.LogCount())
}
