package webhook_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oficinapro/backend/pkg/webhook"
)

func TestClient_Deliver_Success(t *testing.T) {
	t.Parallel()

	payload := []byte(`{"evento":"OS_CRIADA","entidadeId":"42"}`)
	sentAt := time.UnixMilli(1_700_000_000_000)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "shop-42", r.Header.Get("X-Shop"))
		assert.Equal(t, "43ccc9208018289ca4940c163291571efdc1ba629bd74447c29d0137d1a6d4e5", r.Header.Get(webhook.HeaderSignature))
		assert.Equal(t, "1700000000000", r.Header.Get(webhook.HeaderTimestamp))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Equal(t, payload, body)

		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	client := webhook.NewClient(webhook.WithClock(func() time.Time { return sentAt }))
	out := client.Deliver(context.Background(), webhook.Request{
		URL:     server.URL,
		Payload: payload,
		Secret:  "s3cr3t",
		Headers: map[string]string{"X-Shop": "shop-42"},
		Timeout: time.Second,
	})

	require.NoError(t, out.Err)
	assert.True(t, out.Succeeded())
	assert.Equal(t, http.StatusAccepted, out.StatusCode)
	assert.Equal(t, `{"ok":true}`, out.Body)
	assert.Equal(t, sentAt, out.SentAt)
}

func TestClient_Deliver_Unsigned(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get(webhook.HeaderSignature))
		assert.Empty(t, r.Header.Get(webhook.HeaderTimestamp))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	out := webhook.NewClient().Deliver(context.Background(), webhook.Request{URL: server.URL, Payload: []byte(`{}`)})
	assert.True(t, out.Succeeded())
}

func TestClient_Deliver_ContentTypeNotOverridable(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	out := webhook.NewClient().Deliver(context.Background(), webhook.Request{
		URL:     server.URL,
		Payload: []byte(`{}`),
		Headers: map[string]string{"Content-Type": "text/plain"},
	})
	assert.True(t, out.Succeeded())
}

func TestClient_Deliver_Non2xx(t *testing.T) {
	t.Parallel()

	for _, code := range []int{http.StatusBadRequest, http.StatusNotFound, http.StatusInternalServerError, http.StatusServiceUnavailable} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(code)
			_, _ = w.Write([]byte("nope"))
		}))

		out := webhook.NewClient().Deliver(context.Background(), webhook.Request{URL: server.URL, Payload: []byte(`{}`)})
		server.Close()

		assert.False(t, out.Succeeded())
		assert.Equal(t, code, out.StatusCode)
		assert.Equal(t, "nope", out.Body)
		assert.ErrorIs(t, out.Err, webhook.ErrUnexpectedStatus)
	}
}

func TestClient_Deliver_Timeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	out := webhook.NewClient().Deliver(context.Background(), webhook.Request{
		URL:     server.URL,
		Payload: []byte(`{}`),
		Timeout: 50 * time.Millisecond,
	})

	assert.False(t, out.Succeeded())
	assert.Zero(t, out.StatusCode)
	assert.ErrorIs(t, out.Err, webhook.ErrTimeout)
}

func TestClient_Deliver_TransportError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	out := webhook.NewClient().Deliver(context.Background(), webhook.Request{URL: url, Payload: []byte(`{}`)})
	assert.Zero(t, out.StatusCode)
	assert.ErrorIs(t, out.Err, webhook.ErrTransport)
	assert.NotEmpty(t, out.Error())
}

func TestClient_Deliver_InvalidRequest(t *testing.T) {
	t.Parallel()

	out := webhook.NewClient().Deliver(context.Background(), webhook.Request{URL: "http://bad host/", Payload: []byte(`{}`)})
	assert.ErrorIs(t, out.Err, webhook.ErrInvalidRequest)
}

func TestClient_Deliver_TruncatesBody(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("é", 2500)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(long))
	}))
	defer server.Close()

	out := webhook.NewClient().Deliver(context.Background(), webhook.Request{URL: server.URL, Payload: []byte(`{}`)})
	assert.Equal(t, webhook.MaxResponseBodyChars, len([]rune(out.Body)))
}

func TestClient_Deliver_DoesNotFollowRedirects(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer target.Close()

	redirect := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, target.URL, http.StatusTemporaryRedirect)
	}))
	defer redirect.Close()

	out := webhook.NewClient().Deliver(context.Background(), webhook.Request{URL: redirect.URL, Payload: []byte(`{}`)})
	assert.Equal(t, http.StatusTemporaryRedirect, out.StatusCode)
	assert.False(t, out.Succeeded())
	assert.Zero(t, hits.Load())
}

func TestTruncate(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "abc", webhook.Truncate("abc", 5))
	assert.Equal(t, "ab", webhook.Truncate("abc", 2))
	assert.Equal(t, "ção", webhook.Truncate("çãoxyz", 3))
	assert.Equal(t, "", webhook.Truncate("abc", 0))
}
