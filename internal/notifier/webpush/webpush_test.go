package webpush

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/oss-hunter/internal/model"
	"github.com/sakif/oss-hunter/internal/notifier"
)

// browserSubscription builds a subscription with real P-256 keys, as a
// browser would, pointing at endpoint.
func browserSubscription(t *testing.T, endpoint string) model.PushSubscription {
	t.Helper()
	key, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)
	auth := make([]byte, 16)
	_, err = rand.Read(auth)
	require.NoError(t, err)

	var sub model.PushSubscription
	sub.Endpoint = endpoint
	sub.Keys.P256dh = base64.RawURLEncoding.EncodeToString(key.PublicKey().Bytes())
	sub.Keys.Auth = base64.RawURLEncoding.EncodeToString(auth)
	return sub
}

func newTestPusher(t *testing.T) *Pusher {
	t.Helper()
	priv, pub, err := GenerateKeys()
	require.NoError(t, err)
	return New(pub, priv, "mailto:ops@example.com", nil)
}

func TestPush_Delivered(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "aes128gcm", r.Header.Get("Content-Encoding"))
		assert.True(t, strings.HasPrefix(r.Header.Get("Authorization"), "vapid "))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	err := newTestPusher(t).Push(context.Background(), browserSubscription(t, srv.URL+"/push/abc"), notifier.PushMessage{
		Title: "New issue in acme/widgets",
		Body:  "#42 - Fix crash",
		URL:   "https://github.com/acme/widgets/issues/42",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, hits)
}

func TestPush_GoneEndpoint(t *testing.T) {
	for _, status := range []int{http.StatusGone, http.StatusNotFound} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))

		err := newTestPusher(t).Push(context.Background(), browserSubscription(t, srv.URL), notifier.PushMessage{Title: "x"})
		assert.ErrorIs(t, err, notifier.ErrSubscriptionGone, "status %d", status)
		srv.Close()
	}
}

func TestPush_OtherFailureIsNotGone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := newTestPusher(t).Push(context.Background(), browserSubscription(t, srv.URL), notifier.PushMessage{Title: "x"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, notifier.ErrSubscriptionGone)
}
