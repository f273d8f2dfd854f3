package secondary

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quarrylane/lamina/platform/go/cloudflare"
)

func newKVStore(t *testing.T, handler http.Handler) *KVStore {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := cloudflare.NewKVClient(cloudflare.KVClientConfig{
		Credentials: cloudflare.Credentials{AccountID: "acct-1", APIToken: "token-1"},
		NamespaceID: "ns-1",
		BaseURL:     server.URL,
	})
	require.NoError(t, err)

	store, err := NewKVStore(client)
	require.NoError(t, err)
	return store
}

func TestKVStoreRoundTrip(t *testing.T) {
	values := map[string][]byte{}
	store := newKVStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))
		key := r.URL.Path

		switch r.Method {
		case http.MethodPut:
			body := make([]byte, r.ContentLength)
			r.Body.Read(body) // nolint:errcheck
			values[key] = body
			w.Write([]byte(`{"success":true}`)) // nolint:errcheck
		case http.MethodGet:
			value, ok := values[key]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.Write(value) // nolint:errcheck
		case http.MethodDelete:
			delete(values, key)
			w.Write([]byte(`{"success":true}`)) // nolint:errcheck
		}
	}))

	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "rate:u-1", []byte("3"), 0))

	got, err := store.Get(ctx, "rate:u-1")
	require.NoError(t, err)
	require.Equal(t, []byte("3"), got)

	require.NoError(t, store.Delete(ctx, "rate:u-1"))

	_, err = store.Get(ctx, "rate:u-1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestKVStoreClampsShortTTL(t *testing.T) {
	var ttl string
	store := newKVStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ttl = r.URL.Query().Get("expiration_ttl")
		w.Write([]byte(`{"success":true}`)) // nolint:errcheck
	}))

	require.NoError(t, store.Set(context.Background(), "code:u-1", []byte("123456"), 5*time.Second))
	require.Equal(t, "60", ttl)
}

func TestKVStoreDeleteMissingKeyIsNoOp(t *testing.T) {
	store := newKVStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	require.NoError(t, store.Delete(context.Background(), "missing"))
}
