package reconciler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/proxycat/proxycat/internal/pacconfig"
	"github.com/proxycat/proxycat/internal/pacfetch"
	"github.com/proxycat/proxycat/internal/settings"
	"github.com/proxycat/proxycat/internal/sysproxy"
)

// fakeProxy is an in-memory sysproxy.Manager.
type fakeProxy struct {
	url      string
	readErr  error
	writeErr error
	writes   []string
}

func (f *fakeProxy) ReadAutoConfigURL() (string, error) {
	if f.readErr != nil {
		return "", f.readErr
	}
	return f.url, nil
}

func (f *fakeProxy) SetAutoConfigURL(url string) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.writes = append(f.writes, url)
	f.url = url
	return nil
}

func (f *fakeProxy) ReadSnapshot() (sysproxy.Snapshot, error) {
	return sysproxy.Snapshot{AutoConfigURL: f.url}, nil
}

func newFixture(t *testing.T) (*pacconfig.Document, *settings.Store) {
	t.Helper()
	doc := pacconfig.New(filepath.Join(t.TempDir(), pacconfig.DefaultFilename))
	return doc, settings.New()
}

func pacServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`function FindProxyForURL(url, host) { return "PROXY drift.example:3128"; }`))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestTick(t *testing.T) {
	t.Parallel()

	t.Run("steady state when the OS already points at us", func(t *testing.T) {
		t.Parallel()
		doc, st := newFixture(t)
		proxy := &fakeProxy{url: st.PACURL()}
		rec := New(proxy, doc, st)

		rec.Tick(context.Background())

		require.Empty(t, proxy.writes)
		_, _, externals := doc.Snapshot()
		require.Empty(t, externals)
	})

	t.Run("drift is absorbed and the master URL restored", func(t *testing.T) {
		t.Parallel()
		doc, st := newFixture(t)
		drifter := pacServer(t)
		proxy := &fakeProxy{url: st.PACURL()}
		rec := New(proxy, doc, st)
		rec.lastObserved = st.PACURL()

		proxy.url = drifter.URL
		rec.Tick(context.Background())

		_, _, externals := doc.Snapshot()
		require.Len(t, externals, 1)
		require.Equal(t, drifter.URL, externals[0].Function.SourceURL)
		require.Equal(t, pacfetch.SymbolFor(drifter.URL), externals[0].Function.SymbolName)
		require.True(t, externals[0].Enabled)

		require.Equal(t, []string{st.PACURL()}, proxy.writes)
		require.Equal(t, st.PACURL(), proxy.url)

		// the absorbed document is on disk
		loaded, err := pacconfig.Load(doc.Path())
		require.NoError(t, err)
		_, _, persisted := loaded.Snapshot()
		require.Len(t, persisted, 1)
	})

	t.Run("the same drifter is not absorbed twice", func(t *testing.T) {
		t.Parallel()
		doc, st := newFixture(t)
		drifter := pacServer(t)
		proxy := &fakeProxy{}
		rec := New(proxy, doc, st)
		rec.lastObserved = st.PACURL()

		for i := 0; i < 2; i++ {
			proxy.url = drifter.URL
			rec.Tick(context.Background())
		}

		_, _, externals := doc.Snapshot()
		require.Len(t, externals, 1)
	})

	t.Run("read errors skip the tick", func(t *testing.T) {
		t.Parallel()
		doc, st := newFixture(t)
		proxy := &fakeProxy{readErr: errors.New("boom")}
		rec := New(proxy, doc, st)

		rec.Tick(context.Background())

		require.Empty(t, proxy.writes)
	})

	t.Run("absorb failure does not restore", func(t *testing.T) {
		t.Parallel()
		doc, st := newFixture(t)
		broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "no pac here", http.StatusInternalServerError)
		}))
		t.Cleanup(broken.Close)

		proxy := &fakeProxy{url: broken.URL}
		rec := New(proxy, doc, st)
		rec.lastObserved = st.PACURL()

		rec.Tick(context.Background())

		require.Empty(t, proxy.writes)
		_, _, externals := doc.Snapshot()
		require.Empty(t, externals)

		// the failing URL was recorded, so the next tick does not retry
		rec.Tick(context.Background())
		require.Empty(t, proxy.writes)
	})

	t.Run("a cleared setting is restored without absorbing", func(t *testing.T) {
		t.Parallel()
		doc, st := newFixture(t)
		proxy := &fakeProxy{url: ""}
		rec := New(proxy, doc, st)
		rec.lastObserved = st.PACURL()

		rec.Tick(context.Background())

		require.Equal(t, []string{st.PACURL()}, proxy.writes)
		_, _, externals := doc.Snapshot()
		require.Empty(t, externals)
	})

	t.Run("restore failure is retried on the next tick", func(t *testing.T) {
		t.Parallel()
		doc, st := newFixture(t)
		drifter := pacServer(t)
		proxy := &fakeProxy{url: drifter.URL, writeErr: errors.New("access denied")}
		rec := New(proxy, doc, st)
		rec.lastObserved = st.PACURL()

		rec.Tick(context.Background())
		require.Empty(t, proxy.writes)

		// write succeeds on a later tick; absorption stays idempotent
		proxy.writeErr = nil
		rec.lastObserved = st.PACURL()
		rec.Tick(context.Background())

		require.Equal(t, []string{st.PACURL()}, proxy.writes)
		_, _, externals := doc.Snapshot()
		require.Len(t, externals, 1)
	})
}

func TestRun(t *testing.T) {
	t.Parallel()

	t.Run("stops when the context is canceled", func(t *testing.T) {
		t.Parallel()
		doc, st := newFixture(t)
		proxy := &fakeProxy{url: st.PACURL()}
		rec := New(proxy, doc, st)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := rec.Run(ctx)
		require.ErrorIs(t, err, context.Canceled)
	})
}
