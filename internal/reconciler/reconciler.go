// Package reconciler keeps the OS auto-config URL pointed at the master
// PAC file, absorbing whatever the setting drifted to before restoring
// our URL.
package reconciler

import (
	"context"
	"errors"
	"time"

	"github.com/proxycat/proxycat/internal/logger"
	"github.com/proxycat/proxycat/internal/pacconfig"
	"github.com/proxycat/proxycat/internal/pacfetch"
	"github.com/proxycat/proxycat/internal/settings"
	"github.com/proxycat/proxycat/internal/sysproxy"
)

// DefaultInterval is the reconciliation cadence.
const DefaultInterval = 5 * time.Second

// Reconciler periodically compares the OS auto-config URL with the master
// PAC URL. When a user or policy points the OS at a different PAC, the
// foreign script is absorbed into the document and our URL is written
// back. Absorption is idempotent by symbol name, so seeing the same
// foreign URL repeatedly cannot grow the document without bound.
type Reconciler struct {
	proxy    sysproxy.Manager
	doc      *pacconfig.Document
	settings *settings.Store
	interval time.Duration

	// lastObserved is the auto-config URL seen on the previous tick.
	// Drift is only acted on when the current URL differs from both the
	// master PAC URL and lastObserved, which stops us fighting an
	// infinite loop with whatever keeps changing the setting.
	lastObserved string
}

func New(proxy sysproxy.Manager, doc *pacconfig.Document, st *settings.Store) *Reconciler {
	return &Reconciler{
		proxy:    proxy,
		doc:      doc,
		settings: st,
		interval: DefaultInterval,
	}
}

// NewWithInterval is like New with a custom cadence. Used in tests.
func NewWithInterval(proxy sysproxy.Manager, doc *pacconfig.Document, st *settings.Store, interval time.Duration) *Reconciler {
	r := New(proxy, doc, st)
	r.interval = interval
	return r
}

// Run reconciles on a fixed cadence until ctx is canceled. Errors within
// a tick are logged and never tear down the loop.
func (r *Reconciler) Run(ctx context.Context) error {
	if url, err := r.proxy.ReadAutoConfigURL(); err == nil {
		r.lastObserved = url
	} else {
		logger.Warn("failed to read initial auto-config URL: %v", err)
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.Tick(ctx)
		}
	}
}

// Tick performs one reconciliation pass.
func (r *Reconciler) Tick(ctx context.Context) {
	current, err := r.proxy.ReadAutoConfigURL()
	if err != nil {
		logger.Warn("failed to read auto-config URL, skipping tick: %v", err)
		return
	}

	masterURL := r.settings.PACURL()
	if current == masterURL {
		r.lastObserved = current
		return
	}

	if current != r.lastObserved {
		logger.Info("system proxy configuration changed: %q", current)

		// An empty URL means the setting was cleared; there is nothing to
		// absorb, but our URL still gets restored below.
		if current != "" {
			if err := r.absorb(ctx, current); err != nil {
				logger.Error("failed to absorb external PAC from %s: %v", current, err)
				r.lastObserved = current
				return
			}
		}

		if err := r.proxy.SetAutoConfigURL(masterURL); err != nil {
			logger.Error("failed to restore proxy configuration: %v", err)
		} else {
			logger.Info("successfully restored proxy configuration")
		}
	}

	r.lastObserved = current
}

// absorb fetches the foreign PAC and adds it to the document. A duplicate
// symbol means the script was absorbed on an earlier encounter and is
// not an error.
func (r *Reconciler) absorb(ctx context.Context, url string) error {
	symbol := pacfetch.SymbolFor(url)
	if r.doc.HasSymbol(symbol) {
		logger.Debug("external PAC from %s already absorbed", url)
		return nil
	}

	fn, err := pacfetch.Fetch(ctx, url)
	if err != nil {
		return err
	}

	err = r.doc.AppendExternal(pacconfig.ExternalPACItem{Function: fn, Enabled: true})
	if err != nil && !errors.Is(err, pacconfig.ErrDuplicateSymbol) {
		return err
	}

	logger.Info("absorbed external PAC configuration from %s", url)
	return nil
}
