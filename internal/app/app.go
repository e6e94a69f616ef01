// Package app wires the configuration document, HTTP control plane,
// reconciler, and OS proxy adapter together and runs them for the
// process lifetime.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/pkg/browser"
	"golang.org/x/sync/errgroup"

	"github.com/proxycat/proxycat/internal/logger"
	"github.com/proxycat/proxycat/internal/pacconfig"
	"github.com/proxycat/proxycat/internal/pacfetch"
	"github.com/proxycat/proxycat/internal/reconciler"
	"github.com/proxycat/proxycat/internal/server"
	"github.com/proxycat/proxycat/internal/settings"
	"github.com/proxycat/proxycat/internal/sysproxy"
)

// App is the top-level coordinator.
type App struct {
	settings *settings.Store
	proxy    sysproxy.Manager
	doc      *pacconfig.Document
}

// New loads the configuration document, synthesizing it from the current
// OS proxy settings when no file exists yet.
func New(st *settings.Store, proxy sysproxy.Manager) *App {
	doc, err := pacconfig.Load(pacconfig.DefaultFilename)
	if err != nil {
		logger.Warn("could not load configuration file: %v", err)
		logger.Info("creating new configuration from system settings")

		snap, err := proxy.ReadSnapshot()
		if err != nil {
			logger.Error("failed to read system proxy settings: %v", err)
			doc = pacconfig.New(pacconfig.DefaultFilename)
		} else {
			doc = pacconfig.FromSnapshot(snap, pacconfig.DefaultFilename)
		}

		if err := doc.Save(); err != nil {
			logger.Error("failed to save initial configuration: %v", err)
		}
	} else {
		logger.Info("loaded existing configuration from file")
	}

	return &App{settings: st, proxy: proxy, doc: doc}
}

// Document exposes the configuration document, used by the tray's status
// rendering and by tests.
func (a *App) Document() *pacconfig.Document {
	return a.doc
}

// Run starts the HTTP server and the reconciler, points the OS at the
// master PAC URL, and blocks until ctx is canceled or the server fails.
func (a *App) Run(ctx context.Context) error {
	a.preloadWellKnownPACs(ctx)

	srv := server.New(a.settings, a.doc)
	rec := reconciler.New(a.proxy, a.doc, a.settings)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(ctx)
	})
	g.Go(func() error {
		return rec.Run(ctx)
	})

	pacURL := a.settings.PACURL()
	if err := a.proxy.SetAutoConfigURL(pacURL); err != nil {
		logger.Error("failed to set system proxy configuration: %v", err)
	} else {
		logger.Info("system proxy configured to use %s", pacURL)
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run: %w", err)
	}
	return nil
}

// OpenAdminUI launches the default browser at the admin page. Exposed for
// the tray's "Open" action.
func (a *App) OpenAdminUI() error {
	return browser.OpenURL(fmt.Sprintf("http://%s", a.settings.Addr()))
}

// preloadWellKnownPACs absorbs the PAC scripts local agents commonly
// publish. Fetch failures are expected on machines without those agents
// and are only logged.
func (a *App) preloadWellKnownPACs(ctx context.Context) {
	for _, known := range wellKnownPACs {
		logger.Info("loading PAC file: %s", known.Description)

		if a.doc.HasSymbol(pacfetch.SymbolFor(known.URL)) {
			logger.Debug("PAC from %s already absorbed", known.URL)
			continue
		}

		fn, err := pacfetch.Fetch(ctx, known.URL)
		if err != nil {
			logger.Debug("skipping %s: %v", known.URL, err)
			continue
		}

		err = a.doc.AppendExternal(pacconfig.ExternalPACItem{Function: fn, Enabled: true})
		if err != nil && !errors.Is(err, pacconfig.ErrDuplicateSymbol) {
			logger.Error("failed to add PAC from %s: %v", known.URL, err)
		}
	}
}
