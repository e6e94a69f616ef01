// Package server exposes the configuration document and the master PAC
// script over a local HTTP server, and accepts admin edits.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/proxycat/proxycat/internal/logger"
	"github.com/proxycat/proxycat/internal/pacconfig"
	"github.com/proxycat/proxycat/internal/pacfetch"
	"github.com/proxycat/proxycat/internal/pacgen"
	"github.com/proxycat/proxycat/internal/settings"
	"github.com/proxycat/proxycat/internal/webui"
)

// listNames maps the camelCase list names used in URLs to the snake_case
// names used in request bodies and the persisted document. The asymmetry
// is kept for compatibility with the admin UI.
var listNames = map[string]string{
	"proxyRules":           pacconfig.ListProxyRules,
	"bypassList":           pacconfig.ListBypass,
	"externalPacFunctions": pacconfig.ListExternalPACs,
}

// addItemRequest is the body of POST /add-item.
type addItemRequest struct {
	ListType string          `json:"list_type"`
	Item     json.RawMessage `json:"item"`
}

// Server is the HTTP control plane.
type Server struct {
	settings *settings.Store
	doc      *pacconfig.Document
}

func New(st *settings.Store, doc *pacconfig.Document) *Server {
	return &Server{settings: st, doc: doc}
}

// Router builds the route table. The PAC path is resolved from the
// settings store at call time.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/", s.handleIndex)
	r.Get("/favicon.ico", s.handleFavicon)
	r.Get(s.settings.PACPath(), s.handlePAC)
	r.Get("/pac-content", s.handlePACContent)
	r.Get("/config", s.handleConfig)
	r.Post("/toggle/{list}/{index}", s.handleToggle)
	r.Post("/move/{list}/{from}/{to}", s.handleMove)
	r.Post("/add-item", s.handleAddItem)

	return r
}

// Run serves until ctx is canceled or the listener fails.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.settings.Addr(),
		Handler:      s.Router(),
		ReadTimeout:  time.Minute,
		WriteTimeout: time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server on http://%s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		srv.Close()
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	logger.Debug("handling root path request")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(webui.Index)
}

func (s *Server) handleFavicon(w http.ResponseWriter, r *http.Request) {
	contents, err := os.ReadFile("icon.ico")
	if err != nil {
		logger.Warn("favicon not found")
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "image/x-icon")
	w.Write(contents)
}

func (s *Server) handlePAC(w http.ResponseWriter, _ *http.Request) {
	logger.Debug("handling PAC file request")
	w.Header().Set("Content-Type", "application/x-ns-proxy-autoconfig")
	w.Write([]byte(pacgen.Generate(s.doc)))
}

func (s *Server) handlePACContent(w http.ResponseWriter, _ *http.Request) {
	logger.Debug("handling PAC content request")
	w.Header().Set("Content-Type", "text/plain")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Write([]byte(pacgen.Generate(s.doc)))
}

func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	logger.Debug("handling config request")
	data, err := s.doc.JSON()
	if err != nil {
		http.Error(w, "Failed to serialize configuration", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Write(data)
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")

	list, ok := listNames[chi.URLParam(r, "list")]
	if !ok {
		http.Error(w, "Invalid list type", http.StatusBadRequest)
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		http.Error(w, "Invalid index", http.StatusBadRequest)
		return
	}

	logger.Debug("handling toggle request for %s at index %d", list, index)
	if err := s.doc.Toggle(list, index); err != nil {
		writeMutationError(w, err)
		return
	}

	w.Write([]byte("Item toggled successfully"))
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")

	list, ok := listNames[chi.URLParam(r, "list")]
	if !ok {
		http.Error(w, "Invalid list type", http.StatusBadRequest)
		return
	}
	from, err := strconv.Atoi(chi.URLParam(r, "from"))
	if err != nil {
		http.Error(w, "Invalid from index", http.StatusBadRequest)
		return
	}
	to, err := strconv.Atoi(chi.URLParam(r, "to"))
	if err != nil {
		http.Error(w, "Invalid to index", http.StatusBadRequest)
		return
	}

	logger.Debug("handling move request for %s from %d to %d", list, from, to)
	if err := s.doc.Move(list, from, to); err != nil {
		writeMutationError(w, err)
		return
	}

	w.Write([]byte("Item moved successfully"))
}

func (s *Server) handleAddItem(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")

	var req addItemRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	logger.Debug("handling add item request for %s", req.ListType)

	switch req.ListType {
	case pacconfig.ListProxyRules:
		var item pacconfig.ProxyRuleItem
		if err := decodeStrict(req.Item, &item); err != nil {
			http.Error(w, "Invalid proxy rule: "+err.Error(), http.StatusBadRequest)
			return
		}
		if err := s.doc.AppendProxyRule(item); err != nil {
			writeMutationError(w, err)
			return
		}
	case pacconfig.ListBypass:
		var item pacconfig.BypassItem
		if err := decodeStrict(req.Item, &item); err != nil {
			http.Error(w, "Invalid bypass entry: "+err.Error(), http.StatusBadRequest)
			return
		}
		if err := s.doc.AppendBypass(item); err != nil {
			writeMutationError(w, err)
			return
		}
	case pacconfig.ListExternalPACs:
		var item pacconfig.ExternalPACItem
		if err := decodeStrict(req.Item, &item); err != nil {
			http.Error(w, "Invalid external PAC item: "+err.Error(), http.StatusBadRequest)
			return
		}
		fn, err := pacfetch.Fetch(r.Context(), item.Function.SourceURL)
		if err != nil {
			logger.Error("failed to load external PAC from %s: %v", item.Function.SourceURL, err)
			http.Error(w, "Failed to load external PAC: "+err.Error(), http.StatusBadRequest)
			return
		}
		if err := s.doc.AppendExternal(pacconfig.ExternalPACItem{Function: fn, Enabled: true}); err != nil {
			if errors.Is(err, pacconfig.ErrDuplicateSymbol) {
				logger.Info("external PAC from %s already present, skipping", item.Function.SourceURL)
				w.Write([]byte("Item already present"))
				return
			}
			writeMutationError(w, err)
			return
		}
	default:
		http.Error(w, "Invalid list type", http.StatusBadRequest)
		return
	}

	w.Write([]byte("Item added successfully"))
}

// writeMutationError maps document errors to status codes: client-induced
// errors (bad index, unknown list, invalid item) get 4xx, persistence
// failures get 5xx.
func writeMutationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pacconfig.ErrIndexOutOfRange), errors.Is(err, pacconfig.ErrUnknownList), errors.Is(err, pacconfig.ErrInvalidItem):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		logger.Error("failed to save configuration: %v", err)
		http.Error(w, "Failed to save configuration", http.StatusInternalServerError)
	}
}

func decodeStrict(raw json.RawMessage, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
