// Package pacconfig stores and manages the configuration document: the
// ordered proxy rules, bypass entries, and external PAC functions that the
// master PAC file is generated from.
//
// Although the list fields are public, this is only for use by the JSON
// marshaller. All access to a Document must go through the exported
// methods. Every mutator persists the document to disk before releasing
// the write lock, so readers observe either the pre- or post-state and
// the on-disk file never disagrees with what a reader saw.
package pacconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/proxycat/proxycat/internal/logger"
	"github.com/proxycat/proxycat/internal/sysproxy"
)

// DefaultFilename is the persisted document's filename, resolved against
// the process working directory.
const DefaultFilename = "proxycat_config.json"

// List names as they appear in the persisted JSON and in add-item request
// bodies.
const (
	ListProxyRules   = "proxy_rules"
	ListBypass       = "bypass_list"
	ListExternalPACs = "external_pac_functions"
)

var (
	ErrUnknownList     = errors.New("unknown list name")
	ErrIndexOutOfRange = errors.New("index out of range")
	ErrDuplicateSymbol = errors.New("external PAC function already present")
	ErrInvalidItem     = errors.New("invalid item")
)

// defaultBypassHosts are always re-inserted if missing when a document is
// created or first persisted.
var defaultBypassHosts = []string{"localhost", "127.0.0.1", "::1"}

// ProxyRule routes hosts matching HostPattern through ProxyHost:ProxyPort.
// HostPattern is either "*" (catch-all) or an exact hostname.
type ProxyRule struct {
	HostPattern string `json:"host_pattern"`
	ProxyHost   string `json:"proxy_host"`
	ProxyPort   uint16 `json:"proxy_port"`
}

// ProxyRuleItem wraps a ProxyRule with its enabled state.
type ProxyRuleItem struct {
	Rule    ProxyRule `json:"rule"`
	Enabled bool      `json:"enabled"`
}

// BypassItem is a host or IP literal that bypasses the proxy entirely.
// Comparison is by JavaScript strict equality at PAC evaluation time.
type BypassItem struct {
	Host    string `json:"host"`
	Enabled bool   `json:"enabled"`
}

// ExternalPACFunction is a renamed copy of a foreign PAC script's
// FindProxyForURL. SymbolName is derived deterministically from SourceURL
// and Body is the full function definition under that name.
type ExternalPACFunction struct {
	SourceURL  string `json:"source_url"`
	SymbolName string `json:"symbol_name"`
	Body       string `json:"body"`
}

// ExternalPACItem wraps an ExternalPACFunction with its enabled state.
type ExternalPACItem struct {
	Function ExternalPACFunction `json:"function"`
	Enabled  bool                `json:"enabled"`
}

// Document is the shared configuration document. It is read by the PAC
// generator on every request and written by the HTTP control plane and
// the reconciler.
type Document struct {
	mu   sync.RWMutex
	path string

	ProxyRules           []ProxyRuleItem   `json:"proxy_rules"`
	BypassList           []BypassItem      `json:"bypass_list"`
	ExternalPACFunctions []ExternalPACItem `json:"external_pac_functions"`
}

// New returns an empty document seeded with the default bypass entries.
// The document is not persisted until the first mutation.
func New(path string) *Document {
	d := &Document{path: path}
	d.ensureDefaultBypass()
	return d
}

// Load reads a persisted document from path.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	d := &Document{path: path}
	if err := json.Unmarshal(data, d); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	d.ensureDefaultBypass()
	return d, nil
}

// FromSnapshot synthesizes a document from the OS proxy configuration.
// A static proxy server becomes a catch-all rule and the OS bypass string
// populates the bypass list; the default bypass entries are then ensured.
func FromSnapshot(snap sysproxy.Snapshot, path string) *Document {
	d := &Document{path: path}

	if snap.ProxyServer != "" {
		if host, port, ok := parseProxyServer(snap.ProxyServer); ok {
			d.ProxyRules = append(d.ProxyRules, ProxyRuleItem{
				Rule:    ProxyRule{HostPattern: "*", ProxyHost: host, ProxyPort: port},
				Enabled: true,
			})
			logger.Info("added catch-all proxy rule from system settings: %s:%d", host, port)
		} else {
			logger.Warn("failed to parse system proxy server %q", snap.ProxyServer)
		}
	}

	for _, host := range strings.Split(snap.ProxyBypass, ";") {
		host = strings.TrimSpace(host)
		if host == "" {
			continue
		}
		d.BypassList = append(d.BypassList, BypassItem{Host: host, Enabled: true})
	}

	d.ensureDefaultBypass()
	return d
}

// Path returns the path the document persists to.
func (d *Document) Path() string {
	return d.path
}

// Toggle flips the enabled flag of the item at index in the named list
// and persists the document.
func (d *Document) Toggle(list string, index int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch list {
	case ListProxyRules:
		if index < 0 || index >= len(d.ProxyRules) {
			return fmt.Errorf("%w: %s[%d]", ErrIndexOutOfRange, list, index)
		}
		d.ProxyRules[index].Enabled = !d.ProxyRules[index].Enabled
	case ListBypass:
		if index < 0 || index >= len(d.BypassList) {
			return fmt.Errorf("%w: %s[%d]", ErrIndexOutOfRange, list, index)
		}
		d.BypassList[index].Enabled = !d.BypassList[index].Enabled
	case ListExternalPACs:
		if index < 0 || index >= len(d.ExternalPACFunctions) {
			return fmt.Errorf("%w: %s[%d]", ErrIndexOutOfRange, list, index)
		}
		d.ExternalPACFunctions[index].Enabled = !d.ExternalPACFunctions[index].Enabled
	default:
		return fmt.Errorf("%w: %q", ErrUnknownList, list)
	}

	return d.save()
}

// Move removes the item at from and reinserts it at to, then persists.
// to may equal the list length, meaning insert at the end.
func (d *Document) Move(list string, from, to int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch list {
	case ListProxyRules:
		moved, err := moveItem(d.ProxyRules, from, to)
		if err != nil {
			return fmt.Errorf("%w: %s[%d -> %d]", err, list, from, to)
		}
		d.ProxyRules = moved
	case ListBypass:
		moved, err := moveItem(d.BypassList, from, to)
		if err != nil {
			return fmt.Errorf("%w: %s[%d -> %d]", err, list, from, to)
		}
		d.BypassList = moved
	case ListExternalPACs:
		moved, err := moveItem(d.ExternalPACFunctions, from, to)
		if err != nil {
			return fmt.Errorf("%w: %s[%d -> %d]", err, list, from, to)
		}
		d.ExternalPACFunctions = moved
	default:
		return fmt.Errorf("%w: %q", ErrUnknownList, list)
	}

	return d.save()
}

// AppendProxyRule validates the rule, appends it, and persists.
func (d *Document) AppendProxyRule(item ProxyRuleItem) error {
	if err := ValidateProxyRule(item.Rule); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.ProxyRules = append(d.ProxyRules, item)
	return d.save()
}

// AppendBypass validates the host, appends the entry, and persists.
func (d *Document) AppendBypass(item BypassItem) error {
	if err := ValidateHost(item.Host); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.BypassList = append(d.BypassList, item)
	return d.save()
}

// AppendExternal appends a fetched external PAC function and persists.
// If a function with the same symbol name is already present the document
// is left unchanged and ErrDuplicateSymbol is returned.
func (d *Document) AppendExternal(item ExternalPACItem) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, existing := range d.ExternalPACFunctions {
		if existing.Function.SymbolName == item.Function.SymbolName {
			return fmt.Errorf("%w: %s", ErrDuplicateSymbol, item.Function.SymbolName)
		}
	}

	d.ExternalPACFunctions = append(d.ExternalPACFunctions, item)
	return d.save()
}

// HasSymbol reports whether an external function with the given symbol
// name is already present.
func (d *Document) HasSymbol(symbol string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, item := range d.ExternalPACFunctions {
		if item.Function.SymbolName == symbol {
			return true
		}
	}
	return false
}

// Snapshot returns copies of the three lists for lock-free consumption by
// the PAC generator and the /config endpoint.
func (d *Document) Snapshot() (rules []ProxyRuleItem, bypass []BypassItem, externals []ExternalPACItem) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rules = append(rules, d.ProxyRules...)
	bypass = append(bypass, d.BypassList...)
	externals = append(externals, d.ExternalPACFunctions...)
	return rules, bypass, externals
}

// JSON serializes the document for the /config endpoint.
func (d *Document) JSON() ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return json.MarshalIndent(d, "", "  ")
}

// Save persists the document. Exposed for callers that need to flush
// without mutating, e.g. right after first-run synthesis.
func (d *Document) Save() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.save()
}

// save must be called with mu held for writing. The write goes to a
// temporary file in the same directory which is then renamed over the
// destination, so a crash mid-write cannot truncate the previous state.
func (d *Document) save() error {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("serialize config: %w", err)
	}

	dir := filepath.Dir(d.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(d.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp config file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp config file: %w", err)
	}
	if err := os.Rename(tmp.Name(), d.path); err != nil {
		return fmt.Errorf("replace config file: %w", err)
	}
	return nil
}

func (d *Document) ensureDefaultBypass() {
	for _, host := range defaultBypassHosts {
		present := false
		for _, item := range d.BypassList {
			if item.Host == host {
				present = true
				break
			}
		}
		if !present {
			d.BypassList = append(d.BypassList, BypassItem{Host: host, Enabled: true})
		}
	}
}

func moveItem[T any](list []T, from, to int) ([]T, error) {
	if from < 0 || from >= len(list) || to < 0 || to > len(list) {
		return nil, ErrIndexOutOfRange
	}

	item := list[from]
	list = append(list[:from], list[from+1:]...)
	if to > len(list) {
		to = len(list)
	}
	list = append(list[:to], append([]T{item}, list[to:]...)...)
	return list, nil
}

// ValidateHost rejects hosts that would break out of the single-quoted
// string literals the generator emits them into.
func ValidateHost(host string) error {
	if host == "" {
		return fmt.Errorf("%w: host must not be empty", ErrInvalidItem)
	}
	for _, r := range host {
		if r == '\'' || r == '\\' || r < 0x20 || r == 0x7f {
			return fmt.Errorf("%w: host %q contains characters not allowed in generated PAC output", ErrInvalidItem, host)
		}
	}
	return nil
}

// ValidateProxyRule checks a rule before it enters the document.
func ValidateProxyRule(rule ProxyRule) error {
	if rule.HostPattern != "*" {
		if err := ValidateHost(rule.HostPattern); err != nil {
			return err
		}
	}
	if err := ValidateHost(rule.ProxyHost); err != nil {
		return err
	}
	if rule.ProxyPort == 0 {
		return fmt.Errorf("%w: proxy_port must be between 1 and 65535", ErrInvalidItem)
	}
	return nil
}

// parseProxyServer splits a "host:port" proxy server string.
func parseProxyServer(s string) (host string, port uint16, ok bool) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return "", 0, false
	}
	p, err := strconv.ParseUint(parts[1], 10, 16)
	if err != nil || p == 0 {
		return "", 0, false
	}
	return parts[0], uint16(p), true
}
