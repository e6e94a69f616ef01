// Package pacfetch downloads external PAC scripts and rewrites their
// FindProxyForURL function under a collision-free name so multiple
// scripts can coexist in the master PAC file.
package pacfetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/proxycat/proxycat/internal/pacconfig"
)

const (
	functionMarker = "function FindProxyForURL"
	symbolPrefix   = "FindProxyForURL_"

	// fetchTimeout bounds the total time of a fetch so a slow server
	// cannot stall callers holding the document write lock.
	fetchTimeout = 10 * time.Second

	// maxBodySize caps how much of a response we are willing to read.
	// PAC files are specified to be at most 1MB on most platforms.
	maxBodySize = 4 << 20
)

// ErrNoFunction is returned when the fetched body contains no
// FindProxyForURL definition.
var ErrNoFunction = errors.New("no FindProxyForURL function found")

var httpClient = &http.Client{
	Timeout: fetchTimeout,
}

// Fetch downloads the PAC script at url and returns its FindProxyForURL
// function renamed to the symbol derived from url.
func Fetch(ctx context.Context, url string) (pacconfig.ExternalPACFunction, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return pacconfig.ExternalPACFunction{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return pacconfig.ExternalPACFunction{}, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return pacconfig.ExternalPACFunction{}, fmt.Errorf("fetch %s: unexpected status %s", url, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return pacconfig.ExternalPACFunction{}, fmt.Errorf("read %s: %w", url, err)
	}

	return Rewrite(url, string(body))
}

// Rewrite extracts the FindProxyForURL function from content and renames
// it to the symbol derived from sourceURL.
func Rewrite(sourceURL, content string) (pacconfig.ExternalPACFunction, error) {
	region, err := ExtractFunction(content)
	if err != nil {
		return pacconfig.ExternalPACFunction{}, err
	}

	symbol := SymbolFor(sourceURL)
	body := strings.Replace(region, functionMarker, "function "+symbol, 1)

	return pacconfig.ExternalPACFunction{
		SourceURL:  sourceURL,
		SymbolName: symbol,
		Body:       body,
	}, nil
}

// ExtractFunction locates the FindProxyForURL definition in content and
// returns it, ending at the brace that closes the function body.
//
// The scan is a naive substring search: a PAC file that mentions
// "function FindProxyForURL" inside a string literal or comment will
// mis-parse. Well-formed PAC files in the wild do not do this, and a
// mis-parse only causes the script to be skipped.
func ExtractFunction(content string) (string, error) {
	start := strings.Index(content, functionMarker)
	if start == -1 {
		return "", ErrNoFunction
	}

	depth := 0
	opened := false
	for i := start; i < len(content); i++ {
		switch content[i] {
		case '{':
			depth++
			opened = true
		case '}':
			depth--
			if opened && depth == 0 {
				return content[start : i+1], nil
			}
		}
	}

	return "", fmt.Errorf("%w: unbalanced braces", ErrNoFunction)
}

// SymbolFor derives the unique, deterministic symbol name for a source
// URL. Every non-alphanumeric code point of the URL maps to an
// underscore.
func SymbolFor(sourceURL string) string {
	return symbolPrefix + sanitize(sourceURL)
}

func sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}
