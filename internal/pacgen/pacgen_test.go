package pacgen

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/proxycat/proxycat/internal/pacconfig"
)

func newDocument(t *testing.T) *pacconfig.Document {
	t.Helper()
	return pacconfig.New(filepath.Join(t.TempDir(), "proxycat_config.json"))
}

func TestGenerate(t *testing.T) {
	t.Parallel()

	t.Run("empty document bypasses defaults and falls through to DIRECT", func(t *testing.T) {
		t.Parallel()
		doc := newDocument(t)

		pac := Generate(doc)
		require.Contains(t, pac, "function FindProxyForURL(url, host)")
		require.Contains(t, pac, "if (host === 'localhost' || host === '127.0.0.1' || host === '::1')")
		require.Contains(t, pac, `return "DIRECT";`)
	})

	t.Run("catch-all rule returns the proxy unconditionally", func(t *testing.T) {
		t.Parallel()
		doc := newDocument(t)
		require.NoError(t, doc.AppendProxyRule(pacconfig.ProxyRuleItem{
			Rule:    pacconfig.ProxyRule{HostPattern: "*", ProxyHost: "p.example", ProxyPort: 8080},
			Enabled: true,
		}))

		pac := Generate(doc)
		require.Contains(t, pac, "return 'PROXY p.example:8080';")
		require.NotContains(t, pac, "if (host == '*')")
	})

	t.Run("exact hostname rule is conditional", func(t *testing.T) {
		t.Parallel()
		doc := newDocument(t)
		require.NoError(t, doc.AppendProxyRule(pacconfig.ProxyRuleItem{
			Rule:    pacconfig.ProxyRule{HostPattern: "internal.example", ProxyHost: "p.example", ProxyPort: 3128},
			Enabled: true,
		}))

		pac := Generate(doc)
		require.Contains(t, pac, "if (host == 'internal.example') return 'PROXY p.example:3128';")
	})

	t.Run("disabled rules are omitted", func(t *testing.T) {
		t.Parallel()
		doc := newDocument(t)
		require.NoError(t, doc.AppendProxyRule(pacconfig.ProxyRuleItem{
			Rule:    pacconfig.ProxyRule{HostPattern: "*", ProxyHost: "p.example", ProxyPort: 8080},
			Enabled: true,
		}))
		require.NoError(t, doc.Toggle(pacconfig.ListProxyRules, 0))

		pac := Generate(doc)
		require.NotContains(t, pac, "PROXY p.example:8080")
	})

	t.Run("no enabled bypass entries emit the literal false", func(t *testing.T) {
		t.Parallel()
		doc := newDocument(t)
		for i := 0; i < 3; i++ {
			require.NoError(t, doc.Toggle(pacconfig.ListBypass, i))
		}

		pac := Generate(doc)
		require.Contains(t, pac, "if (false)")
		require.NotContains(t, pac, "host === 'localhost'")
	})

	t.Run("external function bodies precede the bypass check", func(t *testing.T) {
		t.Parallel()
		doc := newDocument(t)
		require.NoError(t, doc.AppendExternal(pacconfig.ExternalPACItem{
			Function: pacconfig.ExternalPACFunction{
				SourceURL:  "http://x/y.pac",
				SymbolName: "FindProxyForURL_http___x_y_pac",
				Body:       `function FindProxyForURL_http___x_y_pac(url, host) { return ""; }`,
			},
			Enabled: true,
		}))

		pac := Generate(doc)
		bodyPos := strings.Index(pac, "function FindProxyForURL_http___x_y_pac(url, host)")
		bypassPos := strings.Index(pac, "if (host === 'localhost'")
		trampolinePos := strings.Index(pac, "const resultFindProxyForURL_http___x_y_pac = FindProxyForURL_http___x_y_pac(url, host);")
		require.Greater(t, bodyPos, -1)
		require.Greater(t, bypassPos, bodyPos)
		require.Greater(t, trampolinePos, bypassPos)
		require.Contains(t, pac, "if (!isEmptyStringSafe(resultFindProxyForURL_http___x_y_pac)) return resultFindProxyForURL_http___x_y_pac;")
	})

	t.Run("disabled external functions are fully omitted", func(t *testing.T) {
		t.Parallel()
		doc := newDocument(t)
		require.NoError(t, doc.AppendExternal(pacconfig.ExternalPACItem{
			Function: pacconfig.ExternalPACFunction{
				SourceURL:  "http://x/y.pac",
				SymbolName: "FindProxyForURL_http___x_y_pac",
				Body:       `function FindProxyForURL_http___x_y_pac(url, host) { return ""; }`,
			},
			Enabled: true,
		}))
		require.NoError(t, doc.Toggle(pacconfig.ListExternalPACs, 0))

		pac := Generate(doc)
		require.NotContains(t, pac, "FindProxyForURL_http___x_y_pac")
	})

	t.Run("trampolines follow document order", func(t *testing.T) {
		t.Parallel()
		doc := newDocument(t)
		for _, symbol := range []string{"FindProxyForURL_a", "FindProxyForURL_b"} {
			require.NoError(t, doc.AppendExternal(pacconfig.ExternalPACItem{
				Function: pacconfig.ExternalPACFunction{
					SourceURL:  "http://" + symbol,
					SymbolName: symbol,
					Body:       "function " + symbol + `(url, host) { return ""; }`,
				},
				Enabled: true,
			}))
		}

		pac := Generate(doc)
		require.Less(t,
			strings.Index(pac, "const resultFindProxyForURL_a"),
			strings.Index(pac, "const resultFindProxyForURL_b"))
	})
}
