// Package pacgen renders the configuration document into the master PAC
// script.
package pacgen

import (
	"fmt"
	"strings"

	"github.com/proxycat/proxycat/internal/pacconfig"
)

const pacTemplate = `
function FindProxyForURL(url, host) {

    function isEmptyStringSafe(str) {
        // Handle null/undefined
        if (str == null) return true;
        // Handle non-string types
        if (typeof str !== 'string') return true;
        return str.length === 0;
    }

    // All external PAC functions first
    %s

    // Bypass list - hosts matching these entries bypass the proxy
    if (%s) {
        return "DIRECT";
    }

    // Try external PAC functions
    %s

    // Proxy rules - check each rule against the host
    %s

    // Default to direct connection if no rules match
    return "DIRECT";
}`

// Generate renders the current document state into a self-contained PAC
// script. The generated file defines FindProxyForURL in terms of the
// bypass list, the absorbed external functions, and the local proxy
// rules, evaluated in that order.
func Generate(doc *pacconfig.Document) string {
	rules, bypass, externals := doc.Snapshot()

	return fmt.Sprintf(pacTemplate,
		renderExternalBodies(externals),
		renderBypass(bypass),
		renderTrampolines(externals),
		renderProxyRules(rules),
	)
}

// renderBypass joins the enabled bypass entries into a disjunction of
// strict host comparisons. With no enabled entries it emits the literal
// false so the emitted condition stays valid JavaScript.
func renderBypass(bypass []pacconfig.BypassItem) string {
	var checks []string
	for _, item := range bypass {
		if !item.Enabled {
			continue
		}
		checks = append(checks, fmt.Sprintf("host === '%s'", item.Host))
	}
	if len(checks) == 0 {
		return "false"
	}
	return strings.Join(checks, " || ")
}

// renderExternalBodies emits the enabled external function definitions
// verbatim, ahead of everything that calls them.
func renderExternalBodies(externals []pacconfig.ExternalPACItem) string {
	var bodies []string
	for _, item := range externals {
		if !item.Enabled {
			continue
		}
		bodies = append(bodies, item.Function.Body)
	}
	return strings.Join(bodies, "\n\n")
}

// renderTrampolines emits one call block per enabled external function.
// Each block stores the function's verdict in a local named after the
// symbol, which keeps the locals unique, and returns it if non-empty.
func renderTrampolines(externals []pacconfig.ExternalPACItem) string {
	var calls []string
	for _, item := range externals {
		if !item.Enabled {
			continue
		}
		fn := item.Function
		calls = append(calls, fmt.Sprintf(
			"    // Try external PAC function from %s\n    const result%s = %s(url, host);\n    if (!isEmptyStringSafe(result%s)) return result%s;",
			fn.SourceURL, fn.SymbolName, fn.SymbolName, fn.SymbolName, fn.SymbolName))
	}
	return strings.Join(calls, "\n")
}

// renderProxyRules emits the enabled rules in document order. A catch-all
// rule returns unconditionally, so anything after it is dead.
func renderProxyRules(rules []pacconfig.ProxyRuleItem) string {
	var lines []string
	for _, item := range rules {
		if !item.Enabled {
			continue
		}
		r := item.Rule
		if r.HostPattern == "*" {
			lines = append(lines, fmt.Sprintf("return 'PROXY %s:%d';", r.ProxyHost, r.ProxyPort))
		} else {
			lines = append(lines, fmt.Sprintf("if (host == '%s') return 'PROXY %s:%d';", r.HostPattern, r.ProxyHost, r.ProxyPort))
		}
	}
	return strings.Join(lines, "\n    ")
}
