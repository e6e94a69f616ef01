package app

// wellKnownPAC names a PAC URL that is worth probing at startup.
type wellKnownPAC struct {
	URL         string
	Description string
}

// wellKnownPACs are absorbed in order during startup. WPAD covers
// networks that publish a PAC via auto-discovery; the localhost entries
// cover agents that publish their own PAC on a fixed port.
var wellKnownPACs = []wellKnownPAC{
	{
		URL:         "http://wpad/wpad.dat",
		Description: "WPAD (Web Proxy Auto-Discovery Protocol) PAC file",
	},
	{
		URL:         "http://localhost:3333/files/proxy.pac",
		Description: "itTLS PAC file",
	},
	{
		URL:         "http://localhost:10224/proxy.pac",
		Description: "avTune PAC file",
	},
}
