// Package webui embeds the static admin page served at /.
package webui

import _ "embed"

//go:embed index.html
var Index []byte
