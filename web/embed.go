// Package web bundles the HTML templates rendered by the UI server.
package web

import "embed"

// Templates holds every page and partial under templates/.
//
//go:embed templates/*.html
var Templates embed.FS
