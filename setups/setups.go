// Package setups embeds the setup bundles shipped with the server.
// Each bundle is a directory named by its setup ID containing the
// definition files the rules engine loads.
package setups

import "embed"

//go:embed 0.1
var FS embed.FS
