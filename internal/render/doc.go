// Package render converts producer markdown into HTML fragments using goldmark.
//
// Renderer options can be loaded from a YAML file and hot-reloaded with Watch; a reload swaps
// the underlying goldmark instance atomically so in-flight renders finish with the old options.
package render
