// Package tables registers the canonical EarthBank table mappings with the
// core registry. Import this package to ensure all mappings are registered.
package tables
