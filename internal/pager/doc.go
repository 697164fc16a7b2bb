// Package pager splits long markdown replies into displayable pages at
// top-level block boundaries.
package pager
