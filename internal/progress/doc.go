// Package progress tracks the crawlers of a run so their counters can be
// reported while the run is in progress and summarised afterwards.
package progress
