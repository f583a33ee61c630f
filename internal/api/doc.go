// Package api serves health, Prometheus metrics, and live crawl progress
// while a run is in flight.
package api
