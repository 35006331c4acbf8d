// Package helix holds typed requests for the Helix REST API and a thin client
// that runs them through the core engine.
package helix
