// Package store holds the server's in-memory state for the API.
//
// Series is a bounded ring of recent output tuples (150 points by default,
// the chart window). Producers tracks every sample producer seen recently
// and evicts those silent for longer than the TTL.
//
// Nothing is persisted; a restart starts from empty.
package store
