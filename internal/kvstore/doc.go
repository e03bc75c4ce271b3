// Package kvstore provides a Pebble-backed work item store.
//
// It is an alternative to the SQLite store for environments that prefer an
// embedded LSM key-value engine. Layout:
//
//	item/<id> -> JSON {"amount", "priority", "status", "seq", "updated_at"}
//
// seq is assigned on first write and never changes, so LoadPending and
// List return items in first-insertion order.
//
// Usage:
//
//	kv, err := kvstore.Open(kvstore.Options{DataDir: "./txsim-data"})
//	if err != nil { /* handle */ }
//	defer kv.Close()
//
//	eng := engine.New(kv, nil)
package kvstore
