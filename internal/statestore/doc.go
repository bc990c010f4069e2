// Package statestore keeps the durable last-known zone of every identity.
//
// History is append-only: each resolved transition adds a row to
// location_history. The locations view exposes the newest row per identity
// and accepts inserts through an INSTEAD OF trigger, so writers and readers
// only ever touch one name.
//
// The store needs no migration step. The first write or read that finds the
// schema missing creates it (every statement is IF NOT EXISTS) and carries
// on. Writes retry after creating the schema, up to three attempts in all;
// any other failure is logged and the record dropped.
package statestore
