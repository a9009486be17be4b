// Package syncer implements the Sync Engine.
//
// Every mutation is applied to the Local Store first and recorded in the
// Sync Queue within one store transaction. When the Connectivity Oracle
// reports online, the engine drains the queue against the Remote: FIFO per
// entity type, stopping a type at its first transient failure. A
// successful create replaces the record's local id with the server id in
// one transaction, so readers never see both rows or neither.
//
// Entries that fail permanently, or transiently more than
// Options.MaxAttempts times, are dead-lettered together with every later
// entry for the same record. Dead entries no longer block their type; they
// wait for Requeue or Discard.
//
// Drains are triggered by Start, by an offline to online transition that
// lasts Options.StableConnectionDelay, every Options.SyncInterval while
// entries are pending, and by Kick. Transient failures delay the next
// automatic drain with exponential backoff.
package syncer
