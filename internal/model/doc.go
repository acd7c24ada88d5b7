// Package model defines the records shared by the local store, the remote
// client and the sync engines.
//
// # Identity
//
// Every record carries a Ref. A record created on this device starts with a
// local auto-increment id only; a record first seen on the backend starts with
// a backend UUID only; once both sides know the record the Ref holds both ids.
//
//	Ref{Kind: RefLocal,  LocalID: 5}
//	Ref{Kind: RefRemote, RemoteID: "uuid-123"}
//	Ref{Kind: RefSynced, LocalID: 5, RemoteID: "uuid-123"}
//
// Ref.ID returns the single live id: the backend id once assigned, otherwise
// the decimal local id. Callers that hold an id string (deep links, CLI
// arguments, goal.RelatedTasks on the wire) resolve it with Ref.Matches.
//
// # Timestamps
//
// CreatedAt and UpdatedAt drive conflict resolution. Timer sessions use
// last-writer-wins on UpdatedAt (falling back to CreatedAt); tasks pulled from
// the backend are matched on (title, CreatedAt) when neither side has the
// other's id yet.
package model
