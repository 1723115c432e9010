// Package types holds the shared data model for incbak: source and
// exclude specifications, backup sets and instances, session plans and
// retention decisions, plus the FS and Syncer interfaces that decouple
// the engine from the real filesystem and from rsync.
package types
