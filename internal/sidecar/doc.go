// Package sidecar places analysis artifacts on disk.
//
// Artifacts are written to a sibling temp path first and promoted with an
// atomic rename so a crash never leaves a partially-written file looking
// complete. Promotion checks destination existence first, making Finalize
// safe to repeat across restarts.
package sidecar
