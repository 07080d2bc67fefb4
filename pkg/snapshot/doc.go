// Package snapshot models device configuration snapshots and their
// comparison.
//
// Capturing and restoring snapshots is owned by an external collaborator;
// this package defines the contracts (Capturer, Restorer), the keyed item
// model, the divergence computation used by post-command verification, and
// the per-item restore report. Verification only reads snapshots; it never
// triggers restoration.
package snapshot
