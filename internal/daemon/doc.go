// Package daemon combines the scheduler, the clearance monitor, and the
// tracking store into a single lifecycle with flock-based locking to prevent
// multiple concurrent instances.
package daemon
