// Package daemon runs the unattended processing loop: watch the inbox,
// execute queued jobs, and hand finished artifacts to ingestion. A lock
// file keeps it to one instance per host.
package daemon
