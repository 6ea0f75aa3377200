// Package cache provides a process-local TTL cache for read snapshots.
//
// Values live for a fixed TTL (30 seconds by default) and are evicted
// opportunistically: a full expiry sweep runs during normal operations
// once the sweep interval (60 seconds by default) has elapsed. Expired
// entries are never served regardless of sweep timing.
//
// Keys follow the "operation" or "operation:project" scheme built by
// Key. Invalidate removes every entry that could contain a project,
// including parameterless aggregate snapshots such as project lists.
package cache
