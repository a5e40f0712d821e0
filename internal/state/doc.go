// Package state persists workspace sessions on disk: a JSON session index,
// per-session JSONL transcript archives, and exported report binaries. The
// live conversation stays in memory; these stores are the daemon's write-
// through archive.
package state
