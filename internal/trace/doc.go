// Package trace runs external processes under OS-level file-access tracing
// and reports the set of files each process read and wrote. Platforms
// without a usable tracing backend refuse at startup instead of silently
// losing dependency discovery.
package trace
