// Package action defines the schedulable units of a build: watched files
// and external command invocations, including the TeX-specific command
// variants. Every action has a stable content-addressed identity, a dirty
// flag, and an execute contract; the catalog of variants is closed and
// instantiated through a tag-keyed registry so that configuration-declared
// type names are validated at load time.
package action
