package state

import (
	"fmt"

	"github.com/vk/texforge/internal/action"
)

// snapshotVersion is bumped on incompatible format changes; mismatching
// snapshots are discarded, not migrated.
const snapshotVersion = 1

// snapshot is the persisted form of a graph.
type snapshot struct {
	Version int                 `cbor:"version"`
	Actions []record            `cbor:"actions"`
	Edges   map[string][]string `cbor:"edges"`
}

// record is the persisted form of one action: the variant tag plus the
// constructor arguments needed to rebuild it, and for file actions the last
// observed checksum.
type record struct {
	ID   string `cbor:"id"`
	Kind string `cbor:"kind"`

	// Checksum must distinguish nil (never observed) from empty (observed
	// missing), so it is encoded unconditionally.
	Path     string `cbor:"path,omitempty"`
	Checksum []byte `cbor:"checksum"`

	Argv    []string `cbor:"argv,omitempty"`
	Ignores []string `cbor:"ignores,omitempty"`

	Engine string `cbor:"engine,omitempty"`
	Format string `cbor:"format,omitempty"`
	Latex  bool   `cbor:"latex,omitempty"`

	Out   string `cbor:"out,omitempty"`
	Style string `cbor:"style,omitempty"`
}

// encode captures one action as a record.
func encode(a action.Action) (record, error) {
	rec := record{ID: a.ID(), Kind: string(a.Kind())}
	switch v := a.(type) {
	case *action.FileAction:
		rec.Path = v.Path()
		rec.Checksum = v.Checksum()
	case *action.TexBibAction:
		rec.Path = v.Path()
	case *action.TexCompileAction:
		rec.Path = v.Path()
		rec.Engine = v.Engine()
		rec.Format = v.Format()
		rec.Latex = v.Latex()
	case *action.TexIndexAction:
		rec.Path = v.Path()
		rec.Out = v.Out()
		rec.Style = v.Style()
	case *action.CommandAction:
		rec.Argv = v.Argv()
		rec.Ignores = v.Ignores()
	default:
		return record{}, fmt.Errorf("unknown action type %T", a)
	}
	return rec, nil
}

// decode rebuilds an action from a record. The identity of the rebuilt
// action must match the stored one; a mismatch means the identity scheme
// changed and the record is stale.
func decode(rec record) (action.Action, error) {
	var a action.Action
	var err error
	switch action.Kind(rec.Kind) {
	case action.KindFile:
		a = action.RestoreFileAction(rec.Path, rec.Checksum)
	case action.KindTexBib:
		a = action.NewTexBibAction(rec.Path)
	case action.KindTexCompile:
		a, err = action.NewTexCompileAction(rec.Path, rec.Engine, rec.Format, rec.Latex)
	case action.KindTexIndex:
		a = action.NewTexIndexAction(rec.Path, rec.Out, rec.Style)
	case action.KindCommand:
		a, err = action.NewCommandAction(rec.Argv, rec.Ignores)
	default:
		return nil, fmt.Errorf("unknown action kind %q", rec.Kind)
	}
	if err != nil {
		return nil, err
	}
	if a.ID() != rec.ID {
		return nil, fmt.Errorf("identity mismatch: stored %q, rebuilt %q", rec.ID, a.ID())
	}
	return a, nil
}
