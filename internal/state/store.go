package state

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"

	"github.com/vk/texforge/internal/ctxlog"
	"github.com/vk/texforge/internal/graph"
)

// encMode encodes snapshots with Core Deterministic Encoding (RFC 8949
// §4.2): sorted map keys, smallest integer encoding. The same graph always
// produces identical bytes, so save→load→save round-trips exactly.
var encMode cbor.EncMode

// decMode accepts standard CBOR; unknown fields are ignored for forward
// compatibility.
var decMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("state: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("state: CBOR decoder initialization failed: " + err.Error())
	}
}

// Store reads and writes graph snapshots at a fixed path.
type Store struct {
	path string
}

// NewStore creates a store for the given state file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load deserializes the persisted graph. It returns (nil, nil) — cold
// start — when the file is absent, unreadable, incompatible, or corrupt;
// load never fails a run. Restored actions are clean regardless of the
// state they were saved in.
func (s *Store) Load(ctx context.Context) (*graph.Graph, error) {
	logger := ctxlog.FromContext(ctx)

	raw, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("state file unreadable, starting cold", "path", s.path, "error", err)
		}
		return nil, nil
	}

	snap, err := decodeSnapshot(raw)
	if err != nil {
		logger.Warn("discarding persisted state, starting cold", "path", s.path, "reason", err)
		return nil, nil
	}

	g := graph.New()
	for _, rec := range snap.Actions {
		a, err := decode(rec)
		if err != nil {
			// Stale or unknown records are dropped; discovery re-creates
			// whatever is still relevant.
			logger.Warn("dropping persisted action", "id", rec.ID, "reason", err)
			continue
		}
		g.Add(a)
	}
	for from, tos := range snap.Edges {
		for _, to := range tos {
			if err := g.AddEdge(from, to); err != nil {
				logger.Debug("dropping persisted edge", "from", from, "to", to, "reason", err)
			}
		}
	}

	logger.Info("state restored", "path", s.path, "actions", g.Len())
	return g, nil
}

// Save serializes the graph and replaces the state file atomically: the
// snapshot is written to a temporary file in the same directory, synced,
// and renamed over the old state, so a crash never leaves a half-written
// file.
func (s *Store) Save(ctx context.Context, g *graph.Graph) error {
	logger := ctxlog.FromContext(ctx)

	snap := snapshot{
		Version: snapshotVersion,
		Edges:   g.Edges(),
	}
	for _, a := range g.Actions() {
		rec, err := encode(a)
		if err != nil {
			return fmt.Errorf("encoding action %s: %w", a.ID(), err)
		}
		snap.Actions = append(snap.Actions, rec)
	}

	raw, err := encodeSnapshot(snap)
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temporary state file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("writing state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing state: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("setting state permissions: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replacing state file: %w", err)
	}

	logger.Debug("state saved", "path", s.path, "actions", g.Len(), "bytes", len(raw))
	return nil
}

// encodeSnapshot frames the CBOR snapshot in zstd.
func encodeSnapshot(snap snapshot) ([]byte, error) {
	payload, err := encMode.Marshal(snap)
	if err != nil {
		return nil, err
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(payload, nil), nil
}

// decodeSnapshot unframes and validates a snapshot.
func decodeSnapshot(raw []byte) (*snapshot, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	payload, err := dec.DecodeAll(raw, nil)
	if err != nil {
		return nil, fmt.Errorf("decompressing: %w", err)
	}
	var snap snapshot
	if err := decMode.Unmarshal(payload, &snap); err != nil {
		return nil, fmt.Errorf("decoding: %w", err)
	}
	if snap.Version != snapshotVersion {
		return nil, fmt.Errorf("incompatible state version %d (want %d)", snap.Version, snapshotVersion)
	}
	return &snap, nil
}

// Path returns the state file location.
func (s *Store) Path() string { return s.path }
