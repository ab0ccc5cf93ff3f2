// Package mergestore reconciles freshly fetched records against the
// persisted market document. A merge never deletes: keys the fetch did not
// see survive untouched, and removal happens only through an explicit Prune
// pass against a canonical reference list.
package mergestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/xZoluGames/skinfetch/internal/engine"
	"github.com/xZoluGames/skinfetch/internal/storage"
)

// DefaultTolerance is the minimum absolute price delta treated as a genuine
// change. Smaller wobble is noise and leaves the stored record alone.
const DefaultTolerance = 0.01

// Config controls document naming and merge behavior.
type Config struct {
	// ObjectName is the storage key of the merged document.
	ObjectName string
	// Tolerance is the minimum price delta that counts as an update.
	// Zero or negative selects DefaultTolerance.
	Tolerance float64
	// Archive keeps a timestamped snapshot copy of the document after each
	// persist, deduplicated by content digest.
	Archive bool
}

// Counts reports what one merge pass did.
type Counts struct {
	Existing int `json:"existing"`
	New      int `json:"new"`
	Updated  int `json:"updated"`
	Skipped  int `json:"skipped"`
	Total    int `json:"total"`
}

// Store merges fetch results into one persisted document.
//
// Merge and Prune serialize on an internal mutex: two concurrent
// load-modify-persist cycles against the same document would race.
type Store struct {
	provider storage.Provider
	hasher   engine.Hasher
	clock    engine.Clock
	logger   *zap.Logger
	cfg      Config

	mu         sync.Mutex
	lastDigest string
}

// New wires a merge store over the given blob provider.
func New(provider storage.Provider, hasher engine.Hasher, clock engine.Clock, logger *zap.Logger, cfg Config) (*Store, error) {
	if provider == nil {
		return nil, fmt.Errorf("mergestore: provider is required")
	}
	if hasher == nil {
		return nil, fmt.Errorf("mergestore: hasher is required")
	}
	if clock == nil {
		return nil, fmt.Errorf("mergestore: clock is required")
	}
	if cfg.ObjectName == "" {
		return nil, fmt.Errorf("mergestore: object name is required")
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = DefaultTolerance
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		provider: provider,
		hasher:   hasher,
		clock:    clock,
		logger:   logger,
		cfg:      cfg,
	}, nil
}

// Load returns the persisted document. A missing object is an empty starting
// state, not an error.
func (s *Store) Load(ctx context.Context) ([]engine.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(ctx)
}

// Merge reconciles fresh records into the persisted document and writes the
// result back. Fresh keys not seen before are inserted; known keys update
// only when the price moved by more than the tolerance; everything else is a
// no-op. Keys absent from fresh stay as they were.
func (s *Store) Merge(ctx context.Context, fresh []engine.Record) (Counts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.loadLocked(ctx)
	if err != nil {
		return Counts{}, err
	}

	byName := make(map[string]engine.Record, len(existing)+len(fresh))
	for _, rec := range existing {
		byName[rec.Name] = rec
	}

	counts := Counts{Existing: len(existing)}
	now := s.clock.Now()
	for _, rec := range fresh {
		if rec.Name == "" {
			// A record without a name has no merge identity.
			continue
		}
		old, ok := byName[rec.Name]
		switch {
		case !ok:
			rec.UpdatedAt = now
			byName[rec.Name] = rec
			counts.New++
		case math.Abs(rec.Price-old.Price) > s.cfg.Tolerance:
			rec.UpdatedAt = now
			byName[rec.Name] = rec
			counts.Updated++
		default:
			counts.Skipped++
		}
	}
	counts.Total = len(byName)

	merged := make([]engine.Record, 0, len(byName))
	for _, rec := range byName {
		merged = append(merged, rec)
	}
	if err := s.persistLocked(ctx, merged); err != nil {
		return Counts{}, err
	}

	s.logger.Info("merged fetch results",
		zap.String("object", s.cfg.ObjectName),
		zap.Int("existing", counts.Existing),
		zap.Int("new", counts.New),
		zap.Int("updated", counts.Updated),
		zap.Int("skipped", counts.Skipped),
		zap.Int("total", counts.Total),
	)
	return counts, nil
}

// Prune removes keys absent from the canonical reference list. It is the
// only path that deletes records. An empty reference list is refused: it
// almost always means the reference failed to load, not an empty market.
func (s *Store) Prune(ctx context.Context, reference []string) (int, error) {
	if len(reference) == 0 {
		return 0, fmt.Errorf("mergestore: refusing to prune against an empty reference list")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.loadLocked(ctx)
	if err != nil {
		return 0, err
	}

	keep := make(map[string]struct{}, len(reference))
	for _, name := range reference {
		keep[name] = struct{}{}
	}

	kept := make([]engine.Record, 0, len(existing))
	removed := 0
	for _, rec := range existing {
		if _, ok := keep[rec.Name]; ok {
			kept = append(kept, rec)
		} else {
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}

	if err := s.persistLocked(ctx, kept); err != nil {
		return 0, err
	}
	s.logger.Info("pruned unreferenced records",
		zap.String("object", s.cfg.ObjectName),
		zap.Int("removed", removed),
		zap.Int("kept", len(kept)),
	)
	return removed, nil
}

func (s *Store) loadLocked(ctx context.Context) ([]engine.Record, error) {
	data, err := s.provider.Load(ctx, s.cfg.ObjectName)
	if errors.Is(err, storage.ErrNotFound) {
		s.lastDigest = ""
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load document %s: %w", s.cfg.ObjectName, err)
	}
	var records []engine.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode document %s: %w", s.cfg.ObjectName, err)
	}
	// Seed the dedupe digest so an idempotent re-merge after a restart does
	// not archive an identical copy.
	if digest, err := s.hasher.Hash(data); err == nil {
		s.lastDigest = digest
	}
	return records, nil
}

// persistLocked writes the document as a name-ordered list and archives a
// snapshot copy unless the bytes match the previous persist.
func (s *Store) persistLocked(ctx context.Context, records []engine.Record) error {
	sort.Slice(records, func(i, j int) bool { return records[i].Name < records[j].Name })

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode document %s: %w", s.cfg.ObjectName, err)
	}
	if err := s.provider.Save(ctx, s.cfg.ObjectName, data); err != nil {
		return fmt.Errorf("persist document %s: %w", s.cfg.ObjectName, err)
	}

	digest, err := s.hasher.Hash(data)
	if err != nil {
		s.logger.Warn("document digest failed", zap.Error(err))
		return nil
	}
	unchanged := digest == s.lastDigest
	s.lastDigest = digest
	if !s.cfg.Archive || unchanged {
		return nil
	}

	name := fmt.Sprintf("archive/%s-%s.json", s.clock.Now().UTC().Format("20060102T150405Z"), digest[:12])
	if err := s.provider.Save(ctx, name, data); err != nil {
		// The main document persisted; a lost snapshot copy is not fatal.
		s.logger.Warn("archive snapshot failed", zap.String("object", name), zap.Error(err))
		return nil
	}
	s.logger.Debug("archived document snapshot", zap.String("object", name))
	return nil
}
