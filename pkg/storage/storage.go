package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/vjranagit/tsengine/pkg/types"
)

// ErrNotFound is returned when a series or its provenance does not exist
var ErrNotFound = errors.New("not found")

// Key kinds under a dataset prefix
const (
	kindSeries     = "series"
	kindProvenance = "provenance"
)

// Link ties one derived sample to the source samples it was computed from
type Link struct {
	SampleID  string   `json:"sample_id"`
	SourceIDs []string `json:"source_ids"`
}

// Storage interface defines the contract for signal series storage
type Storage interface {
	// SaveSeries stores a series. A missing series id and missing sample ids are
	// assigned in place, and samples are sorted by begin timestamp.
	SaveSeries(ctx context.Context, datasetID string, series *types.Series) error

	// GetSeries loads a series with its samples sorted by begin timestamp
	GetSeries(ctx context.Context, datasetID, id string) (*types.Series, error)

	// DeleteSeries removes a series and its provenance
	DeleteSeries(ctx context.Context, datasetID, id string) error

	// ListSeries lists series whose properties match every selector
	ListSeries(ctx context.Context, datasetID string, selectors map[string]string) ([]SeriesInfo, error)

	// SaveProvenance records which source samples produced each sample of a derived series
	SaveProvenance(ctx context.Context, datasetID, seriesID string, links []Link) error

	// GetProvenance returns the links saved for a derived series
	GetProvenance(ctx context.Context, datasetID, seriesID string) ([]Link, error)

	// SeriesCount returns the number of live series across all datasets
	SeriesCount() int

	// Close closes the storage
	Close() error
}

// Config holds storage configuration
type Config struct {
	Path             string
	RetentionDays    int
	CompressionLevel int
	EnableWAL        bool
	// InMemory keeps everything in RAM; Path and the WAL are ignored
	InMemory bool
}

// DefaultConfig returns default storage configuration
func DefaultConfig() *Config {
	return &Config{
		Path:             "./data",
		RetentionDays:    0,
		CompressionLevel: 3,
		EnableWAL:        true,
	}
}

// badgerStorage implements Storage using BadgerDB
type badgerStorage struct {
	cfg        *Config
	db         *badger.DB
	index      *Index
	compressor *Compressor
	wal        *WAL
	now        func() time.Time
	mu         sync.RWMutex
}

// NewStorage creates a new storage instance
func NewStorage(cfg *Config) (Storage, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	opts := badger.DefaultOptions(filepath.Join(cfg.Path, "badger"))
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = nil // Disable BadgerDB logging

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %w", err)
	}

	compressor, err := NewCompressor(cfg.CompressionLevel)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create compressor: %w", err)
	}

	s := &badgerStorage{
		cfg:        cfg,
		db:         db,
		index:      NewIndex(),
		compressor: compressor,
		now:        time.Now,
	}

	if err := s.loadIndex(); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to load index: %w", err)
	}

	if cfg.EnableWAL && !cfg.InMemory {
		if err := ReplayWAL(cfg.Path, s.apply); err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to replay WAL: %w", err)
		}
		if s.wal, err = NewWAL(cfg.Path); err != nil {
			s.Close()
			return nil, err
		}
	}

	return s, nil
}

// SaveSeries implements Storage.SaveSeries
func (s *badgerStorage) SaveSeries(ctx context.Context, datasetID string, series *types.Series) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkKeyPart("dataset id", datasetID); err != nil {
		return err
	}
	if err := prepareSeries(series); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.log(&WALEntry{Op: opSaveSeries, DatasetID: datasetID, Series: series}); err != nil {
		return err
	}
	return s.writeSeries(datasetID, series)
}

// prepareSeries assigns missing ids, orders samples and checks mode consistency
func prepareSeries(series *types.Series) error {
	if series.ID == "" {
		series.ID = uuid.NewString()
	}
	if err := checkKeyPart("series id", series.ID); err != nil {
		return err
	}
	if err := series.Validate(); err != nil {
		return fmt.Errorf("invalid series: %w", err)
	}

	series.SortSamples()
	for i := range series.Samples {
		if series.Samples[i].ID == "" {
			series.Samples[i].ID = fmt.Sprintf("%s/%d", series.ID, i)
		}
	}
	return nil
}

// writeSeries writes the block and updates the index (must hold lock)
func (s *badgerStorage) writeSeries(datasetID string, series *types.Series) error {
	block, err := s.compressor.EncodeSeries(series)
	if err != nil {
		return err
	}

	key := generateKey(datasetID, kindSeries, series.ID)
	e := s.entry(key, s.compressor.Compress(block))
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(e)
	}); err != nil {
		return fmt.Errorf("failed to write series: %w", err)
	}

	info := infoFor(series)
	info.ExpiresAt = e.ExpiresAt
	s.index.AddSeries(datasetID, info)
	return nil
}

// entry builds a Badger entry expiring after the retention period, if any
func (s *badgerStorage) entry(key, value []byte) *badger.Entry {
	e := badger.NewEntry(key, value)
	if s.cfg.RetentionDays > 0 {
		ttl := time.Duration(s.cfg.RetentionDays) * 24 * time.Hour
		e.ExpiresAt = uint64(s.now().Add(ttl).Unix())
	}
	return e
}

// lookup returns the index entry of a series that has not expired
func (s *badgerStorage) lookup(datasetID, id string) (*SeriesInfo, bool) {
	meta, ok := s.index.GetSeries(datasetID, id)
	if !ok || meta.expired(s.now()) {
		return nil, false
	}
	return meta, true
}

// GetSeries implements Storage.GetSeries
func (s *badgerStorage) GetSeries(ctx context.Context, datasetID, id string) (*types.Series, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := s.read(generateKey(datasetID, kindSeries, id))
	if err != nil {
		return nil, fmt.Errorf("series %s: %w", id, err)
	}
	block, err := s.compressor.Decompress(data)
	if err != nil {
		return nil, fmt.Errorf("series %s: %w", id, err)
	}
	return s.compressor.DecodeSeries(id, block)
}

// read returns a copy of the value stored under key
func (s *badgerStorage) read(key []byte) ([]byte, error) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	return value, err
}

// DeleteSeries implements Storage.DeleteSeries
func (s *badgerStorage) DeleteSeries(ctx context.Context, datasetID, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.lookup(datasetID, id); !ok {
		return fmt.Errorf("series %s: %w", id, ErrNotFound)
	}
	if err := s.log(&WALEntry{Op: opDeleteSeries, DatasetID: datasetID, SeriesID: id}); err != nil {
		return err
	}
	return s.deleteSeries(datasetID, id)
}

func (s *badgerStorage) deleteSeries(datasetID, id string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(generateKey(datasetID, kindSeries, id)); err != nil {
			return err
		}
		return txn.Delete(generateKey(datasetID, kindProvenance, id))
	})
	if err != nil {
		return fmt.Errorf("failed to delete series: %w", err)
	}
	s.index.RemoveSeries(datasetID, id)
	return nil
}

// ListSeries implements Storage.ListSeries. Series whose retention has run
// out are dropped from the index instead of being listed.
func (s *badgerStorage) ListSeries(ctx context.Context, datasetID string, selectors map[string]string) ([]SeriesInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	ids := s.index.FindSeries(datasetID, selectors)
	out := make([]SeriesInfo, 0, len(ids))
	for _, id := range ids {
		meta, ok := s.index.GetSeries(datasetID, id)
		if !ok {
			continue
		}
		if meta.expired(now) {
			s.index.RemoveSeries(datasetID, id)
			continue
		}
		out = append(out, *meta)
	}
	return out, nil
}

// SeriesCount implements Storage.SeriesCount
func (s *badgerStorage) SeriesCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.index.RemoveExpired(s.now())
	return s.index.SeriesCount()
}

// SaveProvenance implements Storage.SaveProvenance
func (s *badgerStorage) SaveProvenance(ctx context.Context, datasetID, seriesID string, links []Link) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.lookup(datasetID, seriesID); !ok {
		return fmt.Errorf("series %s: %w", seriesID, ErrNotFound)
	}
	if err := s.log(&WALEntry{Op: opSaveProvenance, DatasetID: datasetID, SeriesID: seriesID, Links: links}); err != nil {
		return err
	}
	return s.writeProvenance(datasetID, seriesID, links)
}

func (s *badgerStorage) writeProvenance(datasetID, seriesID string, links []Link) error {
	data, err := json.Marshal(links)
	if err != nil {
		return fmt.Errorf("failed to marshal provenance: %w", err)
	}

	key := generateKey(datasetID, kindProvenance, seriesID)
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(s.entry(key, s.compressor.Compress(data)))
	})
}

// GetProvenance implements Storage.GetProvenance
func (s *badgerStorage) GetProvenance(ctx context.Context, datasetID, seriesID string) ([]Link, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := s.read(generateKey(datasetID, kindProvenance, seriesID))
	if err != nil {
		return nil, fmt.Errorf("provenance of %s: %w", seriesID, err)
	}
	raw, err := s.compressor.Decompress(data)
	if err != nil {
		return nil, err
	}

	var links []Link
	if err := json.Unmarshal(raw, &links); err != nil {
		return nil, fmt.Errorf("failed to unmarshal provenance: %w", err)
	}
	return links, nil
}

// log appends to the WAL when it is enabled (must hold lock)
func (s *badgerStorage) log(entry *WALEntry) error {
	if s.wal == nil {
		return nil
	}
	if err := s.wal.Append(entry); err != nil {
		return fmt.Errorf("WAL append failed: %w", err)
	}
	return nil
}

// apply re-executes a WAL entry during recovery
func (s *badgerStorage) apply(entry *WALEntry) error {
	switch entry.Op {
	case opSaveSeries:
		if entry.Series == nil {
			return fmt.Errorf("save entry without series")
		}
		return s.writeSeries(entry.DatasetID, entry.Series)
	case opDeleteSeries:
		if _, ok := s.index.GetSeries(entry.DatasetID, entry.SeriesID); !ok {
			return nil
		}
		return s.deleteSeries(entry.DatasetID, entry.SeriesID)
	case opSaveProvenance:
		return s.writeProvenance(entry.DatasetID, entry.SeriesID, entry.Links)
	}
	return fmt.Errorf("unknown WAL op %q", entry.Op)
}

// loadIndex rebuilds the in-memory index from every stored series
func (s *badgerStorage) loadIndex() error {
	return s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			datasetID, kind, id, ok := parseKey(item.Key())
			if !ok || kind != kindSeries {
				continue
			}

			data, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			block, err := s.compressor.Decompress(data)
			if err != nil {
				return fmt.Errorf("series %s: %w", id, err)
			}
			series, err := s.compressor.DecodeSeries(id, block)
			if err != nil {
				return fmt.Errorf("series %s: %w", id, err)
			}
			info := infoFor(series)
			info.ExpiresAt = item.ExpiresAt()
			s.index.AddSeries(datasetID, info)
		}
		return nil
	})
}

// Close implements Storage.Close
func (s *badgerStorage) Close() error {
	var errs []error
	if s.wal != nil {
		if err := s.wal.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			errs = append(errs, err)
		} else if s.wal != nil && len(errs) == 0 {
			// Everything in the log is now in Badger
			if err := os.Remove(s.wal.file.Name()); err != nil && !os.IsNotExist(err) {
				errs = append(errs, err)
			}
		}
	}
	if s.compressor != nil {
		s.compressor.Close()
	}
	return errors.Join(errs...)
}

// generateKey generates a storage key: <dataset>/<kind>/<id>
func generateKey(datasetID, kind, id string) []byte {
	return []byte(datasetID + "/" + kind + "/" + id)
}

func parseKey(key []byte) (datasetID, kind, id string, ok bool) {
	parts := strings.SplitN(string(key), "/", 3)
	if len(parts) != 3 {
		return "", "", "", false
	}
	return parts[0], parts[1], parts[2], true
}

func checkKeyPart(what, v string) error {
	if v == "" {
		return fmt.Errorf("%s is required", what)
	}
	if strings.Contains(v, "/") {
		return fmt.Errorf("%s %q must not contain '/'", what, v)
	}
	return nil
}
