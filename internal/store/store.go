// Package store provides crash-safe persistence of engine state using JSON
// files.
//
// Each market is stored as a separate document: market_<id>.json, holding the
// market, its positions and its optional maker. The fee collector and the
// custody ledger each live in their own file. Writes use atomic file
// replacement (write to .tmp, then rename) so a crash mid-save never leaves a
// partial document behind.
//
// A market document records the last transfer batch committed with it and
// that batch's sequence number. The ledger file records, per market, the
// sequence it already reflects, so a ledger that missed the final save can be
// brought forward by replaying LastBatch.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"predictpool/internal/custody"
	"predictpool/internal/market"
	"predictpool/internal/settlement"
	"predictpool/internal/strategy"
	"predictpool/pkg/types"
)

const (
	marketPrefix  = "market_"
	collectorFile = "collector.json"
	ledgerFile    = "ledger.json"
)

// MarketState is the unit of persistence for one market.
type MarketState struct {
	Market    *market.Market              `json:"market"`
	Positions map[string]*market.Position `json:"positions"` // keyed by owner hex
	Maker     *strategy.MarketMaker       `json:"maker,omitempty"`

	KillUntil int64            `json:"kill_until,omitempty"` // risk cooldown end, unix seconds
	Seq       uint64           `json:"seq,omitempty"`        // bumped on every commit that moves collateral
	LastBatch []types.Transfer `json:"last_batch,omitempty"` // transfers of commit Seq
}

// Clone returns a deep copy safe to mutate.
func (s *MarketState) Clone() *MarketState {
	out := &MarketState{
		Market:    s.Market.Clone(),
		Positions: make(map[string]*market.Position, len(s.Positions)),
		KillUntil: s.KillUntil,
		Seq:       s.Seq,
		LastBatch: append([]types.Transfer(nil), s.LastBatch...),
	}
	for k, p := range s.Positions {
		out.Positions[k] = p.Clone()
	}
	if s.Maker != nil {
		out.Maker = s.Maker.Clone()
	}
	return out
}

// Store persists engine state to JSON files in a designated directory.
// All operations are mutex-protected to prevent concurrent file corruption.
type Store struct {
	dir string
	mu  sync.Mutex
}

// Open creates a store backed by the given directory.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Close is a no-op for file-based storage.
func (s *Store) Close() error {
	return nil
}

// SaveMarket atomically persists one market document.
func (s *Store) SaveMarket(st *MarketState) error {
	if st == nil || st.Market == nil || st.Market.ID == "" {
		return fmt.Errorf("save market: empty state")
	}
	return s.write(marketPrefix+st.Market.ID+".json", st)
}

// LoadMarket restores one market. Returns nil, nil if it was never saved.
func (s *Store) LoadMarket(id string) (*MarketState, error) {
	var st MarketState
	ok, err := s.read(marketPrefix+id+".json", &st)
	if err != nil || !ok {
		return nil, err
	}
	normalize(&st)
	return &st, nil
}

// LoadMarkets restores every saved market, ordered by id.
func (s *Store) LoadMarkets() ([]*MarketState, error) {
	s.mu.Lock()
	entries, err := os.ReadDir(s.dir)
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("list store dir: %w", err)
	}

	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, marketPrefix) || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(strings.TrimPrefix(name, marketPrefix), ".json"))
	}
	sort.Strings(ids)

	out := make([]*MarketState, 0, len(ids))
	for _, id := range ids {
		st, err := s.LoadMarket(id)
		if err != nil {
			return nil, err
		}
		if st != nil {
			out = append(out, st)
		}
	}
	return out, nil
}

// SaveCollector persists the fee collector.
func (s *Store) SaveCollector(c *settlement.FeeCollector) error {
	return s.write(collectorFile, c)
}

// LoadCollector returns nil, nil if no collector was saved.
func (s *Store) LoadCollector() (*settlement.FeeCollector, error) {
	var c settlement.FeeCollector
	ok, err := s.read(collectorFile, &c)
	if err != nil || !ok {
		return nil, err
	}
	return &c, nil
}

// LedgerState is the persisted custody ledger. Applied maps market id to the
// Seq of the last market batch reflected in Balances.
type LedgerState struct {
	Balances custody.Balances `json:"balances"`
	Applied  map[string]uint64 `json:"applied"`
}

// SaveLedger persists custody balances.
func (s *Store) SaveLedger(l *LedgerState) error {
	return s.write(ledgerFile, l)
}

// LoadLedger returns an empty ledger if none was saved.
func (s *Store) LoadLedger() (*LedgerState, error) {
	var l LedgerState
	if _, err := s.read(ledgerFile, &l); err != nil {
		return nil, err
	}
	if l.Balances == nil {
		l.Balances = make(custody.Balances)
	}
	if l.Applied == nil {
		l.Applied = make(map[string]uint64)
	}
	return &l, nil
}

func (s *Store) write(name string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}

	path := filepath.Join(s.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return os.Rename(tmp, path)
}

func (s *Store) read(name string, v any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("unmarshal %s: %w", name, err)
	}
	return true, nil
}

func normalize(st *MarketState) {
	if st.Positions == nil {
		st.Positions = make(map[string]*market.Position)
	}
}
