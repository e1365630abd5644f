package main

import (
	"context"
	"fmt"
	"log/slog"

	"predictpool/internal/custody"
	"predictpool/internal/engine"
	"predictpool/internal/store"
)

// recoverLedger brings a restored ledger forward to the market documents.
// Market documents are saved inside each engine commit and the ledger only
// after the command, so a market may be exactly one batch ahead; that batch
// is replayed from its journal. Any other mismatch is an error. It returns
// the number of replayed batches.
func recoverLedger(ctx context.Context, eng *engine.Engine, ledger *custody.Ledger, applied map[string]uint64, logger *slog.Logger) (int, error) {
	replayed := 0
	for _, m := range eng.Markets() {
		st, err := eng.Market(m.ID)
		if err != nil {
			return replayed, err
		}
		have := applied[m.ID]
		switch {
		case st.Seq == have:
		case st.Seq == have+1:
			if err := ledger.Execute(ctx, st.LastBatch); err != nil {
				return replayed, fmt.Errorf("replay batch %d of market %s: %w", st.Seq, m.ID, err)
			}
			logger.Warn("replayed market batch missing from ledger", "market", m.ID, "seq", st.Seq, "legs", len(st.LastBatch))
			replayed++
		default:
			return replayed, fmt.Errorf("ledger at batch %d but market %s at batch %d", have, m.ID, st.Seq)
		}
	}
	return replayed, nil
}

// ledgerState snapshots the ledger along with the batch each market is at.
func ledgerState(eng *engine.Engine, ledger *custody.Ledger) (*store.LedgerState, error) {
	ls := &store.LedgerState{Balances: ledger.Snapshot(), Applied: make(map[string]uint64)}
	for _, m := range eng.Markets() {
		st, err := eng.Market(m.ID)
		if err != nil {
			return nil, err
		}
		if st.Seq > 0 {
			ls.Applied[m.ID] = st.Seq
		}
	}
	return ls, nil
}

func saveLedger(st *store.Store, eng *engine.Engine, ledger *custody.Ledger) error {
	ls, err := ledgerState(eng, ledger)
	if err != nil {
		return err
	}
	return st.SaveLedger(ls)
}
