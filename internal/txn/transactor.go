// Package txn executes client transactions against the linearizable KV
// service under per-transaction snapshot isolation.
//
// All durable state hangs off a single mutable key, the root: a mapping
// from partition index to partition id. A partition maps keys to chunk ids;
// a chunk holds one key's list. Chunks and partitions are written once under
// fresh ids, so a CAS on the root validates the entire observed state in one
// atomic step.
package txn

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/maelstrom-txn/internal/domain"
	"github.com/fairyhunter13/maelstrom-txn/internal/observability"
)

// rootKey is the only mutable key in the KV service.
const rootKey = "ROOT"

// root maps partition index to the current partition id.
type root map[uint64]string

// partition maps keys within one partition index to their chunk ids.
type partition map[uint64]string

// Transactor turns a sequence of read/append queries into chunk and
// partition writes capped by a root CAS.
type Transactor struct {
	kv    domain.KV
	ids   idGen
	width uint64
	log   *slog.Logger
}

// New builds a Transactor. width is the number of consecutive keys sharing
// one partition.
func New(kv domain.KV, ident Identity, width uint64, log *slog.Logger) *Transactor {
	return &Transactor{kv: kv, ids: idGen{ident: ident}, width: width, log: log}
}

// Transact executes ops atomically. On success it returns the same ops with
// every read populated from the working snapshot. A lost root CAS surfaces
// as an error matching *domain.RPCError for the caller to relay; every other
// failure wraps domain.ErrProtocol and is fatal.
func (t *Transactor) Transact(ctx domain.Context, ops []domain.Query) ([]domain.Query, error) {
	start := time.Now()
	log := t.log.With(slog.String("txn_id", ulid.Make().String()))
	tracer := otel.Tracer("txn")
	ctx, span := tracer.Start(ctx, "txn.Transact")
	defer span.End()
	span.SetAttributes(attribute.Int("txn.ops", len(ops)))

	keys := map[uint64]struct{}{}
	for _, q := range ops {
		keys[q.Key] = struct{}{}
	}
	log.Debug("transaction started", slog.Int("ops", len(ops)), slog.Int("keys", len(keys)))

	cur, err := t.loadRoot(ctx)
	if err != nil {
		return nil, err
	}
	parts, err := t.loadPartitions(ctx, cur, keys)
	if err != nil {
		return nil, err
	}
	snapshot, err := t.loadChunks(ctx, parts, keys)
	if err != nil {
		return nil, err
	}

	result, written, err := apply(ops, snapshot)
	if err != nil {
		return nil, err
	}
	if len(written) == 0 {
		// Read-only: the snapshot is the answer, nothing to persist.
		observability.TxnsTotal.WithLabelValues(observability.OutcomeCommitted).Inc()
		observability.TxnDuration.Observe(time.Since(start).Seconds())
		span.SetAttributes(attribute.String("txn.outcome", "read_only"))
		return result, nil
	}

	chunkIDs, err := t.writeChunks(ctx, snapshot, written)
	if err != nil {
		return nil, err
	}
	next, err := t.writePartitions(ctx, cur, parts, chunkIDs)
	if err != nil {
		return nil, err
	}

	if err := t.kv.CAS(ctx, rootKey, cur, next, true); err != nil {
		var rpcErr *domain.RPCError
		if errors.As(err, &rpcErr) {
			observability.TxnsTotal.WithLabelValues(observability.OutcomeAborted).Inc()
			span.SetAttributes(attribute.String("txn.outcome", "aborted"))
			log.Info("root cas lost", slog.Int("code", rpcErr.Code))
			return nil, fmt.Errorf("op=txn.casRoot: %w", err)
		}
		return nil, fmt.Errorf("op=txn.casRoot: %w: %v", domain.ErrProtocol, err)
	}
	observability.TxnsTotal.WithLabelValues(observability.OutcomeCommitted).Inc()
	observability.TxnDuration.Observe(time.Since(start).Seconds())
	span.SetAttributes(attribute.String("txn.outcome", "committed"))
	log.Debug("transaction committed",
		slog.Int("chunks_written", len(chunkIDs)),
		slog.Duration("elapsed", time.Since(start)))
	return result, nil
}

// loadRoot reads the root mapping; an absent root is the empty mapping.
func (t *Transactor) loadRoot(ctx domain.Context) (root, error) {
	r := root{}
	if err := t.kv.ReadInto(ctx, rootKey, &r); err != nil {
		if errors.Is(err, domain.ErrKeyNotFound) {
			return root{}, nil
		}
		return nil, fmt.Errorf("op=txn.loadRoot: %w: %v", domain.ErrProtocol, err)
	}
	return r, nil
}

// loadPartitions fetches every partition covering the involved keys, one
// read per distinct partition index. Indexes the root does not know yet load
// as empty mappings.
func (t *Transactor) loadPartitions(ctx domain.Context, cur root, keys map[uint64]struct{}) (map[uint64]partition, error) {
	parts := map[uint64]partition{}
	for k := range keys {
		p := k / t.width
		if _, ok := parts[p]; ok {
			continue
		}
		pid, ok := cur[p]
		if !ok {
			parts[p] = partition{}
			continue
		}
		th := NewThunk[partition](t.kv, pid)
		pm, err := th.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("op=txn.loadPartitions: %w: %v", domain.ErrProtocol, err)
		}
		if pm == nil {
			pm = partition{}
		}
		parts[p] = pm
	}
	return parts, nil
}

// loadChunks builds the working snapshot. Presence in the returned map means
// the key exists; a key whose partition has no chunk id stays absent, which
// a read reports as null rather than the empty list.
func (t *Transactor) loadChunks(ctx domain.Context, parts map[uint64]partition, keys map[uint64]struct{}) (map[uint64][]uint64, error) {
	snapshot := map[uint64][]uint64{}
	for k := range keys {
		cid, ok := parts[k/t.width][k]
		if !ok {
			continue
		}
		th := NewThunk[[]uint64](t.kv, cid)
		chunk, err := th.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("op=txn.loadChunks: %w: %v", domain.ErrProtocol, err)
		}
		if chunk == nil {
			chunk = []uint64{}
		}
		snapshot[k] = chunk
	}
	return snapshot, nil
}

// apply runs ops against snapshot, in order, mutating it in place into the
// post-transaction state. Reads observe all prior in-transaction appends. It
// returns the populated result list and the set of keys that received
// appends.
func apply(ops []domain.Query, snapshot map[uint64][]uint64) ([]domain.Query, map[uint64]struct{}, error) {
	result := make([]domain.Query, 0, len(ops))
	written := map[uint64]struct{}{}
	for _, q := range ops {
		switch q.Op {
		case domain.OpRead:
			cur, ok := snapshot[q.Key]
			if !ok {
				result = append(result, domain.Query{Op: domain.OpRead, Key: q.Key})
				continue
			}
			observed := make([]uint64, len(cur))
			copy(observed, cur)
			result = append(result, domain.Query{Op: domain.OpRead, Key: q.Key, Val: domain.ReadValue(observed)})
		case domain.OpAppend:
			snapshot[q.Key] = append(snapshot[q.Key], q.Val.Elem)
			written[q.Key] = struct{}{}
			result = append(result, q)
		default:
			return nil, nil, fmt.Errorf("op=txn.apply: %w: operation %q", domain.ErrProtocol, q.Op)
		}
	}
	return result, written, nil
}

// writeChunks persists the post-transaction list of every appended key under
// a fresh chunk id. Keys are walked in sorted order so id assignment is
// deterministic for a given transaction.
func (t *Transactor) writeChunks(ctx domain.Context, state map[uint64][]uint64, written map[uint64]struct{}) (map[uint64]string, error) {
	chunkIDs := map[uint64]string{}
	for _, k := range sortedKeys(written) {
		th := NewDirtyThunk(t.kv, t.ids.chunkID(), state[k])
		if err := th.Save(ctx); err != nil {
			return nil, fmt.Errorf("op=txn.writeChunks: %w: %v", domain.ErrProtocol, err)
		}
		observability.KVWritesTotal.WithLabelValues("chunk").Inc()
		chunkIDs[k] = th.ID()
	}
	return chunkIDs, nil
}

// writePartitions persists one new partition per touched partition index and
// returns the next root. Every new partition id must be durable before the
// root CAS may reference it.
func (t *Transactor) writePartitions(ctx domain.Context, cur root, parts map[uint64]partition, chunkIDs map[uint64]string) (root, error) {
	updated := map[uint64]partition{}
	for k, cid := range chunkIDs {
		p := k / t.width
		pm, ok := updated[p]
		if !ok {
			pm = maps.Clone(parts[p])
			if pm == nil {
				pm = partition{}
			}
			updated[p] = pm
		}
		pm[k] = cid
	}
	next := maps.Clone(cur)
	for _, p := range sortedKeys(updated) {
		th := NewDirtyThunk(t.kv, t.ids.partitionID(p), updated[p])
		if err := th.Save(ctx); err != nil {
			return nil, fmt.Errorf("op=txn.writePartitions: %w: %v", domain.ErrProtocol, err)
		}
		observability.KVWritesTotal.WithLabelValues("partition").Inc()
		next[p] = th.ID()
	}
	return next, nil
}

// sortedKeys returns the keys of m in increasing order.
func sortedKeys[V any](m map[uint64]V) []uint64 {
	ks := slices.Collect(maps.Keys(m))
	slices.Sort(ks)
	return ks
}
