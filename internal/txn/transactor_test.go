package txn_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/maelstrom-txn/internal/domain"
	"github.com/fairyhunter13/maelstrom-txn/internal/txn"
)

type fakeIdent string

func (f fakeIdent) ID() string { return string(f) }

func newTransactor(kv *fakeKV, width uint64) *txn.Transactor {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return txn.New(kv, fakeIdent("n0"), width, log)
}

func read(key uint64) domain.Query {
	return domain.Query{Op: domain.OpRead, Key: key}
}

func appendQ(key, elem uint64) domain.Query {
	return domain.Query{Op: domain.OpAppend, Key: key, Val: domain.AppendValue(elem)}
}

func TestTransact_ColdReadReturnsNullAndWritesNothing(t *testing.T) {
	kv := newFakeKV()
	tr := newTransactor(kv, 20)

	result, err := tr.Transact(context.Background(), []domain.Query{read(7)})
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, domain.OpRead, result[0].Op)
	assert.Equal(t, uint64(7), result[0].Key)
	assert.Nil(t, result[0].Val.List)

	assert.Empty(t, kv.writes)
	assert.Empty(t, kv.casKeys)
}

func TestTransact_SingleAppendCreatesChunkPartitionAndRoot(t *testing.T) {
	kv := newFakeKV()
	tr := newTransactor(kv, 20)

	result, err := tr.Transact(context.Background(), []domain.Query{appendQ(7, 3)})
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, appendQ(7, 3), result[0])

	// One chunk, one partition, one root CAS.
	assert.Equal(t, []string{"n0-1", "part-0-n0-2"}, kv.writes)
	assert.Equal(t, []string{"ROOT"}, kv.casKeys)
	assert.JSONEq(t, `[3]`, string(kv.store["n0-1"]))
	assert.JSONEq(t, `{"7":"n0-1"}`, string(kv.store["part-0-n0-2"]))
	assert.JSONEq(t, `{"0":"part-0-n0-2"}`, string(kv.store["ROOT"]))
}

func TestTransact_ReadYourWritesWithinTxn(t *testing.T) {
	kv := newFakeKV()
	kv.seed("ROOT", `{"0":"part-0-x-1"}`)
	kv.seed("part-0-x-1", `{"7":"c1"}`)
	kv.seed("c1", `[1,2]`)
	tr := newTransactor(kv, 20)

	result, err := tr.Transact(context.Background(), []domain.Query{
		read(7), appendQ(7, 3), read(7),
	})
	require.NoError(t, err)
	require.Len(t, result, 3)

	require.NotNil(t, result[0].Val.List)
	assert.Equal(t, []uint64{1, 2}, *result[0].Val.List)
	assert.Equal(t, appendQ(7, 3), result[1])
	require.NotNil(t, result[2].Val.List)
	assert.Equal(t, []uint64{1, 2, 3}, *result[2].Val.List)

	// The first read observed the pre-append snapshot and stayed that way.
	assert.Equal(t, []uint64{1, 2}, *result[0].Val.List)
}

func TestTransact_CoLocatedKeysShareOnePartitionWrite(t *testing.T) {
	kv := newFakeKV()
	tr := newTransactor(kv, 20)

	_, err := tr.Transact(context.Background(), []domain.Query{
		appendQ(7, 1), appendQ(19, 2),
	})
	require.NoError(t, err)

	// Two chunks, exactly one new partition covering both, one CAS.
	assert.Equal(t, []string{"n0-1", "n0-2", "part-0-n0-3"}, kv.writes)
	assert.Equal(t, []string{"ROOT"}, kv.casKeys)
	assert.JSONEq(t, `{"7":"n0-1","19":"n0-2"}`, string(kv.store["part-0-n0-3"]))
	assert.JSONEq(t, `{"0":"part-0-n0-3"}`, string(kv.store["ROOT"]))
}

func TestTransact_CrossPartitionWrites(t *testing.T) {
	kv := newFakeKV()
	tr := newTransactor(kv, 20)

	_, err := tr.Transact(context.Background(), []domain.Query{
		appendQ(7, 1), appendQ(40, 2),
	})
	require.NoError(t, err)

	// Two chunks, two partitions, both referenced by the one new root.
	assert.Equal(t, []string{"n0-1", "n0-2", "part-0-n0-3", "part-2-n0-4"}, kv.writes)
	assert.Equal(t, []string{"ROOT"}, kv.casKeys)
	assert.JSONEq(t, `{"7":"n0-1"}`, string(kv.store["part-0-n0-3"]))
	assert.JSONEq(t, `{"40":"n0-2"}`, string(kv.store["part-2-n0-4"]))
	assert.JSONEq(t, `{"0":"part-0-n0-3","2":"part-2-n0-4"}`, string(kv.store["ROOT"]))
}

func TestTransact_PreservesUntouchedPartitionEntries(t *testing.T) {
	kv := newFakeKV()
	kv.seed("ROOT", `{"0":"part-0-x-1"}`)
	kv.seed("part-0-x-1", `{"3":"c3","7":"c7"}`)
	kv.seed("c7", `[9]`)
	tr := newTransactor(kv, 20)

	_, err := tr.Transact(context.Background(), []domain.Query{appendQ(7, 10)})
	require.NoError(t, err)

	// The new partition keeps the sibling mapping for key 3.
	assert.JSONEq(t, `{"3":"c3","7":"n0-1"}`, string(kv.store["part-0-n0-2"]))
	assert.JSONEq(t, `{"0":"part-0-n0-2"}`, string(kv.store["ROOT"]))
	assert.JSONEq(t, `[9,10]`, string(kv.store["n0-1"]))
}

func TestTransact_CASConflictAborts(t *testing.T) {
	kv := newFakeKV()
	kv.failCAS = &domain.RPCError{Code: domain.CodePreconditionFailed, Text: "expected {} but had {\"0\":\"p\"}"}
	tr := newTransactor(kv, 20)

	_, err := tr.Transact(context.Background(), []domain.Query{appendQ(7, 3)})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPreconditionFailed)
	var rpcErr *domain.RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, domain.CodePreconditionFailed, rpcErr.Code)

	// The next transaction starts from a fresh root read and commits.
	_, err = tr.Transact(context.Background(), []domain.Query{appendQ(7, 3)})
	require.NoError(t, err)
	assert.Equal(t, []string{"ROOT"}, kv.casKeys[len(kv.casKeys)-1:])
}

func TestTransact_AbsentDistinctFromEmpty(t *testing.T) {
	kv := newFakeKV()
	kv.seed("ROOT", `{"0":"part-0-x-1"}`)
	// Key 5 has a chunk id whose value was never written: reads as empty.
	kv.seed("part-0-x-1", `{"5":"c5"}`)
	tr := newTransactor(kv, 20)

	result, err := tr.Transact(context.Background(), []domain.Query{read(5), read(6)})
	require.NoError(t, err)
	require.Len(t, result, 2)

	require.NotNil(t, result[0].Val.List, "mapped key reads as a list")
	assert.Empty(t, *result[0].Val.List)
	assert.Nil(t, result[1].Val.List, "unmapped key reads as null")
}

func TestTransact_MultipleAppendsOneChunkWrite(t *testing.T) {
	kv := newFakeKV()
	tr := newTransactor(kv, 20)

	_, err := tr.Transact(context.Background(), []domain.Query{
		appendQ(7, 1), appendQ(7, 2), appendQ(7, 3),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"n0-1", "part-0-n0-2"}, kv.writes)
	assert.JSONEq(t, `[1,2,3]`, string(kv.store["n0-1"]))
}

func TestTransact_ReadOnlyTouchingExistingStateDoesNotCAS(t *testing.T) {
	kv := newFakeKV()
	kv.seed("ROOT", `{"0":"part-0-x-1"}`)
	kv.seed("part-0-x-1", `{"7":"c1"}`)
	kv.seed("c1", `[5]`)
	tr := newTransactor(kv, 20)

	result, err := tr.Transact(context.Background(), []domain.Query{read(7)})
	require.NoError(t, err)
	require.NotNil(t, result[0].Val.List)
	assert.Equal(t, []uint64{5}, *result[0].Val.List)
	assert.Empty(t, kv.writes)
	assert.Empty(t, kv.casKeys)
}

func TestTransact_PartitionWidthOne(t *testing.T) {
	kv := newFakeKV()
	tr := newTransactor(kv, 1)

	_, err := tr.Transact(context.Background(), []domain.Query{
		appendQ(0, 1), appendQ(1, 2),
	})
	require.NoError(t, err)

	assert.JSONEq(t, `{"0":"part-0-n0-3","1":"part-1-n0-4"}`, string(kv.store["ROOT"]))
}

func TestTransact_UnknownOpIsFatal(t *testing.T) {
	kv := newFakeKV()
	tr := newTransactor(kv, 20)

	_, err := tr.Transact(context.Background(), []domain.Query{{Op: "delete", Key: 1}})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrProtocol)
	assert.Empty(t, kv.writes)
}

func TestTransact_ChunkIDsNeverReused(t *testing.T) {
	kv := newFakeKV()
	tr := newTransactor(kv, 20)

	for i := range uint64(5) {
		_, err := tr.Transact(context.Background(), []domain.Query{appendQ(7, i)})
		require.NoError(t, err)
	}
	seen := map[string]struct{}{}
	for _, w := range kv.writes {
		_, dup := seen[w]
		require.False(t, dup, "id %s written twice", w)
		seen[w] = struct{}{}
	}
}
