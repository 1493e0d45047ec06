package txn_test

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/fairyhunter13/maelstrom-txn/internal/domain"
)

// fakeKV is an in-memory stand-in for the linearizable KV service. It
// records operation order and can be primed to lose the next CAS.
type fakeKV struct {
	store   map[string]json.RawMessage
	reads   []string
	writes  []string
	casKeys []string
	failCAS *domain.RPCError
}

func newFakeKV() *fakeKV {
	return &fakeKV{store: map[string]json.RawMessage{}}
}

func (f *fakeKV) seed(key, value string) {
	f.store[key] = json.RawMessage(value)
}

func (f *fakeKV) ReadInto(_ domain.Context, key string, out any) error {
	f.reads = append(f.reads, key)
	raw, ok := f.store[key]
	if !ok {
		return fmt.Errorf("op=fakekv.Read key=%s: %w", key, &domain.RPCError{Code: domain.CodeKeyDoesNotExist, Text: "key does not exist"})
	}
	return json.Unmarshal(raw, out)
}

func (f *fakeKV) Write(_ domain.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	f.writes = append(f.writes, key)
	f.store[key] = raw
	return nil
}

func (f *fakeKV) CAS(_ domain.Context, key string, from, to any, createIfNotExists bool) error {
	f.casKeys = append(f.casKeys, key)
	if f.failCAS != nil {
		err := f.failCAS
		f.failCAS = nil
		return fmt.Errorf("op=fakekv.CAS key=%s: %w", key, err)
	}
	rawFrom, err := json.Marshal(from)
	if err != nil {
		return err
	}
	rawTo, err := json.Marshal(to)
	if err != nil {
		return err
	}
	cur, ok := f.store[key]
	if !ok {
		if !createIfNotExists {
			return fmt.Errorf("op=fakekv.CAS key=%s: %w", key, &domain.RPCError{Code: domain.CodeKeyDoesNotExist, Text: "key does not exist"})
		}
		f.store[key] = rawTo
		return nil
	}
	if !jsonEqual(cur, rawFrom) {
		return fmt.Errorf("op=fakekv.CAS key=%s: %w", key, &domain.RPCError{Code: domain.CodePreconditionFailed, Text: "precondition failed"})
	}
	f.store[key] = rawTo
	return nil
}

func jsonEqual(a, b json.RawMessage) bool {
	var av, bv any
	if err := json.Unmarshal(a, &av); err != nil {
		return false
	}
	if err := json.Unmarshal(b, &bv); err != nil {
		return false
	}
	return reflect.DeepEqual(av, bv)
}
