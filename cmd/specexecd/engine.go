package main

import (
	"context"
	"sync"

	"github.com/sdhost/h-store/executor"
	"github.com/sdhost/h-store/txn"
)

// inMemoryEngine is a minimal stand-in for the real storage/anti-cache
// engine, which is an out-of-scope external collaborator. It exists only
// so specexecd has something to dispatch fragments to when run without a
// real engine wired in; a production deployment replaces this with a
// proper storage backend behind the same executor.Engine interface.
type inMemoryEngine struct {
	mu     sync.Mutex
	tables map[string][]byte
}

func newInMemoryEngine() *inMemoryEngine {
	return &inMemoryEngine{tables: make(map[string][]byte)}
}

// ExecuteFragment is a stand-in: it has no schema knowledge of its own, so
// it reports no touched tables. A real storage backend knows which tables
// each statement reaches and reports them here instead.
func (e *inMemoryEngine) ExecuteFragment(ctx context.Context, t *txn.Transaction, frag txn.Fragment) (executor.FragmentResult, error) {
	return executor.FragmentResult{Payload: frag.Payload}, nil
}

func (e *inMemoryEngine) LoadTable(ctx context.Context, tableName string, data []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tables[tableName] = data
	return nil
}

func (e *inMemoryEngine) EvictBlock(ctx context.Context, tableName string, bytesToEvict int64) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	data, ok := e.tables[tableName]
	if !ok {
		return 0, nil
	}
	evicted := int64(len(data))
	if evicted > bytesToEvict {
		evicted = bytesToEvict
	}
	return evicted, nil
}
