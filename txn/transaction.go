package txn

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"sync"

	"go.uber.org/atomic"

	"github.com/sdhost/h-store/catalog"
	"github.com/sdhost/h-store/estimate"
)

// ClientResponse is the opaque result accumulator handed back to whatever
// submitted the transaction. Client connection management itself is an
// external collaborator; this core only needs somewhere to stash the
// result exactly once.
type ClientResponse struct {
	Status  string
	Payload []byte
}

// Transaction is the shared state container for AbstractTransaction:
// identity, partition set, procedure identity,
// parameters, estimator state, per-partition touched-table bitmaps, a
// result accumulator, and lifecycle state. LocalTransaction and
// RemoteTransaction are thin specializations over the same struct: H-Store's
// AbstractTransaction -> LocalTransaction/RemoteTransaction hierarchy maps
// onto Go as composition rather than subtyping.
type Transaction struct {
	ID             ID
	BasePartition  uint32
	Partitions     map[uint32]bool
	ReadOnly       bool
	Procedure      catalog.ProcedureID
	ProcParams     []interface{}
	EstimatorState estimate.State

	// RestartCounter tracks how many times this transaction has been
	// restarted, whether by an init-queue rejection or a speculative
	// rollback; zero on the fast path where the transaction never
	// contends. ClientResponse does not carry it.
	RestartCounter atomic.Int32

	mu           sync.Mutex
	state        LifecycleState
	touched      map[uint32]*TouchedTables
	responseSet  bool
	response     *ClientResponse

	// Prefetch state, attached by the init callback on successful grant.
	PrefetchRawParams  [][]byte
	PrefetchParams     []interface{}
	PrefetchFragments  []Fragment
}

// Fragment is a unit of work targeting one partition, carried by the
// transaction work RPC.
type Fragment struct {
	PartitionID uint32
	StatementID catalog.StatementID
	Payload     []byte
}

// NewTransaction constructs a Transaction in the INITIALIZING state.
func NewTransaction(id ID, basePartition uint32, partitions map[uint32]bool, proc catalog.ProcedureID, readOnly bool) *Transaction {
	t := &Transaction{
		ID:            id,
		BasePartition: basePartition,
		Partitions:    partitions,
		ReadOnly:      readOnly,
		Procedure:     proc,
		state:         Initializing,
		touched:       make(map[uint32]*TouchedTables),
	}
	for p := range partitions {
		t.touched[p] = NewTouchedTables()
	}
	return t
}

func (t *Transaction) State() LifecycleState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Transaction) SetState(s LifecycleState) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}

// TouchedTables returns the read/write bitmap for partition, lazily
// allocating one if the transaction did not declare that partition
// up-front (can happen for a speculative candidate whose partition set is
// just its single home partition).
func (t *Transaction) TouchedTables(partition uint32) *TouchedTables {
	t.mu.Lock()
	defer t.mu.Unlock()
	tt, ok := t.touched[partition]
	if !ok {
		tt = NewTouchedTables()
		t.touched[partition] = tt
	}
	return tt
}

func (t *Transaction) IsTableReadOrWritten(partition uint32, table catalog.TableID) bool {
	return t.TouchedTables(partition).IsReadOrWritten(table)
}

func (t *Transaction) IsTableWritten(partition uint32, table catalog.TableID) bool {
	return t.TouchedTables(partition).IsWritten(table)
}

// SetResponse emits the transaction's final client response at most once.
// Returns false if a response was already set.
func (t *Transaction) SetResponse(resp *ClientResponse) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.responseSet {
		return false
	}
	t.responseSet = true
	t.response = resp
	return true
}

func (t *Transaction) Response() (*ClientResponse, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.response, t.responseSet
}

// prefetchArgs is the wire envelope for one prefetch query's argument list.
// gob only records dynamic-type information for values reached through a
// declared interface field, so the argument list is wrapped in a struct
// rather than gob-decoded straight into a bare interface{}.
type prefetchArgs struct {
	Values []interface{}
}

func init() {
	// Concrete procedure-parameter types that may appear inside a prefetch
	// query's argument list. gob requires every concrete type reachable
	// through an interface{} field to be registered before it can decode
	// one back out.
	gob.Register(int64(0))
	gob.Register(float64(0))
	gob.Register(string(""))
	gob.Register(bool(false))
	gob.Register([]byte(nil))
}

// SerializePrefetchParams gob-encodes one prefetch query's argument list
// into the blob format DeserializePrefetchParams expects, as carried by
// rpc.PrefetchQuery.SerializedArgs.
func SerializePrefetchParams(values []interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(prefetchArgs{Values: values}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DeserializePrefetchParams decodes each raw prefetch argument set gathered
// from an init request's PrefetchBatch. Each entry is independently
// gob-encoded by the submitting client; a failure on any one entry is
// reported with its index so the caller can attribute the fault.
func DeserializePrefetchParams(raw [][]byte) ([]interface{}, error) {
	params := make([]interface{}, len(raw))
	for i, r := range raw {
		var wire prefetchArgs
		if err := gob.NewDecoder(bytes.NewReader(r)).Decode(&wire); err != nil {
			return nil, fmt.Errorf("prefetch param %d: %w", i, err)
		}
		params[i] = wire.Values
	}
	return params, nil
}

// AttachPrefetchParameters records the deserialized prefetch parameter
// sets on the transaction handle, per TransactionInitQueueCallback's
// unblockTransactionCallback.
func (t *Transaction) AttachPrefetchParameters(params []interface{}) {
	t.mu.Lock()
	t.PrefetchParams = params
	t.mu.Unlock()
}

func (t *Transaction) HasPrefetchQueries() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.PrefetchRawParams) > 0
}

// Reset clears mutable state so the handle can be returned to its pool.
// Only legal after FINISHED/ABORTED and once all callbacks holding a
// reference have released it.
func (t *Transaction) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, tt := range t.touched {
		tt.Clear()
	}
	t.touched = make(map[uint32]*TouchedTables)
	t.responseSet = false
	t.response = nil
	t.state = Initializing
	t.RestartCounter.Store(0)
	t.PrefetchRawParams = nil
	t.PrefetchParams = nil
	t.PrefetchFragments = nil
}

// IsDistributed reports whether this transaction touches more than one
// partition (a "dtxn").
func (t *Transaction) IsDistributed() bool {
	return len(t.Partitions) > 1
}

// LocalTransaction is a transaction created on client submission at this
// site. Kept as a distinct name (a type alias, not a distinct struct) because the
// only difference from RemoteTransaction is provenance, which the site
// layer tracks separately via the init queue entry.
type LocalTransaction = Transaction

// RemoteTransaction is a transaction handle created on receipt of an init
// request from another site.
type RemoteTransaction = Transaction
