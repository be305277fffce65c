package testutil

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"ardrive-go/internal/ardrive"
	"ardrive-go/internal/gql"
	"ardrive-go/internal/ledger"
)

// ErrInjected is returned by FakeLedger calls that were scripted to fail.
var ErrInjected = errors.New("injected failure")

type fakeTx struct {
	seq      int
	id       string
	owner    string // address
	tags     ledger.Tags
	size     int64
	dataRoot string
	data     []byte
	received map[int64]bool
	height   int64 // 0 while pending
	parent   string
}

func (t *fakeTx) complete() bool {
	return int64(len(t.received)) == int64(ledger.ChunkCount(t.size))
}

// FakeLedger is an in-memory ledger: it accepts transactions and chunks,
// serves bodies and statuses, and answers GraphQL queries over everything it
// has mined. Bundled data items are indexed as transactions of their own.
// Safe for concurrent use.
type FakeLedger struct {
	mu     sync.Mutex
	txs    map[string]*fakeTx
	seq    int
	height int64

	endpointFailures map[string]int // remaining failures; negative means forever
	fetchCalls       map[string]int
	chunkFailures    map[int]int // by chunk index; negative means forever
	chunkPosts       int
	headerPosts      int
	statusErr        error
	hideItems        bool
}

// NewFakeLedger creates an empty ledger at height 1.
func NewFakeLedger() *FakeLedger {
	return &FakeLedger{
		txs:              make(map[string]*fakeTx),
		height:           1,
		endpointFailures: make(map[string]int),
		fetchCalls:       make(map[string]int),
		chunkFailures:    make(map[int]int),
	}
}

// FailEndpoint makes the next n Fetch calls against endpoint fail.
// A negative n fails every call.
func (l *FakeLedger) FailEndpoint(endpoint string, n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.endpointFailures[endpoint] = n
}

// FailChunk makes the next n posts of chunk index fail. A negative n fails every post.
func (l *FakeLedger) FailChunk(index, n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.chunkFailures[index] = n
}

// FailStatus makes GetTransactionStatus return err. Pass nil to clear it.
func (l *FakeLedger) FailStatus(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.statusErr = err
}

// HideBundledItems makes GetData refuse bundled item IDs, like a gateway
// that only serves whole bundle transactions.
func (l *FakeLedger) HideBundledItems(hide bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hideItems = hide
}

// FetchCalls returns the number of Fetch calls made against endpoint.
func (l *FakeLedger) FetchCalls(endpoint string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fetchCalls[endpoint]
}

// ChunkPosts returns the number of accepted chunk posts.
func (l *FakeLedger) ChunkPosts() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.chunkPosts
}

// HeaderPosts returns the number of accepted transaction headers.
func (l *FakeLedger) HeaderPosts() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.headerPosts
}

// Add stores a complete transaction, as if its header and every chunk had been posted.
func (l *FakeLedger) Add(tx *ledger.Transaction) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, err := l.addHeaderLocked(tx)
	if err != nil {
		return err
	}
	t.data = append([]byte(nil), tx.Data...)
	for i := 0; i < ledger.ChunkCount(tx.DataSize); i++ {
		t.received[int64(i)*ledger.ChunkSize] = true
	}
	return l.unbundleLocked(t)
}

// Mine includes every complete pending transaction in a new block and
// returns the new height.
func (l *FakeLedger) Mine() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.height++
	for _, t := range l.txs {
		if t.height == 0 && t.complete() {
			t.height = l.height
		}
	}
	for _, t := range l.txs {
		if t.parent != "" && t.height == 0 {
			if p := l.txs[t.parent]; p != nil && p.height != 0 {
				t.height = p.height
			}
		}
	}
	return l.height
}

// Has reports whether txID (a transaction or a bundled item) is known.
func (l *FakeLedger) Has(txID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.txs[txID]
	return ok
}

func (l *FakeLedger) addHeaderLocked(tx *ledger.Transaction) (*fakeTx, error) {
	if tx.ID == "" {
		return nil, fmt.Errorf("transaction is not signed")
	}
	if t, ok := l.txs[tx.ID]; ok {
		return t, nil
	}
	owner, err := ownerAddress(tx.Owner)
	if err != nil {
		return nil, err
	}
	l.seq++
	t := &fakeTx{
		seq:      l.seq,
		id:       tx.ID,
		owner:    owner,
		tags:     append(ledger.Tags(nil), tx.Tags...),
		size:     tx.DataSize,
		dataRoot: tx.DataRoot,
		data:     make([]byte, tx.DataSize),
		received: make(map[int64]bool),
	}
	l.txs[tx.ID] = t
	return t, nil
}

// unbundleLocked indexes the items of a completed bundle transaction.
// Items that fail verification are left out, as a gateway would.
func (l *FakeLedger) unbundleLocked(t *fakeTx) error {
	if !t.complete() || !ledger.IsBundle(t.tags) {
		return nil
	}
	items, err := ledger.DecodeBundle(t.data)
	if len(items) == 0 && err != nil {
		return fmt.Errorf("unbundling %s: %w", t.id, err)
	}
	for _, item := range items {
		if _, ok := l.txs[item.ID]; ok {
			continue
		}
		owner, err := ownerAddress(item.Owner)
		if err != nil {
			return err
		}
		l.seq++
		l.txs[item.ID] = &fakeTx{
			seq:      l.seq,
			id:       item.ID,
			owner:    owner,
			tags:     append(ledger.Tags(nil), item.Tags...),
			size:     int64(len(item.Data)),
			data:     append([]byte(nil), item.Data...),
			received: fullyReceived(int64(len(item.Data))),
			height:   t.height,
			parent:   t.id,
		}
	}
	return nil
}

func fullyReceived(size int64) map[int64]bool {
	m := make(map[int64]bool)
	for i := 0; i < ledger.ChunkCount(size); i++ {
		m[int64(i)*ledger.ChunkSize] = true
	}
	return m
}

func ownerAddress(owner string) (string, error) {
	pub, err := ledger.B64Decode(owner)
	if err != nil {
		return "", fmt.Errorf("decoding owner: %w", err)
	}
	return ledger.OwnerAddress(pub), nil
}

// Gateway

func (l *FakeLedger) PostTransaction(ctx context.Context, tx *ledger.Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := tx.Verify(); err != nil {
		return fmt.Errorf("rejecting transaction: %w", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	t, err := l.addHeaderLocked(tx)
	if err != nil {
		return err
	}
	l.headerPosts++
	if len(tx.Data) > 0 && int64(len(tx.Data)) == tx.DataSize && !t.complete() {
		copy(t.data, tx.Data)
		t.received = fullyReceived(tx.DataSize)
		return l.unbundleLocked(t)
	}
	return nil
}

func (l *FakeLedger) PostChunk(ctx context.Context, chunk *ledger.Chunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	index := int(chunk.Offset / ledger.ChunkSize)
	if n, ok := l.chunkFailures[index]; ok && n != 0 {
		if n > 0 {
			l.chunkFailures[index] = n - 1
		}
		return fmt.Errorf("chunk %d: %w", index, ErrInjected)
	}
	if err := ledger.VerifyChunk(chunk); err != nil {
		return fmt.Errorf("rejecting chunk: %w", err)
	}
	data := chunk.Data
	if data == nil {
		var err error
		if data, err = ledger.B64Decode(chunk.Encoded); err != nil {
			return fmt.Errorf("decoding chunk: %w", err)
		}
	}

	var target *fakeTx
	for _, t := range l.txs {
		if t.dataRoot == chunk.DataRoot && t.size == chunk.DataSize && !t.received[chunk.Offset] {
			target = t
			break
		}
	}
	if target == nil {
		// Already have it, or the header has not been posted yet.
		for _, t := range l.txs {
			if t.dataRoot == chunk.DataRoot {
				l.chunkPosts++
				return nil
			}
		}
		return fmt.Errorf("no transaction with data root %s", chunk.DataRoot)
	}
	copy(target.data[chunk.Offset:], data)
	target.received[chunk.Offset] = true
	l.chunkPosts++
	return l.unbundleLocked(target)
}

func (l *FakeLedger) GetTransactionStatus(ctx context.Context, txID string) (ardrive.TxStatus, error) {
	if err := ctx.Err(); err != nil {
		return ardrive.TxStatus{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.statusErr != nil {
		return ardrive.TxStatus{}, l.statusErr
	}
	t, ok := l.txs[txID]
	switch {
	case !ok:
		return ardrive.TxStatus{Code: http.StatusNotFound}, nil
	case t.height == 0:
		return ardrive.TxStatus{Code: http.StatusAccepted}, nil
	default:
		return ardrive.TxStatus{
			Code:          http.StatusOK,
			BlockHeight:   t.height,
			Confirmations: l.height - t.height + 1,
		}, nil
	}
}

func (l *FakeLedger) GetData(ctx context.Context, txID string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.txs[txID]
	if !ok || !t.complete() || (l.hideItems && t.parent != "") {
		return nil, fmt.Errorf("data of %s: %w", txID, ardrive.ErrNotFound)
	}
	return append([]byte(nil), t.data...), nil
}

func (l *FakeLedger) BlockHeight(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.height, nil
}

// GraphQL transport

// Fetch answers a query over mined transactions in height order, using the
// transaction ID as the cursor.
func (l *FakeLedger) Fetch(ctx context.Context, endpoint string, req gql.Request) (*gql.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.fetchCalls[endpoint]++
	if n, ok := l.endpointFailures[endpoint]; ok && n != 0 {
		if n > 0 {
			l.endpointFailures[endpoint] = n - 1
		}
		return nil, fmt.Errorf("%s: %w", endpoint, ErrInjected)
	}

	var matches []*fakeTx
	for _, t := range l.txs {
		if t.height == 0 || t.height < req.MinHeight {
			continue
		}
		if len(req.IDs) > 0 && !contains(req.IDs, t.id) {
			continue
		}
		if len(req.Owners) > 0 && !contains(req.Owners, t.owner) {
			continue
		}
		if !matchTags(t.tags, req.Tags) {
			continue
		}
		matches = append(matches, t)
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].height != matches[j].height {
			return matches[i].height < matches[j].height
		}
		return matches[i].seq < matches[j].seq
	})

	start := 0
	if req.After != "" {
		start = len(matches)
		for i, t := range matches {
			if t.id == req.After {
				start = i + 1
				break
			}
		}
	}
	first := req.First
	if first <= 0 {
		first = gql.PageSize
	}
	end := min(start+first, len(matches))

	page := &gql.Page{HasNextPage: end < len(matches)}
	for _, t := range matches[start:end] {
		page.Edges = append(page.Edges, gql.Edge{
			Cursor:      t.id,
			TxID:        t.id,
			Owner:       t.owner,
			Tags:        append(ledger.Tags(nil), t.tags...),
			BlockHeight: t.height,
			BundledIn:   t.parent,
		})
	}
	return page, nil
}

func matchTags(tags ledger.Tags, filters []gql.TagFilter) bool {
	for _, f := range filters {
		found := false
		for _, tag := range tags {
			if tag.Name == f.Name && contains(f.Values, tag.Value) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

var (
	_ ardrive.Gateway = (*FakeLedger)(nil)
	_ gql.Transport   = (*FakeLedger)(nil)
)
