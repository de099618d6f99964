package ethereum

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"
)

type contractCall struct {
	to       common.Address
	value    *big.Int
	calldata []byte
}

type fakeSub struct {
	logs chan types.Log
	errs chan error
}

// fakeNode scripts the NodeClient surface: recorded contract calls, a word
// map for storage reads and hand-fed log subscriptions.
type fakeNode struct {
	mu sync.Mutex

	calls   []contractCall
	receipt *types.Receipt
	sendErr error

	storage    map[common.Hash][]byte
	storageErr error

	subs     []*fakeSub
	subErr   error
	filtered []types.Log
	from     []uint64
}

func newFakeNode() *fakeNode {
	return &fakeNode{storage: make(map[common.Hash][]byte)}
}

func (f *fakeNode) Address() common.Address {
	return common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
}

func (f *fakeNode) SendContractCall(ctx context.Context, to common.Address, value *big.Int, calldata []byte) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, contractCall{to: to, value: value, calldata: calldata})
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	if f.receipt != nil {
		return f.receipt, nil
	}
	return &types.Receipt{Status: types.ReceiptStatusSuccessful}, nil
}

func (f *fakeNode) StorageAt(ctx context.Context, contract common.Address, slot common.Hash) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.storageErr != nil {
		return nil, f.storageErr
	}
	if word, ok := f.storage[slot]; ok {
		return word, nil
	}
	return make([]byte, common.HashLength), nil
}

func (f *fakeNode) FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if query.FromBlock != nil {
		f.from = append(f.from, query.FromBlock.Uint64())
	}
	return f.filtered, nil
}

func (f *fakeNode) BlockNumber(ctx context.Context) (uint64, error) {
	return 0, nil
}

func (f *fakeNode) SubscribeLogs(ctx context.Context, query ethereum.FilterQuery) (<-chan types.Log, <-chan error, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subErr != nil {
		err := f.subErr
		f.subErr = nil
		return nil, nil, err
	}
	sub := &fakeSub{logs: make(chan types.Log, 16), errs: make(chan error, 1)}
	f.subs = append(f.subs, sub)
	return sub.logs, sub.errs, nil
}

func (f *fakeNode) calledWith(t *testing.T, i int) contractCall {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.Greater(t, len(f.calls), i)
	return f.calls[i]
}

func (f *fakeNode) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// waitSub blocks until the n-th subscription has been opened.
func (f *fakeNode) waitSub(t *testing.T, n int) *fakeSub {
	t.Helper()
	var sub *fakeSub
	require.Eventually(t, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		if len(f.subs) >= n {
			sub = f.subs[n-1]
			return true
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)
	return sub
}

func (f *fakeNode) setFiltered(logs []types.Log) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filtered = logs
}

func (f *fakeNode) fromBlocks() []uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uint64(nil), f.from...)
}
