package ethereum

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ThorbenD/atomic-bridge-go/bridge"
	"github.com/ThorbenD/atomic-bridge-go/domain"
)

// CounterpartyClient drives a deployed bridge counterparty contract.
type CounterpartyClient struct {
	node     NodeClient
	contract common.Address
}

var _ bridge.CounterpartyContract[common.Address] = (*CounterpartyClient)(nil)

func NewCounterpartyClient(node NodeClient, contract common.Address) *CounterpartyClient {
	return &CounterpartyClient{node: node, contract: contract}
}

func (c *CounterpartyClient) LockBridgeTransferAssets(ctx context.Context, id domain.TransferID, hashLock domain.HashLock, timeLock domain.TimeLock, recipient common.Address, amount domain.Amount) error {
	calldata, err := counterpartyABI.Pack("lockBridgeTransferAssets",
		[32]byte(id), [32]byte(hashLock), new(big.Int).SetUint64(uint64(timeLock)), recipient, WeiFromAmount(amount))
	if err != nil {
		return fmt.Errorf("failed to pack lock calldata: %v", err)
	}

	if _, err := c.node.SendContractCall(ctx, c.contract, nil, calldata); err != nil {
		return fmt.Errorf("failed to lock bridge transfer assets for %s: %w", id, err)
	}
	slog.Info("⛓️ [EthCounterparty] Assets locked", "transfer_id", id, "amount", amount, "time_lock", timeLock)
	return nil
}

func (c *CounterpartyClient) CompleteBridgeTransfer(ctx context.Context, id domain.TransferID, preimage domain.Preimage) error {
	secret, err := preimageWord(preimage)
	if err != nil {
		return err
	}

	calldata, err := counterpartyABI.Pack("completeBridgeTransfer", [32]byte(id), secret)
	if err != nil {
		return fmt.Errorf("failed to pack complete calldata: %v", err)
	}

	if _, err := c.node.SendContractCall(ctx, c.contract, nil, calldata); err != nil {
		return fmt.Errorf("failed to complete bridge transfer %s: %w", id, err)
	}
	slog.Info("⛓️ [EthCounterparty] Bridge transfer completed", "transfer_id", id)
	return nil
}

func (c *CounterpartyClient) AbortBridgeTransfer(ctx context.Context, id domain.TransferID) error {
	calldata, err := counterpartyABI.Pack("abortBridgeTransfer", [32]byte(id))
	if err != nil {
		return fmt.Errorf("failed to pack abort calldata: %v", err)
	}

	if _, err := c.node.SendContractCall(ctx, c.contract, nil, calldata); err != nil {
		return fmt.Errorf("failed to abort bridge transfer %s: %w", id, err)
	}
	slog.Info("⛓️ [EthCounterparty] Bridge transfer aborted", "transfer_id", id)
	return nil
}

// GetBridgeTransferDetails reads the lock record from the contract's storage
// mapping.
func (c *CounterpartyClient) GetBridgeTransferDetails(ctx context.Context, id domain.TransferID) (*domain.LockDetails[common.Address], error) {
	stored, err := readStoredTransfer(ctx, c.node, c.contract, id)
	if err != nil {
		return nil, err
	}

	amount, err := stored.amount()
	if err != nil {
		return nil, err
	}
	timeLock, err := stored.timeLock()
	if err != nil {
		return nil, err
	}

	return &domain.LockDetails[common.Address]{
		ID:               id,
		RecipientAddress: recipientAddress(stored.Recipient),
		HashLock:         domain.HashLock(stored.HashLock),
		TimeLock:         timeLock,
		Amount:           amount,
	}, nil
}
