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

// InitiatorClient drives a deployed bridge initiator contract.
type InitiatorClient struct {
	node     NodeClient
	contract common.Address
}

var _ bridge.InitiatorContract[common.Address] = (*InitiatorClient)(nil)

func NewInitiatorClient(node NodeClient, contract common.Address) *InitiatorClient {
	return &InitiatorClient{node: node, contract: contract}
}

// InitiateBridgeTransfer submits the initiate call and recovers the transfer
// id the contract assigned from the receipt. The originator recorded
// on-chain is the transaction signer; the initiator argument is advisory.
func (c *InitiatorClient) InitiateBridgeTransfer(ctx context.Context, _ common.Address, recipient common.Address, hashLock domain.HashLock, timeLock domain.TimeLock, amount domain.Amount) (domain.TransferID, error) {
	wei := WeiFromAmount(amount)
	calldata, err := initiatorABI.Pack("initiateBridgeTransfer", wei, recipientWord(recipient), [32]byte(hashLock), new(big.Int).SetUint64(uint64(timeLock)))
	if err != nil {
		return domain.TransferID{}, fmt.Errorf("%w: packing calldata: %v", bridge.ErrInitiateTransfer, err)
	}

	receipt, err := c.node.SendContractCall(ctx, c.contract, wei, calldata)
	if err != nil {
		return domain.TransferID{}, fmt.Errorf("%w: %v", bridge.ErrInitiateTransfer, err)
	}

	for _, entry := range receipt.Logs {
		if entry.Address != c.contract || len(entry.Topics) < 2 || entry.Topics[0] != topicInitiated {
			continue
		}
		id := domain.TransferID(entry.Topics[1])
		slog.Info("⛓️ [EthInitiator] Bridge transfer initiated", "transfer_id", id, "amount", amount, "time_lock", timeLock)
		return id, nil
	}
	return domain.TransferID{}, fmt.Errorf("%w: receipt carries no initiated event", bridge.ErrInitiateTransfer)
}

func (c *InitiatorClient) CompleteBridgeTransfer(ctx context.Context, id domain.TransferID, preimage domain.Preimage) error {
	secret, err := preimageWord(preimage)
	if err != nil {
		return err
	}

	calldata, err := initiatorABI.Pack("completeBridgeTransfer", [32]byte(id), secret)
	if err != nil {
		return fmt.Errorf("failed to pack complete calldata: %v", err)
	}

	if _, err := c.node.SendContractCall(ctx, c.contract, nil, calldata); err != nil {
		return fmt.Errorf("failed to complete bridge transfer %s: %w", id, err)
	}
	slog.Info("⛓️ [EthInitiator] Bridge transfer completed", "transfer_id", id)
	return nil
}

func (c *InitiatorClient) RefundBridgeTransfer(ctx context.Context, id domain.TransferID) error {
	calldata, err := initiatorABI.Pack("refundBridgeTransfer", [32]byte(id))
	if err != nil {
		return fmt.Errorf("failed to pack refund calldata: %v", err)
	}

	if _, err := c.node.SendContractCall(ctx, c.contract, nil, calldata); err != nil {
		return fmt.Errorf("failed to refund bridge transfer %s: %w", id, err)
	}
	slog.Info("⛓️ [EthInitiator] Bridge transfer refunded", "transfer_id", id)
	return nil
}

// GetBridgeTransferDetails reads the transfer record straight from the
// contract's storage mapping.
func (c *InitiatorClient) GetBridgeTransferDetails(ctx context.Context, id domain.TransferID) (*domain.TransferDetails[common.Address], error) {
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

	return &domain.TransferDetails[common.Address]{
		ID:               id,
		InitiatorAddress: stored.Originator,
		RecipientAddress: recipientAddress(stored.Recipient),
		HashLock:         domain.HashLock(stored.HashLock),
		TimeLock:         timeLock,
		Amount:           amount,
	}, nil
}
