// Package evm wraps the go-ethereum client pair (HTTP for calls and
// transactions, websocket for subscriptions) behind the small surface the
// bridge adapters need: signed contract calls with retry, storage reads and
// log subscriptions.
package evm

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/ThorbenD/atomic-bridge-go/retry"
)

const confirmationPollInterval = 2 * time.Second

// Client bundles the node connections with the signing key used for
// contract calls.
type Client struct {
	rpc    *ethclient.Client
	ws     *ethclient.Client
	key    *ecdsa.PrivateKey
	from   common.Address
	signer types.Signer
	policy retry.Policy
}

// NewClient dials both endpoints and derives the signer address from the
// configured key.
func NewClient(cfg Config) (*Client, error) {
	if cfg.SignerPrivateKey == "" {
		return nil, fmt.Errorf("signer private key not set")
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.SignerPrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse signer private key: %v", err)
	}

	rpcClient, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial RPC endpoint: %v", err)
	}

	wsClient, err := ethclient.Dial(cfg.WSURL)
	if err != nil {
		rpcClient.Close()
		return nil, fmt.Errorf("failed to dial websocket endpoint: %v", err)
	}

	chainID := new(big.Int).SetUint64(cfg.ChainID)

	return &Client{
		rpc:    rpcClient,
		ws:     wsClient,
		key:    key,
		from:   crypto.PubkeyToAddress(key.PublicKey),
		signer: types.LatestSignerForChainID(chainID),
		policy: retry.Policy{
			Rules:           retry.DefaultRules(),
			MaxAttempts:     cfg.NumTxSendRetries,
			GasLimitCeiling: cfg.GasLimit,
		},
	}, nil
}

// Close closes both node connections.
func (c *Client) Close() {
	c.rpc.Close()
	c.ws.Close()
}

// Address returns the address transactions are sent from.
func (c *Client) Address() common.Address {
	return c.from
}

// SendContractCall signs and submits calldata to a contract, then waits for
// the receipt. Submission runs under the retry policy with a fresh nonce per
// attempt; the node error from eth_sendRawTransaction is returned unwrapped
// so the rules can inspect it.
func (c *Client) SendContractCall(ctx context.Context, to common.Address, value *big.Int, calldata []byte) (*types.Receipt, error) {
	if value == nil {
		value = new(big.Int)
	}

	gasPrice, err := c.rpc.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch gas price: %v", err)
	}

	gasLimit, err := c.rpc.EstimateGas(ctx, ethereum.CallMsg{
		From:  c.from,
		To:    &to,
		Value: value,
		Data:  calldata,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to estimate gas: %v", err)
	}

	var sent *types.Transaction
	opts := retry.CallOptions{GasPrice: gasPrice, GasLimit: gasLimit}
	err = c.policy.Submit(ctx, opts, func(ctx context.Context, opts retry.CallOptions) error {
		nonce, err := c.rpc.PendingNonceAt(ctx, c.from)
		if err != nil {
			return fmt.Errorf("failed to fetch nonce: %w", err)
		}

		tx := types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			GasPrice: opts.GasPrice,
			Gas:      opts.GasLimit,
			To:       &to,
			Value:    value,
			Data:     calldata,
		})

		signed, err := types.SignTx(tx, c.signer, c.key)
		if err != nil {
			return fmt.Errorf("failed to sign transaction: %w", err)
		}

		if err := c.rpc.SendTransaction(ctx, signed); err != nil {
			return err
		}
		sent = signed
		return nil
	})
	if err != nil {
		return nil, err
	}

	receipt, err := bind.WaitMined(ctx, c.rpc, sent)
	if err != nil {
		return nil, fmt.Errorf("failed waiting for transaction %s: %v", sent.Hash(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("transaction %s reverted", sent.Hash())
	}
	return receipt, nil
}

// StorageAt reads one word of contract storage at the latest block.
func (c *Client) StorageAt(ctx context.Context, contract common.Address, slot common.Hash) ([]byte, error) {
	return c.rpc.StorageAt(ctx, contract, slot, nil)
}

// FilterLogs fetches historical logs through the HTTP endpoint.
func (c *Client) FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	return c.rpc.FilterLogs(ctx, query)
}

// BlockNumber returns the current chain head height.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	return c.rpc.BlockNumber(ctx)
}

// SubscribeLogs opens a websocket log subscription for the given query. The
// error channel is closed when the subscription ends and carries at most one
// error; nothing is delivered on a plain unsubscribe.
func (c *Client) SubscribeLogs(ctx context.Context, query ethereum.FilterQuery) (<-chan types.Log, <-chan error, error) {
	logs := make(chan types.Log)
	sub, err := c.ws.SubscribeFilterLogs(ctx, query, logs)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to subscribe to logs: %v", err)
	}

	errChan := make(chan error, 1)
	go func() {
		defer close(errChan)

		select {
		case err := <-sub.Err():
			if err != nil {
				errChan <- err
			}
		case <-ctx.Done():
			sub.Unsubscribe()
		}
	}()

	return logs, errChan, nil
}

// WaitForConfirmations blocks until the transaction is buried under the
// requested number of confirmations.
func (c *Client) WaitForConfirmations(ctx context.Context, txHash common.Hash, confirmations uint64) (*types.Receipt, error) {
	for {
		receipt, err := c.rpc.TransactionReceipt(ctx, txHash)
		if err == nil {
			head, err := c.rpc.BlockNumber(ctx)
			if err != nil {
				return nil, fmt.Errorf("failed to fetch block number: %v", err)
			}
			if head >= receipt.BlockNumber.Uint64()+confirmations {
				return receipt, nil
			}
		} else if !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("failed to fetch receipt: %v", err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(confirmationPollInterval):
		}
	}
}
