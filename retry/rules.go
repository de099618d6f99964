package retry

import (
	"errors"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"
)

// JSON-RPC nodes report submission rejections as generic server errors and
// distinguish the cause only in the message text, so the built-in rules
// match on the message with the code as a guard when one is present.
const rpcServerErrorCode = -32000

// DefaultRules is the rule chain the chain clients install: gas pricing
// problems are retried with more gas, nonce races are retried as-is, and a
// broke sender account is fatal.
func DefaultRules() []Rule {
	return []Rule{UnderPricedRule{}, NonceConflictRule{}, InsufficientFundsRule{}}
}

// UnderPricedRule matches the node rejecting a transaction as underpriced.
// Retryable; the adjustment raises the gas allowance and price by a tenth,
// with the policy's gas ceiling as the upper bound.
type UnderPricedRule struct{}

func (UnderPricedRule) Evaluate(err error) (Verdict, Adjustment) {
	if !matchRPCMessage(err, "underpriced") {
		return NoOpinion, nil
	}
	return Retryable, bumpGasTenth
}

// NonceConflictRule matches nonce races against concurrent submissions from
// the same account. Retryable without adjustment: the caller derives a fresh
// nonce on every attempt.
type NonceConflictRule struct{}

func (NonceConflictRule) Evaluate(err error) (Verdict, Adjustment) {
	if matchRPCMessage(err, "nonce too low") || matchRPCMessage(err, "already known") {
		return Retryable, nil
	}
	return NoOpinion, nil
}

// InsufficientFundsRule matches a sender account that cannot cover the
// transaction. Fatal: resubmitting cannot fund the account.
type InsufficientFundsRule struct{}

func (InsufficientFundsRule) Evaluate(err error) (Verdict, Adjustment) {
	if matchRPCMessage(err, "insufficient funds") {
		return Fatal, nil
	}
	return NoOpinion, nil
}

func bumpGasTenth(opts *CallOptions) {
	opts.GasLimit += opts.GasLimit / 10
	if opts.GasPrice != nil {
		bump := new(big.Int).Div(opts.GasPrice, big.NewInt(10))
		opts.GasPrice = new(big.Int).Add(opts.GasPrice, bump)
	}
}

func matchRPCMessage(err error, substr string) bool {
	if err == nil {
		return false
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return rpcErr.ErrorCode() == rpcServerErrorCode &&
			strings.Contains(strings.ToLower(rpcErr.Error()), substr)
	}
	return strings.Contains(strings.ToLower(err.Error()), substr)
}
