package ethereum

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// ABI fragments for the two bridge contracts, trimmed to the methods and
// events the adapters drive.
const (
	initiatorABIJSON = `[
		{"type":"function","name":"initiateBridgeTransfer","stateMutability":"payable","inputs":[{"name":"amount","type":"uint256"},{"name":"recipient","type":"bytes32"},{"name":"hashLock","type":"bytes32"},{"name":"timeLock","type":"uint256"}],"outputs":[{"name":"bridgeTransferId","type":"bytes32"}]},
		{"type":"function","name":"completeBridgeTransfer","stateMutability":"nonpayable","inputs":[{"name":"bridgeTransferId","type":"bytes32"},{"name":"preImage","type":"bytes32"}],"outputs":[]},
		{"type":"function","name":"refundBridgeTransfer","stateMutability":"nonpayable","inputs":[{"name":"bridgeTransferId","type":"bytes32"}],"outputs":[]},
		{"type":"event","name":"BridgeTransferInitiated","inputs":[{"name":"bridgeTransferId","type":"bytes32","indexed":true},{"name":"originator","type":"address","indexed":true},{"name":"recipient","type":"bytes32","indexed":true},{"name":"amount","type":"uint256","indexed":false},{"name":"hashLock","type":"bytes32","indexed":false},{"name":"timeLock","type":"uint256","indexed":false}]},
		{"type":"event","name":"BridgeTransferCompleted","inputs":[{"name":"bridgeTransferId","type":"bytes32","indexed":true},{"name":"preImage","type":"bytes32","indexed":false}]},
		{"type":"event","name":"BridgeTransferRefunded","inputs":[{"name":"bridgeTransferId","type":"bytes32","indexed":true}]}
	]`

	counterpartyABIJSON = `[
		{"type":"function","name":"lockBridgeTransferAssets","stateMutability":"nonpayable","inputs":[{"name":"bridgeTransferId","type":"bytes32"},{"name":"hashLock","type":"bytes32"},{"name":"timeLock","type":"uint256"},{"name":"recipient","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]},
		{"type":"function","name":"completeBridgeTransfer","stateMutability":"nonpayable","inputs":[{"name":"bridgeTransferId","type":"bytes32"},{"name":"preImage","type":"bytes32"}],"outputs":[]},
		{"type":"function","name":"abortBridgeTransfer","stateMutability":"nonpayable","inputs":[{"name":"bridgeTransferId","type":"bytes32"}],"outputs":[]},
		{"type":"event","name":"BridgeTransferAssetsLocked","inputs":[{"name":"bridgeTransferId","type":"bytes32","indexed":true},{"name":"recipient","type":"address","indexed":true},{"name":"amount","type":"uint256","indexed":false},{"name":"hashLock","type":"bytes32","indexed":false},{"name":"timeLock","type":"uint256","indexed":false}]},
		{"type":"event","name":"BridgeTransferCompleted","inputs":[{"name":"bridgeTransferId","type":"bytes32","indexed":true},{"name":"preImage","type":"bytes32","indexed":false}]},
		{"type":"event","name":"BridgeTransferAborted","inputs":[{"name":"bridgeTransferId","type":"bytes32","indexed":true}]}
	]`
)

var (
	initiatorABI    = mustABI(initiatorABIJSON)
	counterpartyABI = mustABI(counterpartyABIJSON)

	topicInitiated            = initiatorABI.Events["BridgeTransferInitiated"].ID
	topicInitiatorCompleted   = initiatorABI.Events["BridgeTransferCompleted"].ID
	topicRefunded             = initiatorABI.Events["BridgeTransferRefunded"].ID
	topicLocked               = counterpartyABI.Events["BridgeTransferAssetsLocked"].ID
	topicCounterpartyComplete = counterpartyABI.Events["BridgeTransferCompleted"].ID
	topicAborted              = counterpartyABI.Events["BridgeTransferAborted"].ID
)

func mustABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}
