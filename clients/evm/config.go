package evm

// Defaults target a local anvil devnet.
const (
	DefaultRPCURL  = "http://localhost:8545"
	DefaultWSURL   = "ws://localhost:8545"
	DefaultChainID = 31337

	// DefaultGasLimit is the ceiling handed to the retry engine; gas price
	// bumps stop once the adjusted allowance would exceed it.
	DefaultGasLimit = 10_000_000_000

	// DefaultTxSendRetries is the total submission attempt budget per call.
	DefaultTxSendRetries = 5
)

// Config holds connection configuration.
type Config struct {
	RPCURL string
	WSURL  string

	// ChainID is used for transaction replay protection when signing.
	ChainID uint64

	// SignerPrivateKey is the hex-encoded secp256k1 key that signs every
	// transaction this client sends. A leading 0x is accepted.
	SignerPrivateKey string

	GasLimit         uint64
	NumTxSendRetries uint32
}

// DefaultConfig returns a Config wired for a local devnet. The signer key
// must still be provided by the caller.
func DefaultConfig() Config {
	return Config{
		RPCURL:           DefaultRPCURL,
		WSURL:            DefaultWSURL,
		ChainID:          DefaultChainID,
		GasLimit:         DefaultGasLimit,
		NumTxSendRetries: DefaultTxSendRetries,
	}
}
