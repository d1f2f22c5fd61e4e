package domain

import "github.com/shopspring/decimal"

// EventVariant identifies which normalizer produced a RawTransactionEvent.
type EventVariant string

const (
	VariantEnhanced EventVariant = "enhanced"
	VariantRPC      EventVariant = "rpc"
)

// Source labels for DEX programs and aggregators.
const (
	SourceUnknown = "UNKNOWN"
	SourceRaydium = "RAYDIUM"
	SourceJupiter = "JUPITER"
	SourcePumpFun = "PUMP_FUN"
	SourcePumpAMM = "PUMP_AMM"
	SourceOrca    = "ORCA"
	SourceMeteora = "METEORA"
)

// DefaultKnownSources is the DEX and aggregator allow-list trusted when an
// event carries no structured swap.
var DefaultKnownSources = []string{
	"RAYDIUM", "JUPITER", "ORCA", "METEORA", "PUMP_FUN", "PUMP_AMM",
	"LIFINITY", "PHOENIX", "OPENBOOK", "OKX_DEX_ROUTER", "MOONSHOT",
	"ALDRIN", "SABER", "CROPPER", "FLUXBEAM", "STEP_FINANCE",
}

// RawTransactionEvent is the normalized shape of one wallet transaction,
// whatever provider format it arrived in.
type RawTransactionEvent struct {
	Signature   string
	Slot        int64
	Timestamp   int64  // Unix timestamp in milliseconds
	Source      string // upper-case DEX label
	Type        string // provider transaction type, informational
	FeePayer    string
	Description string
	Variant     EventVariant
	Failed      bool // executed with an error; moves nothing but fees

	NativeTransfers []NativeTransfer
	TokenTransfers  []TokenTransfer
	Swap            *SwapEvent // nil when the provider gave no swap decomposition
	AccountData     []AccountData
}

// NativeTransfer moves lamports between two accounts.
type NativeTransfer struct {
	From     string
	To       string
	Lamports int64
}

// TokenTransfer moves an SPL token amount (human units) between two owners.
// Either side may be empty when the counterparty is unknown.
type TokenTransfer struct {
	From   string
	To     string
	Mint   string
	Amount decimal.Decimal
}

// SwapEvent is a structured swap decomposition.
// Inputs are what the user account gave, outputs what it received.
type SwapEvent struct {
	NativeInput  *NativeLeg
	NativeOutput *NativeLeg
	TokenInputs  []TokenLeg
	TokenOutputs []TokenLeg
	InnerSwaps   []InnerSwap
}

// InnerSwap is one routed hop of an aggregated swap.
type InnerSwap struct {
	NativeInput  *NativeLeg
	NativeOutput *NativeLeg
	TokenInputs  []TokenLeg
	TokenOutputs []TokenLeg
}

// NativeLeg is a lamport amount attributed to an account.
type NativeLeg struct {
	Account  string
	Lamports int64
}

// TokenLeg is a token amount in human units.
type TokenLeg struct {
	Account string // owner account, empty when the provider did not attribute it
	Mint    string
	Amount  decimal.Decimal
}

// AccountData carries per-account balance changes.
type AccountData struct {
	Account             string
	NativeBalanceChange int64 // lamports, signed
	TokenBalanceChanges []TokenBalanceChange
}

// TokenBalanceChange is a signed token balance delta (human units) for an owner.
type TokenBalanceChange struct {
	UserAccount string
	Mint        string
	Amount      decimal.Decimal
}
