package normalization

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"math/big"
	"regexp"
	"strconv"
	"strings"

	"github.com/mr-tron/base58"
	"github.com/shopspring/decimal"

	"solana-wallet-ledger/internal/domain"
)

// Known DEX program IDs.
const (
	// RaydiumAMMV4 is the Raydium AMM v4 program ID.
	RaydiumAMMV4 = "675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8"
	RaydiumCPMM  = "CPMMoo8L3F4NbTegBCKVNunggL7H1ZpdTHKxQB5qKP1C"
	RaydiumCLMM  = "CAMMCzo5YL8w4VFF8KVHrK22GGUsp5VTaW7grrKgrWqK"
	// JupiterV6 is the Jupiter aggregator v6 program ID.
	JupiterV6     = "JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4"
	OrcaWhirlpool = "whirLbMiicVdio4qvUfM5KAg6Ct8VwpYzGff3uctyCc"
	MeteoraDLMM   = "LBUZKhRxPF3XUpBCjp4YzTKgLccjZhTSDM9YuVaPwxo"
	// PumpFun is the pump.fun bonding curve program ID.
	PumpFun  = "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P"
	PumpAMM  = "pAMMBay6oceH9fJKBRHGP5D4bD4sWpmSwMn52FMfXEA"
	Moonshot = "MoonCVVNZFSYkqNXP6bxHLPL6QQJiMagDL3qcqUQTrG"
)

// programSources maps program IDs to source labels.
var programSources = map[string]string{
	RaydiumAMMV4:  domain.SourceRaydium,
	RaydiumCPMM:   domain.SourceRaydium,
	RaydiumCLMM:   domain.SourceRaydium,
	JupiterV6:     domain.SourceJupiter,
	OrcaWhirlpool: domain.SourceOrca,
	MeteoraDLMM:   domain.SourceMeteora,
	PumpFun:       domain.SourcePumpFun,
	PumpAMM:       domain.SourcePumpAMM,
	Moonshot:      "MOONSHOT",
}

// aggregators win the source label over the pools they route through.
var aggregators = map[string]bool{
	JupiterV6: true,
}

var invokePattern = regexp.MustCompile(`^Program ([1-9A-HJ-NP-Za-km-z]{32,44}) invoke \[(\d+)\]`)

// TxContext is the per-transaction view handed to swap parsers.
type TxContext struct {
	Logs        []string
	AccountKeys []string
	FeePayer    string
	// Decimals maps mint to decimals, taken from token balances.
	Decimals map[string]int32
	// OwnerDeltas maps owner -> mint -> signed human-unit balance change.
	OwnerDeltas map[string]map[string]decimal.Decimal
}

func (c *TxContext) decimalsFor(mint string, fallback int32) (int32, bool) {
	if d, ok := c.Decimals[mint]; ok {
		return d, true
	}
	if mint == domain.WSOLMint {
		return domain.SOLDecimals, true
	}
	return fallback, fallback >= 0
}

// Parser extracts swap hops from a transaction's program logs.
type Parser interface {
	ParseSwaps(tx *TxContext) []domain.InnerSwap
}

// DEXParser runs every registered program parser over a transaction.
type DEXParser struct {
	programs []string
	parsers  map[string]Parser // programID -> parser
}

// NewDEXParser creates a new multi-DEX parser with default parsers registered.
func NewDEXParser() *DEXParser {
	p := &DEXParser{
		parsers: make(map[string]Parser),
	}

	// Register default parsers
	p.RegisterParser(RaydiumAMMV4, NewRaydiumParser())
	p.RegisterParser(PumpFun, NewPumpFunParser())

	return p
}

// RegisterParser registers a parser for a specific program ID.
// Parsers run in registration order.
func (p *DEXParser) RegisterParser(programID string, parser Parser) {
	if _, ok := p.parsers[programID]; !ok {
		p.programs = append(p.programs, programID)
	}
	p.parsers[programID] = parser
}

// ParseSwap merges the hops of all parsers into one swap decomposition.
// A single hop becomes the top-level legs; several hops become inner swaps.
// Returns nil when no parser recognized a swap.
func (p *DEXParser) ParseSwap(tx *TxContext) *domain.SwapEvent {
	var hops []domain.InnerSwap
	for _, id := range p.programs {
		if !invokes(tx.Logs, id) {
			continue
		}
		hops = append(hops, p.parsers[id].ParseSwaps(tx)...)
	}

	switch len(hops) {
	case 0:
		return nil
	case 1:
		return &domain.SwapEvent{
			NativeInput:  hops[0].NativeInput,
			NativeOutput: hops[0].NativeOutput,
			TokenInputs:  hops[0].TokenInputs,
			TokenOutputs: hops[0].TokenOutputs,
		}
	default:
		return &domain.SwapEvent{InnerSwaps: hops}
	}
}

// DetectSource labels a transaction by the programs it invoked. Aggregators
// take precedence, then the first known DEX in log order.
func DetectSource(logs []string) string {
	first := ""
	for _, line := range logs {
		m := invokePattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		label, ok := programSources[m[1]]
		if !ok {
			continue
		}
		if aggregators[m[1]] {
			return label
		}
		if first == "" {
			first = label
		}
	}
	if first == "" {
		return domain.SourceUnknown
	}
	return first
}

func invokes(logs []string, programID string) bool {
	needle := "Program " + programID + " invoke"
	for _, line := range logs {
		if strings.HasPrefix(line, needle) {
			return true
		}
	}
	return false
}

// RaydiumParser parses Raydium AMM v4 swap events from ray_log entries.
type RaydiumParser struct {
	// ray_log pattern: base64 encoded data after "ray_log: "
	rayLogPattern *regexp.Regexp
}

// NewRaydiumParser creates a new Raydium parser.
func NewRaydiumParser() *RaydiumParser {
	return &RaydiumParser{
		rayLogPattern: regexp.MustCompile(`ray_log: ([A-Za-z0-9+/=]+)`),
	}
}

// ray_log swap layout:
// discriminator(1) + ammId(32) + inputMint(32) + outputMint(32) + amountIn(8) + amountOut(8)
const (
	rayInputMintOffset  = 33
	rayOutputMintOffset = 65
	rayAmountInOffset   = 97
	rayAmountOutOffset  = 105
	raySwapLogLen       = 113
)

// ParseSwaps decodes every swap ray_log into one hop attributed to the fee payer.
// Hops whose mint decimals are unknown are skipped.
func (p *RaydiumParser) ParseSwaps(tx *TxContext) []domain.InnerSwap {
	var hops []domain.InnerSwap

	for _, log := range tx.Logs {
		matches := p.rayLogPattern.FindStringSubmatch(log)
		if matches == nil {
			continue
		}

		data, err := base64.StdEncoding.DecodeString(matches[1])
		if err != nil {
			continue
		}

		if !p.isSwapLog(data) || len(data) < raySwapLogLen {
			continue
		}

		inputMint := base58.Encode(data[rayInputMintOffset:rayOutputMintOffset])
		outputMint := base58.Encode(data[rayOutputMintOffset:rayAmountInOffset])
		amountIn := readUint64LE(data, rayAmountInOffset)
		amountOut := readUint64LE(data, rayAmountOutOffset)

		inDec, okIn := tx.decimalsFor(inputMint, -1)
		outDec, okOut := tx.decimalsFor(outputMint, -1)
		if !okIn || !okOut {
			continue
		}

		hops = append(hops, domain.InnerSwap{
			TokenInputs: []domain.TokenLeg{{
				Account: tx.FeePayer,
				Mint:    inputMint,
				Amount:  fromUint64(amountIn).Shift(-inDec),
			}},
			TokenOutputs: []domain.TokenLeg{{
				Account: tx.FeePayer,
				Mint:    outputMint,
				Amount:  fromUint64(amountOut).Shift(-outDec),
			}},
		})
	}

	return hops
}

// isSwapLog checks if ray_log data represents a swap instruction.
func (p *RaydiumParser) isSwapLog(data []byte) bool {
	if len(data) < 1 {
		return false
	}
	// Raydium discriminators: 0x09 = SwapBaseIn, 0x0b = SwapBaseOut (newer versions)
	// Also 0x0d, 0x0e for some instruction variants
	disc := data[0]
	return disc == 0x09 || disc == 0x0b || disc == 0x0d || disc == 0x0e
}

// pumpTradeEventDiscriminator is the anchor discriminator of pump.fun TradeEvent.
var pumpTradeEventDiscriminator = []byte{189, 219, 127, 211, 78, 230, 97, 238}

// TradeEvent layout after the discriminator:
// mint(32) + solAmount(8) + tokenAmount(8) + isBuy(1) + user(32)
const (
	pumpMintOffset   = 8
	pumpSolOffset    = 40
	pumpTokenOffset  = 48
	pumpIsBuyOffset  = 56
	pumpUserOffset   = 57
	pumpTradeMinLen  = 89
	pumpTokenDecimal = 6
)

// PumpFunParser parses pump.fun swap events.
type PumpFunParser struct {
	buyPattern       *regexp.Regexp
	sellPattern      *regexp.Regexp
	mintPattern      *regexp.Regexp
	amountPattern    *regexp.Regexp
	solAmountPattern *regexp.Regexp
	dataPattern      *regexp.Regexp
}

// NewPumpFunParser creates a new pump.fun parser.
func NewPumpFunParser() *PumpFunParser {
	return &PumpFunParser{
		buyPattern:       regexp.MustCompile(`Program log: Instruction: Buy`),
		sellPattern:      regexp.MustCompile(`Program log: Instruction: Sell`),
		mintPattern:      regexp.MustCompile(`mint=([A-Za-z0-9]+)`),
		amountPattern:    regexp.MustCompile(`(?:^|[^_])(?:amount|token_amount)[=:]?\s*(\d+)`),
		solAmountPattern: regexp.MustCompile(`sol_amount[=:]?\s*(\d+)`),
		dataPattern:      regexp.MustCompile(`^Program data: ([A-Za-z0-9+/=]+)`),
	}
}

// pumpInvocation accumulates what one pump.fun invocation logged.
type pumpInvocation struct {
	side      domain.TradeSide
	mint      string
	tokenRaw  uint64
	solRaw    uint64
	hasToken  bool
	hasSol    bool
	fromEvent []domain.InnerSwap
}

// ParseSwaps parses pump.fun buys and sells. TradeEvent program data is
// preferred; instruction text logs are the fallback.
func (p *PumpFunParser) ParseSwaps(tx *TxContext) []domain.InnerSwap {
	var hops []domain.InnerSwap
	var cur *pumpInvocation

	for _, log := range tx.Logs {
		// Detect pump.fun program invocation
		if strings.HasPrefix(log, "Program "+PumpFun+" invoke") {
			cur = &pumpInvocation{}
			continue
		}

		// Detect program exit
		if strings.HasPrefix(log, "Program "+PumpFun+" success") ||
			strings.HasPrefix(log, "Program "+PumpFun+" failed") {
			if cur != nil {
				hops = append(hops, p.finish(tx, cur)...)
			}
			cur = nil
			continue
		}

		if cur == nil {
			continue
		}

		if m := p.dataPattern.FindStringSubmatch(log); m != nil {
			if hop, ok := p.decodeTradeEvent(tx, m[1]); ok {
				cur.fromEvent = append(cur.fromEvent, hop)
			}
			continue
		}

		switch {
		case p.buyPattern.MatchString(log):
			cur.side = domain.TradeSideBuy
		case p.sellPattern.MatchString(log):
			cur.side = domain.TradeSideSell
		}

		if m := p.mintPattern.FindStringSubmatch(log); m != nil {
			cur.mint = m[1]
		}
		if m := p.solAmountPattern.FindStringSubmatch(log); m != nil {
			if v, err := strconv.ParseUint(m[1], 10, 64); err == nil {
				cur.solRaw, cur.hasSol = v, true
			}
		}
		if m := p.amountPattern.FindStringSubmatch(log); m != nil {
			if v, err := strconv.ParseUint(m[1], 10, 64); err == nil {
				cur.tokenRaw, cur.hasToken = v, true
			}
		}
	}

	return hops
}

func (p *PumpFunParser) finish(tx *TxContext, inv *pumpInvocation) []domain.InnerSwap {
	if len(inv.fromEvent) > 0 {
		return inv.fromEvent
	}
	if inv.side == "" {
		return nil
	}

	mint := inv.mint
	if mint == "" {
		mint = singleNonBaseMint(tx.OwnerDeltas[tx.FeePayer])
	}
	if mint == "" {
		return nil
	}

	dec, _ := tx.decimalsFor(mint, pumpTokenDecimal)
	var tokenAmount decimal.Decimal
	if inv.hasToken {
		tokenAmount = fromUint64(inv.tokenRaw).Shift(-dec)
	} else {
		tokenAmount = tx.OwnerDeltas[tx.FeePayer][mint].Abs()
	}
	if tokenAmount.IsZero() {
		return nil
	}

	hop := domain.InnerSwap{}
	tokenLeg := []domain.TokenLeg{{Account: tx.FeePayer, Mint: mint, Amount: tokenAmount}}
	var solLeg *domain.NativeLeg
	if inv.hasSol && inv.solRaw > 0 {
		solLeg = &domain.NativeLeg{Account: tx.FeePayer, Lamports: int64(inv.solRaw)}
	}

	if inv.side == domain.TradeSideBuy {
		hop.NativeInput = solLeg
		hop.TokenOutputs = tokenLeg
	} else {
		hop.TokenInputs = tokenLeg
		hop.NativeOutput = solLeg
	}
	return []domain.InnerSwap{hop}
}

func (p *PumpFunParser) decodeTradeEvent(tx *TxContext, encoded string) (domain.InnerSwap, bool) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(data) < pumpTradeMinLen {
		return domain.InnerSwap{}, false
	}
	if !bytes.Equal(data[:8], pumpTradeEventDiscriminator) {
		return domain.InnerSwap{}, false
	}

	mint := base58.Encode(data[pumpMintOffset:pumpSolOffset])
	sol := readUint64LE(data, pumpSolOffset)
	token := readUint64LE(data, pumpTokenOffset)
	isBuy := data[pumpIsBuyOffset] == 1
	user := base58.Encode(data[pumpUserOffset : pumpUserOffset+32])

	dec, _ := tx.decimalsFor(mint, pumpTokenDecimal)
	tokenLeg := []domain.TokenLeg{{Account: user, Mint: mint, Amount: fromUint64(token).Shift(-dec)}}
	solLeg := &domain.NativeLeg{Account: user, Lamports: int64(sol)}

	if isBuy {
		return domain.InnerSwap{NativeInput: solLeg, TokenOutputs: tokenLeg}, true
	}
	return domain.InnerSwap{TokenInputs: tokenLeg, NativeOutput: solLeg}, true
}

// singleNonBaseMint returns the only non-SOL mint with a non-zero delta.
func singleNonBaseMint(deltas map[string]decimal.Decimal) string {
	found := ""
	for mint, d := range deltas {
		if mint == domain.WSOLMint || d.IsZero() {
			continue
		}
		if found != "" {
			return ""
		}
		found = mint
	}
	return found
}

func fromUint64(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}

// readUint64LE reads a little-endian uint64 from data at offset.
func readUint64LE(data []byte, offset int) uint64 {
	if offset+8 > len(data) {
		return 0
	}
	return binary.LittleEndian.Uint64(data[offset:])
}
