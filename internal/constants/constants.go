package constants

import "time"

// Pool fee defaults, in basis points of the pay amount
const (
	DefaultLPFeeBps       = 30
	DefaultProtocolFeeBps = 5
	DefaultMaxSlippageBps = 200
)

// Claims
const (
	DefaultClaimMaxAttempts = 10
	DefaultClaimRetryEvery  = 5 * time.Minute
)

// Request log
const (
	DefaultRequestListLimit = 50
	MaxRequestListLimit     = 500
)

// Relay limits
const (
	SignatureBatchSize  = 25
	DelayBetweenTxFetch = 250 * time.Millisecond // keeps public RPC nodes from rate limiting
)

// Redis keys owned outside their packages
const (
	RedisKeyRelayCursorPrefix = "relay:cursor:"
)

// Token mint addresses to symbols, used only to label relay logs
var TokenSymbols = map[string]string{
	"So11111111111111111111111111111111111111112":  "SOL",
	"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v": "USDC",
	"Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB": "USDT",
	"mSoLzYCxHdYgdzU16g5QSh3i5K3z3KZK7ytfqcJm7So":  "mSOL",
	"JUPyiwrYJFskUPiHa7hkeR8VUtAeFoSYbKedZNsDvCN":  "JUP",
	"DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263": "BONK",
}

// MintLabel maps a token mint address to its symbol
func MintLabel(mint string) string {
	if symbol, ok := TokenSymbols[mint]; ok {
		return symbol
	}
	if len(mint) > 8 {
		return mint[:4] + "..." + mint[len(mint)-4:]
	}
	return mint
}
