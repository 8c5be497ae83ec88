package chat

import (
	"fmt"
	"strconv"
	"strings"

	"whale-watch/internal/tools"
)

// ErrorReply is the catch-all answer when a query cannot be served.
const ErrorReply = "I am afraid something went wrong and I am unable to answer your question at the moment"

const (
	maxReportedDeposits  = 5
	maxReportedPositions = 5
	maxReportedFills     = 3
)

// RenderWhaleReport formats a whale scan as chat text: ranked deposits with
// short-form wallet and transaction hashes, or a no-findings line.
func RenderWhaleReport(r tools.WhaleReport) string {
	if r.Found == 0 {
		return fmt.Sprintf("No whale deposits above $%s found in the last %d minutes.",
			formatUSD(r.ThresholdUSD, 0), r.LookbackMinutes)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🐋 **Recent Whale Activity** (Last %d minutes):\n\n", r.LookbackMinutes)
	for i, dep := range r.Deposits {
		if i == maxReportedDeposits {
			break
		}
		fmt.Fprintf(&b, "%d. **$%s** %s deposit\n", i+1, formatUSD(dep.ValueUSD, 0), dep.TokenSymbol)
		fmt.Fprintf(&b, "   Wallet: `%s`\n", shortAddress(dep.From))
		fmt.Fprintf(&b, "   TX: `%s`\n\n", shortHash(dep.TxHash))
	}
	if r.Found > maxReportedDeposits {
		fmt.Fprintf(&b, "... and %d more whale deposits\n", r.Found-maxReportedDeposits)
	}
	return b.String()
}

// RenderWalletReport formats a wallet lookup: on-chain balance followed by
// Hyperliquid positions and recent trades.
func RenderWalletReport(r tools.WalletReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 **Wallet Analysis: %s**\n\n", shortAddress(r.Address))

	if r.BalanceETH > 0 {
		fmt.Fprintf(&b, "💰 **On-chain Balance:** %.4f ETH\n\n", r.BalanceETH)
	}

	if len(r.Positions) > 0 {
		var total float64
		for _, p := range r.Positions {
			total += p.Notional
		}
		fmt.Fprintf(&b, "💰 **Total Position Value:** $%s\n\n", formatUSD(total, 2))
		b.WriteString("**Active Positions:**\n")
		for i, p := range r.Positions {
			if i == maxReportedPositions {
				break
			}
			fmt.Fprintf(&b, "• %s: %s $%s @ $%.2f\n", p.Coin, strings.ToUpper(p.Side), formatUSD(p.Notional, 2), p.EntryPrice)
		}
	} else {
		b.WriteString("No active positions found.\n")
	}

	if len(r.Fills) > 0 {
		fmt.Fprintf(&b, "\n**Recent Trades (%d):**\n", len(r.Fills))
		for i, f := range r.Fills {
			if i == maxReportedFills {
				break
			}
			fmt.Fprintf(&b, "• %s %s $%s @ $%.2f\n", strings.ToUpper(f.Side), f.Coin, formatUSD(f.Notional, 2), f.Price)
		}
	}
	return b.String()
}

// HelpText describes what the agent can answer.
func HelpText(thresholdUSD float64) string {
	return fmt.Sprintf(`🐋 **Hyperliquid Whale Watcher**

I monitor large deposits to Hyperliquid and analyze trading activity. Here's what I can help with:

• **Recent whale activity**: Ask about "recent whales" or "whale deposits"
• **Wallet analysis**: Provide a wallet address to see Hyperliquid positions and trades
• **Deposit monitoring**: I track deposits above $%s

What would you like to know?`, formatUSD(thresholdUSD, 0))
}

// shortAddress renders 0x1234...abcd for display.
func shortAddress(s string) string {
	if len(s) < 12 {
		return s
	}
	return s[:6] + "..." + s[len(s)-4:]
}

// shortHash renders the first ten characters of a transaction hash.
func shortHash(s string) string {
	if len(s) <= 10 {
		return s
	}
	return s[:10] + "..."
}

// formatUSD renders a dollar amount with thousands separators.
func formatUSD(v float64, decimals int) string {
	s := strconv.FormatFloat(v, 'f', decimals, 64)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	intPart, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, frac = s[:i], s[i:]
	}
	for i := len(intPart) - 3; i > 0; i -= 3 {
		intPart = intPart[:i] + "," + intPart[i:]
	}
	if neg {
		intPart = "-" + intPart
	}
	return intPart + frac
}
