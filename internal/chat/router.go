package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"

	"whale-watch/internal/llm"
	"whale-watch/internal/tools"
)

// Completer rephrases a fixed-format report into conversational text.
// Satisfied by the ASI:One client.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

var (
	addressPattern = regexp.MustCompile(`0x[a-fA-F0-9]{40}`)
	whaleKeywords  = []string{"whale", "deposit", "recent", "activity"}
)

const rephrasePrompt = `You are the Hyperliquid Whale Watcher agent. Rewrite the report below as a short, friendly chat answer. Keep every number, address, hash and symbol exactly as given and do not invent data.`

// Router answers chat queries by keyword: whale activity questions trigger a
// whale scan, wallet questions trigger a wallet lookup, anything else gets
// the help text. Tool failures always degrade to a text reply, never an
// unanswered message.
type Router struct {
	invoker      tools.Invoker
	llm          Completer
	thresholdUSD float64
}

// NewRouter wires the chat router. llm may be nil; replies then always use
// the fixed report format.
func NewRouter(invoker tools.Invoker, llm Completer, thresholdUSD float64) *Router {
	return &Router{
		invoker:      invoker,
		llm:          llm,
		thresholdUSD: thresholdUSD,
	}
}

// Handle acknowledges a message and builds its reply. The reply carries an
// end-session chunk since no conversation history is kept.
func (r *Router) Handle(ctx context.Context, msg Message) (Acknowledgement, Message) {
	ack := NewAcknowledgement(msg.MsgID)
	reply := NewTextMessage(r.Respond(ctx, msg.Text()), true)
	return ack, reply
}

// Respond routes one query and returns the reply text.
func (r *Router) Respond(ctx context.Context, text string) string {
	if strings.TrimSpace(text) == "" {
		return ErrorReply
	}
	log.Printf("💬 Processing whale query: %s", text)

	lower := strings.ToLower(text)
	switch {
	case containsAny(lower, whaleKeywords):
		return r.whaleActivity(ctx)
	case addressPattern.MatchString(text):
		return r.walletAnalysis(ctx, addressPattern.FindString(text))
	case strings.Contains(lower, "wallet") || strings.Contains(lower, "address"):
		return "Please provide a valid wallet address (0x...) to analyze."
	default:
		return HelpText(r.thresholdUSD)
	}
}

func (r *Router) whaleActivity(ctx context.Context) string {
	raw, err := r.invoker.Invoke(ctx, tools.ToolWhaleReport, nil)
	if err != nil {
		log.Printf("❌ whale activity query failed: %v", err)
		return ErrorReply
	}
	var report tools.WhaleReport
	if err := json.Unmarshal(raw, &report); err != nil {
		log.Printf("❌ whale report decode failed: %v", err)
		return ErrorReply
	}
	return r.polish(ctx, RenderWhaleReport(report))
}

func (r *Router) walletAnalysis(ctx context.Context, addr string) string {
	raw, err := r.invoker.Invoke(ctx, tools.ToolWalletReport, map[string]interface{}{"address": addr})
	if err != nil {
		log.Printf("❌ wallet analysis failed for %s: %v", addr, err)
		return fmt.Sprintf("Error analyzing wallet %s: %v", addr, err)
	}
	var report tools.WalletReport
	if err := json.Unmarshal(raw, &report); err != nil {
		log.Printf("❌ wallet report decode failed: %v", err)
		return ErrorReply
	}
	return r.polish(ctx, RenderWalletReport(report))
}

// polish asks the LLM to rephrase a report, keeping the fixed format when the
// LLM is disabled, fails or answers with nothing.
func (r *Router) polish(ctx context.Context, fixed string) string {
	if r.llm == nil {
		return fixed
	}
	out, err := r.llm.Complete(ctx, rephrasePrompt, fixed)
	if err != nil {
		if !errors.Is(err, llm.ErrDisabled) {
			log.Printf("⚠️  LLM rephrase failed, using fixed format: %v", err)
		}
		return fixed
	}
	if strings.TrimSpace(out) == "" {
		return fixed
	}
	return out
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
