package utils

import (
	"math/rand"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

var envLoaded bool

func ensureEnvLoaded() {
	if !envLoaded {
		_ = godotenv.Load() // Ignore error if .env doesn't exist
		envLoaded = true
	}
}

// chainEndpoints maps chain IDs to the env var holding operator-supplied RPC
// URLs and the public endpoint used when none is set.
var chainEndpoints = map[string]struct {
	envKey   string
	fallback string
}{
	"1":     {"ETH_RPC_URL", "https://eth.llamarpc.com"},
	"8453":  {"BASE_RPC_URL", "https://mainnet.base.org"},
	"42161": {"ARB_RPC_URL", "https://arb1.arbitrum.io/rpc"},
}

// GetRandomRPCURL reads a comma-separated URL list from the env var and picks
// one at random, spreading load across providers.
func GetRandomRPCURL(envKey string) string {
	ensureEnvLoaded()

	var urls []string
	for _, p := range strings.Split(os.Getenv(envKey), ",") {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			urls = append(urls, trimmed)
		}
	}
	switch len(urls) {
	case 0:
		return ""
	case 1:
		return urls[0]
	default:
		return urls[rand.Intn(len(urls))]
	}
}

// GetRPCURLForChain resolves the RPC endpoint for a chain, falling back to a
// public endpoint when none is configured. Unknown chains resolve to "".
func GetRPCURLForChain(chainID string) string {
	ep, ok := chainEndpoints[chainID]
	if !ok {
		return ""
	}
	if url := GetRandomRPCURL(ep.envKey); url != "" {
		return url
	}
	return ep.fallback
}
