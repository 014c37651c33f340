package main

import "strings"

// friendlySimErr turns common relay rejection texts into a short hint.
func friendlySimErr(reason string) string {
	ls := strings.ToLower(strings.TrimSpace(reason))
	switch {
	case strings.Contains(ls, "unsupported: eth_callbundle"),
		strings.Contains(ls, "method not found"),
		strings.Contains(ls, "method not available"),
		strings.Contains(ls, "invalid method"):
		return "simulation not supported by relay"
	case strings.Contains(ls, "insufficient funds"):
		return "insufficient ETH to pay for gas: " + reason
	case strings.Contains(ls, "nonce too low"):
		return "nonce already used on chain: " + reason
	case strings.Contains(ls, "nonce too high"):
		return "nonce gap, an earlier tx is still pending: " + reason
	case strings.Contains(ls, "max fee per gas less than block base fee"):
		return "fee ceiling below base fee, increase blocks ahead: " + reason
	case strings.Contains(ls, "invalid character '<'"):
		return "non-JSON/HTML response from relay (proxy?)"
	case strings.Contains(ls, "revert"):
		return "transaction reverted: " + reason
	}
	return reason
}
