package checkout

import "strings"

// DeclineMessage maps a processor response code to a customer-readable
// decline reason, falling back to the response summary.
func DeclineMessage(responseCode, responseSummary string) string {
	switch strings.TrimSpace(responseCode) {
	case "20087":
		return "Invalid CVV and/or expiry date."
	case "20012":
		return "The issuer has declined the transaction because it is invalid. The cardholder should contact their issuing bank."
	case "20013":
		return "Invalid amount or amount exceeds maximum for card program."
	case "20003":
		return "There was an error processing your credit card. Please verify the information and try again."
	default:
		return strings.TrimSpace(responseSummary)
	}
}

// FirstDeclineReason extracts the decline reason from the first action that
// carries one.
func FirstDeclineReason(actions []Action) string {
	for _, action := range actions {
		if strings.TrimSpace(action.ResponseCode) == "" && strings.TrimSpace(action.ResponseSummary) == "" {
			continue
		}
		return DeclineMessage(action.ResponseCode, action.ResponseSummary)
	}
	return ""
}
