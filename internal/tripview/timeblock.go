package tripview

import "strings"

const (
	Morning   = "morning"
	Afternoon = "afternoon"
	Night     = "night"

	// legacyEvening is accepted from older clients and stored as night.
	legacyEvening = "evening"
)

// TimeBlocks lists the canonical blocks in display order.
var TimeBlocks = []string{Morning, Afternoon, Night}

// NormalizeTimeBlock lowercases a block name and folds the legacy evening
// block into night. ok is false for anything else.
func NormalizeTimeBlock(block string) (string, bool) {
	switch b := strings.ToLower(strings.TrimSpace(block)); b {
	case Morning, Afternoon, Night:
		return b, true
	case legacyEvening:
		return Night, true
	default:
		return "", false
	}
}
