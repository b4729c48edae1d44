package events

import "github.com/bwmarrin/snowflake"

// Valuation event types for downstream consumers (notifications,
// reporting refresh).
const (
	EventValuationCompleted     = "valuation.completed"
	EventValuationFailed        = "valuation.failed"
	EventLinkedAccountRefreshed = "linked_account.refreshed"
)

// ValuationCompletedPayload captures the minimal data a consumer needs
// to react to a finished valuation run.
func ValuationCompletedPayload(snapshotID, historyEntryID snowflake.ID, totalAccounts, failedAccounts int) map[string]any {
	return map[string]any{
		"snapshot_id":      snapshotID.String(),
		"history_entry_id": historyEntryID.String(),
		"total_accounts":   totalAccounts,
		"failed_accounts":  failedAccounts,
	}
}

// LinkedAccountRefreshedPayload captures the per-account refresh
// outcome for selective-refresh consumers.
func LinkedAccountRefreshedPayload(snapshotID, linkedAccountID snowflake.ID, success bool) map[string]any {
	return map[string]any{
		"snapshot_id":       snapshotID.String(),
		"linked_account_id": linkedAccountID.String(),
		"success":           success,
	}
}
