package internaldefs

import (
	"github.com/MrEthical07/authkit"
)

// CounterDef names one exported counter.
type CounterDef struct {
	ID   authkit.MetricID
	Name string
	Help string
}

// HistogramDef names one exported histogram.
type HistogramDef struct {
	ID   authkit.MetricID
	Name string
	Help string
}

// CounterDefs lists every counter in export order.
var CounterDefs = []CounterDef{
	{ID: authkit.MetricLoginSuccess, Name: "authkit_login_success_total", Help: "Successful credential logins."},
	{ID: authkit.MetricLoginFailure, Name: "authkit_login_failure_total", Help: "Failed credential logins."},
	{ID: authkit.MetricRefreshSuccess, Name: "authkit_refresh_success_total", Help: "Successful refresh operations."},
	{ID: authkit.MetricRefreshNotFound, Name: "authkit_refresh_not_found_total", Help: "Refresh attempts with no matching stored token."},
	{ID: authkit.MetricRefreshExpired, Name: "authkit_refresh_expired_total", Help: "Refresh attempts with an expired token."},
	{ID: authkit.MetricRefreshRotated, Name: "authkit_refresh_rotated_total", Help: "Refresh tokens consumed by rotation."},
	{ID: authkit.MetricOutboundLoginSuccess, Name: "authkit_outbound_login_success_total", Help: "Successful outbound logins."},
	{ID: authkit.MetricOutboundLoginFailure, Name: "authkit_outbound_login_failure_total", Help: "Failed outbound logins."},
	{ID: authkit.MetricOutboundUserCreated, Name: "authkit_outbound_user_created_total", Help: "Users created by a first outbound login."},
	{ID: authkit.MetricImageBackfillScheduled, Name: "authkit_image_backfill_scheduled_total", Help: "Profile image backfills started."},
	{ID: authkit.MetricImageBackfillFailed, Name: "authkit_image_backfill_failed_total", Help: "Profile image backfills that failed."},
	{ID: authkit.MetricAccountCreationSuccess, Name: "authkit_account_creation_success_total", Help: "Successful registrations."},
	{ID: authkit.MetricAccountCreationDuplicate, Name: "authkit_account_creation_duplicate_total", Help: "Registrations rejected as duplicate."},
	{ID: authkit.MetricAccountCreationInvalid, Name: "authkit_account_creation_invalid_total", Help: "Registrations rejected by validation."},
	{ID: authkit.MetricTokenExpired, Name: "authkit_token_expired_total", Help: "Access tokens rejected as expired."},
	{ID: authkit.MetricTokenMalformed, Name: "authkit_token_malformed_total", Help: "Access tokens rejected as malformed."},
	{ID: authkit.MetricTokenUnsupported, Name: "authkit_token_unsupported_total", Help: "Access tokens rejected for an unsupported algorithm."},
	{ID: authkit.MetricTokenInvalid, Name: "authkit_token_invalid_total", Help: "Access tokens rejected as invalid."},
	{ID: authkit.MetricRefreshSweepDeleted, Name: "authkit_refresh_sweep_deleted_total", Help: "Expired refresh tokens removed by the sweeper."},
}

// HistogramDefs lists every histogram in export order.
var HistogramDefs = []HistogramDef{
	{ID: authkit.MetricValidateLatency, Name: "authkit_validate_latency_seconds", Help: "Validate latency histogram."},
}

// HistogramUpperBounds are the finite bucket bounds in seconds. The eighth
// bucket is +Inf.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket, +Inf included, for exporters that
// cannot carry labels.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// AuditDroppedName is the counter for dispatcher drops.
const AuditDroppedName = "authkit_audit_dropped_total"

// AuditDroppedHelp describes AuditDroppedName.
const AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."

// NormalizeBuckets pads or truncates raw to eight buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
