package internaldefs

import (
	"github.com/MrEthical07/accessgate"
)

// CounterDef names one Engine counter for export.
type CounterDef struct {
	ID   accessgate.MetricID
	Name string
	Help string
}

type HistogramDef struct {
	ID   accessgate.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: accessgate.MetricLoginSuccess, Name: "accessgate_login_success_total", Help: "Successful logins."},
	{ID: accessgate.MetricLoginFailure, Name: "accessgate_login_failure_total", Help: "Rejected logins."},
	{ID: accessgate.MetricLoginUnavailable, Name: "accessgate_login_unavailable_total", Help: "Logins answered as service unavailable."},
	{ID: accessgate.MetricAccountRevoked, Name: "accessgate_account_revoked_total", Help: "Accounts revoked after repeated failed logins."},
	{ID: accessgate.MetricAccountRestored, Name: "accessgate_account_restored_total", Help: "Revoked accounts restored by support."},
	{ID: accessgate.MetricPasswordUpgraded, Name: "accessgate_password_upgraded_total", Help: "Password hashes upgraded on login."},
	{ID: accessgate.MetricAccountCreated, Name: "accessgate_account_created_total", Help: "Accounts created."},
	{ID: accessgate.MetricAccountDuplicate, Name: "accessgate_account_duplicate_total", Help: "Sign-ups rejected because the email exists."},
	{ID: accessgate.MetricAccountCreationUnavailable, Name: "accessgate_account_creation_unavailable_total", Help: "Sign-ups answered as service unavailable."},
	{ID: accessgate.MetricCodeDeliveryFailed, Name: "accessgate_code_delivery_failed_total", Help: "Verification codes that could not be handed to the mailer after sign-up."},
	{ID: accessgate.MetricCodeRequested, Name: "accessgate_code_requested_total", Help: "Verification codes issued on request."},
	{ID: accessgate.MetricCodeRateLimited, Name: "accessgate_code_rate_limited_total", Help: "Verification code requests rejected by the throttle."},
	{ID: accessgate.MetricCodeVerified, Name: "accessgate_code_verified_total", Help: "Successful email verifications."},
	{ID: accessgate.MetricCodeRejected, Name: "accessgate_code_rejected_total", Help: "Rejected verification codes."},
	{ID: accessgate.MetricVerificationUnavailable, Name: "accessgate_verification_unavailable_total", Help: "Verification requests answered as service unavailable."},
	{ID: accessgate.MetricAccessValidated, Name: "accessgate_access_validated_total", Help: "Access tokens accepted."},
	{ID: accessgate.MetricAccessRejected, Name: "accessgate_access_rejected_total", Help: "Access tokens rejected."},
}

var HistogramDefs = []HistogramDef{
	{ID: accessgate.MetricLoginLatency, Name: "accessgate_login_latency_seconds", Help: "Login latency."},
}

// HistogramUpperBounds are the bucket limits in seconds, matching the
// Engine's millisecond buckets. The overflow bucket has no bound.
var HistogramUpperBounds = []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5}

// BucketLabels is the "le" value of each cumulative bucket, overflow last.
var BucketLabels = []string{"0.025", "0.05", "0.1", "0.25", "0.5", "1", "2.5", "+Inf"}

const AuditDroppedName = "accessgate_audit_dropped_total"

func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
