// Package colabapi implements component 4.B: typed wrappers over the Colab
// REST surface (assignment, proxy refresh, kernel/session listing, CCU/user
// info), with fixed enum normalization and token-aware retries.
package colabapi

import "time"

// Variant is the accelerator class requested for an Assignment.
type Variant string

const (
	VariantDefault Variant = "DEFAULT"
	VariantGPU     Variant = "GPU"
	VariantTPU     Variant = "TPU"
)

// MachineShape is the memory profile of the backing VM.
type MachineShape string

const (
	ShapeStandard MachineShape = "STANDARD"
	ShapeHighmem  MachineShape = "HIGHMEM"
)

// SubscriptionTier is the normalized Colab subscription level.
type SubscriptionTier string

const (
	TierNone    SubscriptionTier = "NONE"
	TierPro     SubscriptionTier = "PRO"
	TierProPlus SubscriptionTier = "PRO_PLUS"
)

// Outcome is the discrete result of a postAssignment attempt.
type Outcome string

const (
	OutcomeUndefined         Outcome = "UNDEFINED_OUTCOME"
	OutcomeQuotaDeniedVariant Outcome = "QUOTA_DENIED_REQUESTED_VARIANTS"
	OutcomeQuotaExceededUsage Outcome = "QUOTA_EXCEEDED_USAGE_TIME"
	OutcomeSuccess            Outcome = "SUCCESS"
	OutcomeDenylisted         Outcome = "DENYLISTED"
)

// Assignment represents one reserved Colab backend instance (spec.md §3).
// Invariant: every live session references exactly one Assignment whose
// Endpoint is non-empty.
type Assignment struct {
	Label             string
	Endpoint          string
	Accelerator       string
	Variant           Variant
	MachineShape      MachineShape
	SubscriptionState string
	SubscriptionTier  SubscriptionTier
	IdleTimeoutSec    *int
	TotalMemoryMB     int64
	UsedMemoryMB      int64
}

// ProxyInfo is the short-lived credential that authenticates traffic to an
// Assignment's backend (spec.md §3).
type ProxyInfo struct {
	URL        string
	Token      string
	IssuedAt   time.Time
	TTLSeconds int
}

// safetyMargin is the minimum buffer, per spec.md §3, subtracted from a
// ProxyInfo's expiry before it is considered unusable.
const safetyMargin = 30 * time.Second

// Valid reports whether p is still usable: now < issuedAt + ttl - safetyMargin.
func (p ProxyInfo) Valid(now time.Time) bool {
	if p.URL == "" || p.Token == "" {
		return false
	}
	expiry := p.IssuedAt.Add(time.Duration(p.TTLSeconds) * time.Second).Add(-safetyMargin)
	return now.Before(expiry)
}

// CcuInfo mirrors the CCU (compute-credit-unit) balance response.
type CcuInfo struct {
	BalanceSeconds int64
	PlanName       string
}

// UserInfo mirrors the authenticated-user response.
type UserInfo struct {
	Email string
	Name  string
}

// KernelInfo mirrors one entry from GET /api/kernels on the proxy.
type KernelInfo struct {
	ID           string
	Name         string
	LastActivity string
}

// SessionInfo mirrors one Jupyter session resource.
type SessionInfo struct {
	ID       string
	Path     string
	KernelID string
}

// PostAssignmentResult is the raw outcome of a postAssignment call, before
// the Assignment Negotiator (4.D) interprets Outcome into a typed error or
// a usable Assignment.
type PostAssignmentResult struct {
	Outcome          Outcome
	Assignment       Assignment
	HasRuntimeProxy  bool
	RuntimeProxyInfo ProxyInfo
}
