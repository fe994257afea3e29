package colabapi

import "strings"

// Two wire encodings for subscription tier exist upstream: a numeric
// "ColabSubscriptionTier" (classic API) and a string
// "ColabGapiSubscriptionTier" (GAPI-flavored API). Both collapse to the same
// closed SubscriptionTier enum. Each normalizer is idempotent: running an
// already-canonical value back through it returns the same value
// (spec.md §8 invariant 7), since canonical strings are themselves valid
// keys in the lookup tables below.

var numericTierTable = map[string]SubscriptionTier{
	"0": TierNone,
	"1": TierPro,
	"2": TierProPlus,
	"NONE":     TierNone,
	"PRO":      TierPro,
	"PRO_PLUS": TierProPlus,
}

var gapiTierTable = map[string]SubscriptionTier{
	"subscription_tier_none":      TierNone,
	"none":                        TierNone,
	"subscription_tier_pro":       TierPro,
	"pro":                         TierPro,
	"subscription_tier_pro_plus":  TierProPlus,
	"pro_plus":                    TierProPlus,
	"proplus":                     TierProPlus,
}

// NormalizeSubscriptionTierNumeric normalizes the classic numeric-coded
// ColabSubscriptionTier wire value.
func NormalizeSubscriptionTierNumeric(raw string) SubscriptionTier {
	if t, ok := numericTierTable[strings.TrimSpace(raw)]; ok {
		return t
	}
	return TierNone
}

// NormalizeSubscriptionTierGapi normalizes the string-coded
// ColabGapiSubscriptionTier wire value.
func NormalizeSubscriptionTierGapi(raw string) SubscriptionTier {
	key := strings.ToLower(strings.TrimSpace(raw))
	if t, ok := gapiTierTable[key]; ok {
		return t
	}
	// Idempotence: canonical values pass straight through the lowercase
	// lookup above already (NONE/PRO/PRO_PLUS all present as keys), so
	// reaching here means a genuinely unrecognized value.
	return TierNone
}

var variantTable = map[string]Variant{
	"default":            VariantDefault,
	"none":               VariantDefault,
	"compute_default":    VariantDefault,
	"accelerator_none":   VariantDefault,
	"gpu":                VariantGPU,
	"compute_gpu":        VariantGPU,
	"accelerator_gpu":    VariantGPU,
	"tpu":                VariantTPU,
	"compute_tpu":        VariantTPU,
	"accelerator_tpu":    VariantTPU,
}

// NormalizeVariant collapses any recognized wire spelling of accelerator
// variant to the closed {DEFAULT, GPU, TPU} enum. Unrecognized input
// defaults to DEFAULT, matching upstream's own fallback for omitted fields.
func NormalizeVariant(raw string) Variant {
	key := strings.ToLower(strings.TrimSpace(raw))
	if v, ok := variantTable[key]; ok {
		return v
	}
	return VariantDefault
}

var shapeTable = map[string]MachineShape{
	"standard":         ShapeStandard,
	"machine_standard": ShapeStandard,
	"highmem":          ShapeHighmem,
	"high_mem":         ShapeHighmem,
	"machine_highmem":  ShapeHighmem,
}

// NormalizeMachineShape collapses any recognized wire spelling of machine
// shape to the closed {STANDARD, HIGHMEM} enum.
func NormalizeMachineShape(raw string) MachineShape {
	key := strings.ToLower(strings.TrimSpace(raw))
	if s, ok := shapeTable[key]; ok {
		return s
	}
	return ShapeStandard
}

var outcomeTable = map[string]Outcome{
	"undefined_outcome":                OutcomeUndefined,
	"quota_denied_requested_variants":  OutcomeQuotaDeniedVariant,
	"quota_exceeded_usage_time":        OutcomeQuotaExceededUsage,
	"success":                          OutcomeSuccess,
	"denylisted":                       OutcomeDenylisted,
}

// NormalizeOutcome collapses a wire outcome string to the closed enum
// defined in spec.md §6. Unrecognized values normalize to
// UNDEFINED_OUTCOME rather than erroring, since the Assignment Negotiator
// treats any non-SUCCESS outcome as a failure regardless of which one.
func NormalizeOutcome(raw string) Outcome {
	key := strings.ToLower(strings.TrimSpace(raw))
	if o, ok := outcomeTable[key]; ok {
		return o
	}
	return OutcomeUndefined
}
