package model

import "fmt"

// ValidationError marks malformed input rejected before any external call.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// NewValidationError builds a ValidationError with a formatted message.
func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// FeatureGateError marks a capability the user's subscription tier does
// not unlock. RequiredTier carries the upgrade target for the caller.
type FeatureGateError struct {
	Feature      string
	Tier         string
	RequiredTier string
}

func (e *FeatureGateError) Error() string {
	return fmt.Sprintf("%s requires the %s tier or higher (current: %s)", e.Feature, e.RequiredTier, e.Tier)
}

// BudgetExceededError marks an affordability check that failed. No cost is
// incurred when this is returned.
type BudgetExceededError struct {
	Reason    string
	Remaining BudgetSnapshot
}

func (e *BudgetExceededError) Error() string { return e.Reason }

// ProviderError marks an external API failure (rate limit, auth failure,
// outage). Callers should degrade rather than abort where a fallback
// exists.
type ProviderError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// FatalJobError marks an unexpected failure in a background job outside
// the guarded AI stage; the job transitions to failed with no retry.
type FatalJobError struct {
	Stage string
	Err   error
}

func (e *FatalJobError) Error() string {
	return fmt.Sprintf("job failed at %s: %v", e.Stage, e.Err)
}

func (e *FatalJobError) Unwrap() error { return e.Err }
