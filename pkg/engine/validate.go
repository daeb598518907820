package engine

// ValidationResult is the outcome of a dry-run validation.
type ValidationResult struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
	Code  string `json:"code,omitempty"`
}

// ValidateAction checks whether an action would succeed without
// committing anything. It runs the reducer against a clone and
// discards the result, so the validator and the reducer can never
// disagree.
func ValidateAction(gs *GameState, action Action, defs *Defs) ValidationResult {
	_, _, err := Apply(gs, action, defs)
	if err == nil {
		return ValidationResult{Valid: true}
	}
	result := ValidationResult{Valid: false, Error: err.Error()}
	if re := AsRuleError(err); re != nil {
		result.Code = re.Code
	}
	return result
}
