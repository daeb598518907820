package engine

import (
	"errors"
	"fmt"
)

// Setup loading errors.
var (
	ErrSetupNotFound  = errors.New("setup not found")
	ErrSetupMalformed = errors.New("setup malformed")
)

// Rule error codes. Every rejection the reducer can produce carries one
// of these codes plus a human-readable message.
const (
	CodeGameOver         = "game_over"
	CodeNotYourTurn      = "not_your_turn"
	CodePhaseNotAllowed  = "phase_not_allowed"
	CodeCombatInProgress = "combat_in_progress"
	CodeNoActiveCombat   = "no_active_combat"

	CodeUnknownUnit                  = "unknown_unit"
	CodeUnitNotPurchasable           = "unit_not_purchasable"
	CodeUnitNotOfFaction             = "unit_not_of_faction"
	CodeInsufficientResource         = "insufficient_resource"
	CodeCapitalLost                  = "capital_lost"
	CodeMobilizationCapacityExceeded = "mobilization_capacity_exceeded"

	CodeInvalidTerritory   = "invalid_territory"
	CodeNoUnits            = "no_units"
	CodeUnitNotFound       = "unit_not_found"
	CodeUnitNotOwned       = "unit_not_owned"
	CodeUnitAlreadyPending = "unit_already_pending"
	CodeUnreachable        = "unreachable"
	CodeInvalidChargeRoute = "invalid_charge_route"

	CodeNotAMobilizationCamp     = "not_a_mobilization_camp"
	CodeNotAStronghold           = "not_a_stronghold"
	CodeCampDestroyed            = "camp_destroyed"
	CodeInsufficientPurchased    = "insufficient_purchased"
	CodeExceedsMobilizationPower = "exceeds_mobilization_power"

	CodeNoAttackers               = "no_attackers"
	CodeNoDefenders               = "no_defenders"
	CodeCannotAttackOwn           = "cannot_attack_own"
	CodeCannotRetreatBeforeRolling = "cannot_retreat_before_rolling"
	CodeRetreatDestinationInvalid  = "retreat_destination_invalid"

	CodeNoCampPlacementOptions = "no_camp_placement_options"
	CodeCampAlreadyPlaced      = "camp_already_placed"
	CodeCampPlacementInvalid   = "camp_placement_invalid"

	CodeInvalidIndex = "invalid_index"
	CodeStateCorrupt = "state_corrupt"
)

// RuleError is a structured rejection from the reducer. Validation
// errors never mutate state; callers see the prior state unchanged.
type RuleError struct {
	Code    string
	Message string
}

func (e *RuleError) Error() string {
	return e.Message
}

func ruleErr(code, format string, args ...any) *RuleError {
	return &RuleError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// AsRuleError unwraps err into a *RuleError, or nil if it is not one.
func AsRuleError(err error) *RuleError {
	var re *RuleError
	if errors.As(err, &re) {
		return re
	}
	return nil
}
