package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve_WildcardFallback(t *testing.T) {
	action, name := Resolve(RiskElevated, "UnknownType")
	assert.Equal(t, ActionLogOnly, action)
	assert.Equal(t, "Elevated.default", name)
}

func TestResolve_SpecificBotTypeOverridesWildcard(t *testing.T) {
	action, name := Resolve(RiskMedium, "SearchEngine")
	assert.Equal(t, ActionAllow, action)
	assert.Equal(t, "Medium.SearchEngine", name)
}

func TestResolve_UnknownBandFallsBackToDefaultChallenge(t *testing.T) {
	action, name := Resolve(RiskBand("NotARealBand"), "")
	assert.Equal(t, ActionChallenge, action)
	assert.Equal(t, defaultPolicyName, name)
}

func TestRiskBand_Boost(t *testing.T) {
	assert.Equal(t, RiskLow, RiskVeryLow.Boost())
	assert.Equal(t, RiskVeryHigh, RiskHigh.Boost())
	assert.Equal(t, RiskVeryHigh, RiskVeryHigh.Boost(), "already at the top band")
}

func TestClampAtMost(t *testing.T) {
	assert.Equal(t, ActionThrottle, ClampAtMost(ActionBlock, ActionThrottle))
	assert.Equal(t, ActionAllow, ClampAtMost(ActionAllow, ActionThrottle), "lower-ranked action passes through unchanged")
	assert.Equal(t, ActionThrottle, ClampAtMost(ActionThrottle, ActionThrottle))
}

func TestResolve_HighRiskScriptingLibraryThrottledNotBlocked(t *testing.T) {
	action, _ := Resolve(RiskHigh, "ScriptingLibrary")
	assert.Equal(t, ActionThrottle, action)
}

func TestResolve_VeryHighSecurityScannerBlocked(t *testing.T) {
	action, name := Resolve(RiskVeryHigh, "SecurityScanner")
	assert.Equal(t, ActionBlock, action)
	assert.Equal(t, "VeryHigh.SecurityScanner", name)
}
