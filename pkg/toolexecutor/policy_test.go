package toolexecutor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToolPolicy_Evaluate(t *testing.T) {
	tests := []struct {
		name      string
		policy    *ToolPolicy
		tool      string
		category  ToolCategory
		allowed   bool
		violation string
	}{
		{"nil policy allows all", nil, "click", CategoryPointer, true, ""},
		{"wildcard allows", &ToolPolicy{Allow: []string{"*"}}, "click", CategoryPointer, true, ""},
		{"deny overrides allow", &ToolPolicy{Allow: []string{"*"}, Deny: []string{"*"}}, "click", CategoryPointer, false, ViolationDenyList},
		{"specific allow", &ToolPolicy{Allow: []string{"click"}}, "click", CategoryPointer, true, ""},
		{"not in allow list", &ToolPolicy{Allow: []string{"click"}}, "type_text", CategoryKeyboard, false, ViolationNotInAllowList},
		{"empty allow list denies", &ToolPolicy{}, "click", CategoryPointer, false, ViolationNotInAllowList},
		{"category allow", &ToolPolicy{Allow: []string{"category:keyboard"}}, "press_keys", CategoryKeyboard, true, ""},
		{"category deny", &ToolPolicy{Allow: []string{"*"}, Deny: []string{"category:Keyboard"}}, "press_keys", CategoryKeyboard, false, ViolationDenyList},
		{"category entry needs a category", &ToolPolicy{Allow: []string{"category:pointer"}}, "click", "", false, ViolationNotInAllowList},
	}

	for _, tt := range tests {
		t.Run("should handle "+tt.name, func(t *testing.T) {
			result := tt.policy.Evaluate(tt.tool, tt.category)
			assert.Equal(t, tt.allowed, result.Allowed)
			assert.Equal(t, tt.violation, result.ViolationType)
			assert.NotEmpty(t, result.Reason)
		})
	}
}

func TestToolPolicy_IsToolAllowed(t *testing.T) {
	policy := &ToolPolicy{Allow: []string{"*"}, Deny: []string{"type_text"}}

	assert.True(t, policy.IsToolAllowed("click"))
	assert.False(t, policy.IsToolAllowed("type_text"))
}

func TestToolPolicy_Validate(t *testing.T) {
	assert.NoError(t, (*ToolPolicy)(nil).Validate())
	assert.NoError(t, (&ToolPolicy{Allow: []string{"*", "category:screen"}}).Validate())
	assert.Error(t, (&ToolPolicy{Deny: []string{"category:shell"}}).Validate())
	assert.Error(t, (&ToolPolicy{Allow: []string{" "}}).Validate())
}

func TestIsValidCategory(t *testing.T) {
	tests := []struct {
		category string
		want     bool
	}{
		{"pointer", true},
		{"keyboard", true},
		{"screen", true},
		{"general", true},
		{"SCREEN", true},
		{"shell", false},
		{"", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, IsValidCategory(tt.category), tt.category)
	}
}
