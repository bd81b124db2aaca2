package toolexecutor

import (
	"fmt"
	"strings"
)

// ToolPolicy defines which tools the model may call. Entries are tool names,
// "*" or "category:<name>".
type ToolPolicy struct {
	Allow []string `json:"allow" mapstructure:"allow"`
	Deny  []string `json:"deny" mapstructure:"deny"` // overrides allow
}

// Violation types reported by Evaluate.
const (
	ViolationDenyList       = "deny_list"
	ViolationNotInAllowList = "not_in_allow_list"
)

// EvaluationResult is the outcome of a policy check.
type EvaluationResult struct {
	Allowed       bool
	Reason        string
	ViolationType string
}

// IsToolAllowed checks a tool by name only.
func (tp *ToolPolicy) IsToolAllowed(toolName string) bool {
	return tp.Evaluate(toolName, "").Allowed
}

// Evaluate checks a tool against the policy. A nil policy allows everything;
// an empty allow list allows nothing.
func (tp *ToolPolicy) Evaluate(toolName string, category ToolCategory) EvaluationResult {
	if tp == nil {
		return EvaluationResult{Allowed: true, Reason: "no policy configured"}
	}

	if matchesAny(tp.Deny, toolName, category) {
		return EvaluationResult{
			Reason:        fmt.Sprintf("tool '%s' is in deny list", toolName),
			ViolationType: ViolationDenyList,
		}
	}
	if matchesAny(tp.Allow, toolName, category) {
		return EvaluationResult{Allowed: true, Reason: "allowed by policy"}
	}
	return EvaluationResult{
		Reason:        fmt.Sprintf("tool '%s' is not in allow list", toolName),
		ViolationType: ViolationNotInAllowList,
	}
}

// Validate rejects entries naming unknown categories.
func (tp *ToolPolicy) Validate() error {
	if tp == nil {
		return nil
	}
	for _, entry := range append(append([]string{}, tp.Allow...), tp.Deny...) {
		if strings.TrimSpace(entry) == "" {
			return fmt.Errorf("tool policy contains an empty entry")
		}
		if cat, ok := parseCategoryEntry(entry); ok && !IsValidCategory(string(cat)) {
			return fmt.Errorf("tool policy names unknown category %q", cat)
		}
	}
	return nil
}

func matchesAny(entries []string, toolName string, category ToolCategory) bool {
	for _, entry := range entries {
		if entry == "*" || entry == toolName {
			return true
		}
		if cat, ok := parseCategoryEntry(entry); ok && category != "" && cat == category {
			return true
		}
	}
	return false
}
