package toolexecutor

import "strings"

// ToolCategory groups tools by the desktop capability they drive.
type ToolCategory string

const (
	CategoryPointer  ToolCategory = "pointer"
	CategoryKeyboard ToolCategory = "keyboard"
	CategoryScreen   ToolCategory = "screen"
	CategoryGeneral  ToolCategory = "general"
)

// categoryPrefix marks a policy entry that names a category instead of a tool.
const categoryPrefix = "category:"

// AllCategories returns all valid tool categories
func AllCategories() []ToolCategory {
	return []ToolCategory{
		CategoryPointer,
		CategoryKeyboard,
		CategoryScreen,
		CategoryGeneral,
	}
}

// IsValidCategory checks if a category is valid
func IsValidCategory(category string) bool {
	cat := ToolCategory(strings.ToLower(category))
	for _, valid := range AllCategories() {
		if cat == valid {
			return true
		}
	}
	return false
}

// parseCategoryEntry returns the category named by a "category:<name>" policy
// entry.
func parseCategoryEntry(entry string) (ToolCategory, bool) {
	if !strings.HasPrefix(entry, categoryPrefix) {
		return "", false
	}
	return ToolCategory(strings.ToLower(strings.TrimPrefix(entry, categoryPrefix))), true
}
