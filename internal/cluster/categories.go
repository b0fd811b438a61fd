package cluster

import "github.com/chirino/memory-service/internal/model"

// defaultCategories mirrors the original canister's predefined content
// classification registry. It is fixed at process start; there is no API
// to add categories at runtime.
var defaultCategories = []model.Category{
	{
		ID:                  "tech",
		Name:                "Technology",
		Description:         "Technical information, programming, software, and tech concepts",
		Keywords:            []string{"programming", "software", "technology", "code", "algorithm", "database", "api", "framework", "library"},
		ConfidenceThreshold: 0.7,
		Subcategories:       []string{"programming", "infrastructure"},
	},
	{
		ID:                  "business",
		Name:                "Business",
		Description:         "Business concepts, strategy, management, and professional topics",
		Keywords:            []string{"business", "strategy", "management", "marketing", "finance", "company", "revenue", "investment", "market"},
		ConfidenceThreshold: 0.7,
		Subcategories:       []string{"strategy", "finance"},
	},
	{
		ID:                  "personal",
		Name:                "Personal",
		Description:         "Personal notes, thoughts, experiences, and private information",
		Keywords:            []string{"personal", "private", "diary", "thought", "idea", "reflection", "experience", "memory", "feeling"},
		ConfidenceThreshold: 0.6,
		Subcategories:       []string{"thoughts", "experiences"},
	},
	{
		ID:                  "reference",
		Name:                "Reference",
		Description:         "Reference materials, documentation, and factual information",
		Keywords:            []string{"reference", "documentation", "guide", "manual", "fact", "definition", "instruction", "tutorial", "how-to"},
		ConfidenceThreshold: 0.7,
		Subcategories:       []string{"docs", "tutorials"},
	},
}

// Categories returns the fixed content-classification registry, supplementing
// the distilled spec's clustering surface with the accessor the original
// canister exposed.
func Categories() []model.Category {
	out := make([]model.Category, len(defaultCategories))
	copy(out, defaultCategories)
	return out
}
