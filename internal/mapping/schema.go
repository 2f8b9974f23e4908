package mapping

// OutputSchema returns the JSON Schema (draft 2020-12 subset) a mapping
// result must satisfy. Optional fields accept null and unknown keys are allowed.
func OutputSchema() map[string]any {
	attribute := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"ItemId":     map[string]any{"type": "string"},
			"Section":    map[string]any{"type": "string"},
			"SubSection": optionalString(),
			"SubGroup":   optionalString(),
			"Service":    optionalString(),
		},
		"required": []string{"ItemId", "Section"},
	}

	requirement := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"Id":          map[string]any{"type": "string"},
			"Name":        map[string]any{"type": "string"},
			"Description": optionalString(),
			"Attributes":  map[string]any{"type": "array", "items": attribute},
			"Checks":      map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		},
		"required": []string{"Id", "Name", "Attributes", "Checks"},
	}

	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"Framework":    map[string]any{"type": "string"},
			"Name":         map[string]any{"type": "string"},
			"Version":      optionalString(),
			"Provider":     map[string]any{"type": "string"},
			"Description":  optionalString(),
			"Requirements": map[string]any{"type": "array", "items": requirement},
		},
		"required": []string{"Framework", "Name", "Provider", "Requirements"},
	}
}

func optionalString() map[string]any {
	return map[string]any{"type": []string{"string", "null"}}
}
