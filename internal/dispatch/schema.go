package dispatch

import "sort"

type props map[string]interface{}

func object(p props, required ...string) map[string]interface{} {
	if p == nil {
		p = props{}
	}
	s := map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}(p),
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func str(description string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "description": description}
}

func integer(description string, def int) map[string]interface{} {
	return map[string]interface{}{"type": "integer", "description": description, "default": def}
}

func boolean(description string) map[string]interface{} {
	return map[string]interface{}{"type": "boolean", "description": description}
}

func anyObject(description string) map[string]interface{} {
	return map[string]interface{}{"type": "object", "description": description, "additionalProperties": true}
}

func stringList(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "array",
		"items":       map[string]interface{}{"type": "string"},
		"description": description,
	}
}

// filterSchema documents the keys accepted by parseCriteria.
func filterSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":        "object",
		"description": "Filter: writer, classification (class), status, type, product, within_days, overdue_only, due_year. Text filters are case-insensitive substring matches.",
		"properties": map[string]interface{}{
			"writer":         str("Writer substring"),
			"classification": str("Class substring, e.g. IIb"),
			"status":         str("Status substring"),
			"type":           str("Report type substring"),
			"product":        str("Product name substring"),
			"within_days":    integer("Due between today and today+N", 0),
			"overdue_only":   boolean("Only items whose due date has passed"),
			"due_year":       integer("Only items due in this calendar year", 0),
		},
		"additionalProperties": false,
	}
}

func sortedCopy(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}
