package supplier

import (
	"encoding/json"
	"strings"
)

// SupplyList is the list of products a supplier provides. It decodes from
// a JSON array or from a comma-separated string.
type SupplyList []string

func (l *SupplyList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*l = cleanSupplies(list)
		return nil
	}
	var joined string
	if err := json.Unmarshal(data, &joined); err != nil {
		return err
	}
	*l = cleanSupplies(strings.Split(joined, ","))
	return nil
}

// cleanSupplies trims entries and drops blanks and case-insensitive repeats.
func cleanSupplies(items []string) []string {
	out := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		trimmed := strings.TrimSpace(item)
		if trimmed == "" {
			continue
		}
		key := strings.ToLower(trimmed)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}
