package source

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/hyperjump/simgroup/internal/models"
)

// parseJSON reads an array of flat objects. Known keys fill the record fields and
// other scalar keys become attributes. A nested "attributes" object is flattened;
// any other nested value is rejected.
func parseJSON(content []byte) ([]models.SourceRecord, error) {
	var raw []map[string]any
	if err := json.Unmarshal(content, &raw); err != nil {
		return nil, fmt.Errorf("decode JSON records: %w", err)
	}
	recs := make([]models.SourceRecord, 0, len(raw))
	for i, obj := range raw {
		var rec models.SourceRecord
		for k, v := range obj {
			if nested, ok := v.(map[string]any); ok && k == "attributes" {
				for ak, av := range nested {
					s, err := scalarString(av)
					if err != nil {
						return nil, fmt.Errorf("record %d attribute %q: %w", i, ak, err)
					}
					rec.SetField(normalizeHeader(ak), s)
				}
				continue
			}
			s, err := scalarString(v)
			if err != nil {
				return nil, fmt.Errorf("record %d field %q: %w", i, k, err)
			}
			rec.SetField(normalizeHeader(k), s)
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func scalarString(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "", nil
	case string:
		return x, nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(x), nil
	default:
		return "", fmt.Errorf("unsupported value type %T", v)
	}
}
