package storage

import (
	"fmt"
)

// SegmentFields is the fixed, ordered list of customer attributes the
// segmented aggregation iterates over. The order is stable so repeated runs
// produce segment rows in the same order.
var SegmentFields = []string{
	"city",
	"country",
	"gender",
	"language",
	"last_login",
	"tags",
	"mailing_lists",
}

// Segment identifies one customer segment: the customers of an integration
// whose rendered attribute value equals Value.
type Segment struct {
	Field string
	Value string
}

// Descriptor renders the stored segment label, e.g. "city: Helsinki".
func (s Segment) Descriptor() string {
	return fmt.Sprintf("%s: %s", s.Field, s.Value)
}

// segmentValueExpr returns the SQL expression rendering a customer attribute
// to its segment value, against the customers table aliased as c. NULL and
// empty values render as "Unknown" so every customer lands in exactly one
// segment per field.
func segmentValueExpr(field string) (string, error) {
	switch field {
	case "city", "country", "gender", "language":
		return fmt.Sprintf("COALESCE(NULLIF(c.%s, ''), 'Unknown')", field), nil
	case "last_login":
		return "COALESCE(to_char(c.last_login, 'YYYY-MM-DD HH24:MI:SS'), 'Unknown')", nil
	case "tags", "mailing_lists":
		return fmt.Sprintf("CASE WHEN c.%s IS NULL OR c.%s = '[]'::jsonb THEN 'Unknown' ELSE c.%s::text END", field, field, field), nil
	default:
		return "", fmt.Errorf("unknown segmentation field: %s", field)
	}
}
