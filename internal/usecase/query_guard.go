package usecase

import (
	"fmt"
	"strings"

	"github.com/semmidev/dbtoolkit/internal/domain"
)

type Validation struct {
	Safe   bool   `json:"safe"`
	Reason string `json:"error,omitempty"`
}

// ValidateQuery blocks destructive statements with plain substring checks
// on the upper-cased text. A WHERE anywhere in the statement satisfies the
// DELETE and UPDATE guards; this is not a parse.
func ValidateQuery(query string, dialect domain.DBType) Validation {
	upper := strings.ToUpper(strings.TrimSpace(query))
	hasWhere := strings.Contains(upper, "WHERE")

	blocked := []string{"DROP DATABASE", "DROP SCHEMA", "TRUNCATE"}
	if !hasWhere {
		blocked = append(blocked, "DELETE FROM", "UPDATE")
	}

	for _, keyword := range blocked {
		if strings.Contains(upper, keyword) {
			return Validation{Reason: fmt.Sprintf("Dangerous operation detected: %s. Use with caution.", keyword)}
		}
	}

	if dialect == domain.DBTypeMongoDB {
		trimmed := strings.TrimSpace(query)
		if !strings.HasPrefix(trimmed, "{") && !strings.HasPrefix(trimmed, "db.") {
			return Validation{Reason: "MongoDB query must be valid JSON or db.collection syntax"}
		}
	}

	return Validation{Safe: true}
}

// Paginate appends LIMIT/OFFSET to SQL that has no LIMIT of its own. MongoDB
// text and unknown dialects pass through; the Mongo connector pages itself.
func Paginate(query string, dialect domain.DBType, limit, offset int) string {
	if dialect == domain.DBTypeMongoDB {
		return query
	}
	if strings.Contains(strings.ToUpper(query), "LIMIT") {
		return query
	}

	switch dialect {
	case domain.DBTypeSQLite, domain.DBTypePostgreSQL, domain.DBTypeMySQL:
		return fmt.Sprintf("%s LIMIT %d OFFSET %d", query, limit, offset)
	}
	return query
}
