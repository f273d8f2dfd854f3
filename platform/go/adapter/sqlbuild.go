package adapter

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"
)

var identifierPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// NormalizeIdentifier trims the input and enforces a lowercase snake_case
// identifier that is safe to embed in SQL.
func NormalizeIdentifier(input string) (string, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "", errors.New("identifier is required")
	}

	if !identifierPattern.MatchString(trimmed) {
		return "", fmt.Errorf("invalid identifier %q: must match ^[a-z][a-z0-9_]*$", trimmed)
	}

	return trimmed, nil
}

// SortedKeys returns map keys in a stable order so generated SQL is deterministic.
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// PlaceholderFunc renders the i-th (1-based) bind placeholder for the target engine.
type PlaceholderFunc func(i int) string

// BuildWhere renders an AND-joined equality clause for filter, appending bind
// arguments to args. Slice values become IN lists.
func BuildWhere(filter Filter, args []any, next PlaceholderFunc) (string, []any, error) {
	if len(filter) == 0 {
		return "", args, nil
	}

	clauses := make([]string, 0, len(filter))
	for _, key := range SortedKeys(filter) {
		column, err := NormalizeIdentifier(key)
		if err != nil {
			return "", nil, err
		}

		value := filter[key]
		rv := reflect.ValueOf(value)
		if value != nil && (rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array) && rv.Type().Elem().Kind() != reflect.Uint8 {
			if rv.Len() == 0 {
				return "", nil, fmt.Errorf("empty IN list for column %q", column)
			}
			holders := make([]string, 0, rv.Len())
			for i := 0; i < rv.Len(); i++ {
				args = append(args, rv.Index(i).Interface())
				holders = append(holders, next(len(args)))
			}
			clauses = append(clauses, fmt.Sprintf("%s IN (%s)", column, strings.Join(holders, ", ")))
			continue
		}

		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf("%s = %s", column, next(len(args))))
	}

	return " WHERE " + strings.Join(clauses, " AND "), args, nil
}
