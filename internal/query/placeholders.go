package query

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/sqlpilot/sqlpilot/internal/sqlguard"
)

// Style is how a driver expects named parameters.
type Style int

const (
	// StyleNamed keeps :name in the SQL and passes sql.Named args (sqlite).
	StyleNamed Style = iota
	// StyleDollarNamed rewrites to $name with sql.Named args (duckdb).
	StyleDollarNamed
	// StyleDollarPositional rewrites to $1..$n with positional args (pgx).
	StyleDollarPositional
)

func StyleForDriver(driver string) (Style, error) {
	switch driver {
	case "sqlite", "sqlite3":
		return StyleNamed, nil
	case "duckdb":
		return StyleDollarNamed, nil
	case "postgres", "pgx":
		return StyleDollarPositional, nil
	default:
		return 0, fmt.Errorf("unsupported driver %q", driver)
	}
}

// Render rewrites :name placeholders for style and returns matching driver
// args. Placeholders inside literals, quoted identifiers and comments are left
// alone. A placeholder without a value in params is an error.
func Render(sqlText string, params Params, style Style) (string, []any, error) {
	var (
		out       strings.Builder
		args      []any
		positions = map[string]int{}
		seen      = map[string]bool{}
	)
	out.Grow(len(sqlText))

	for _, token := range sqlguard.Tokenize(sqlText) {
		if token.Kind != sqlguard.TokenPlaceholder {
			out.WriteString(token.Text)
			continue
		}
		name := token.Name()
		value, ok := params[name]
		if !ok {
			return "", nil, fmt.Errorf("missing value for parameter %q", name)
		}

		switch style {
		case StyleDollarPositional:
			index, bound := positions[name]
			if !bound {
				args = append(args, value)
				index = len(args)
				positions[name] = index
			}
			out.WriteString("$" + strconv.Itoa(index))
		case StyleDollarNamed:
			out.WriteString("$" + name)
			if !seen[name] {
				seen[name] = true
				args = append(args, sql.Named(name, value))
			}
		default:
			out.WriteString(token.Text)
			if !seen[name] {
				seen[name] = true
				args = append(args, sql.Named(name, value))
			}
		}
	}
	return out.String(), args, nil
}
