package query

import (
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/sqlpilot/sqlpilot/internal/nl2sql"
)

// Bind converts generated parameters into Params. It never fails: a number
// that does not parse keeps its raw text so the store reports the mismatch.
// Later parameters overwrite earlier ones with the same name.
func Bind(sqlTemplate string, parameters []nl2sql.Parameter) (string, Params) {
	return BindWithLogger(sqlTemplate, parameters, nil)
}

func BindWithLogger(sqlTemplate string, parameters []nl2sql.Parameter, logger *slog.Logger) (string, Params) {
	params := make(Params, len(parameters))
	for _, parameter := range parameters {
		switch parameter.Type {
		case nl2sql.ParamNumber:
			value, err := parseDecimal(parameter.Value)
			if err != nil {
				if logger != nil {
					logger.Warn("could not convert parameter to number",
						slog.String("parameter", parameter.Name),
						slog.String("value", parameter.Value))
				}
				params[parameter.Name] = parameter.Value
				continue
			}
			params[parameter.Name] = value
		case nl2sql.ParamDate:
			params[parameter.Name] = unquoteDate(parameter.Value)
		default:
			params[parameter.Name] = parameter.Value
		}
	}
	return sqlTemplate, params
}

// parseDecimal accepts finite decimal literals only. Hex floats and the
// inf/nan spellings that strconv understands keep their raw text.
func parseDecimal(raw string) (float64, error) {
	text := strings.TrimSpace(raw)
	if strings.ContainsAny(text, "xX") {
		return 0, strconv.ErrSyntax
	}
	value, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, strconv.ErrRange
	}
	return value, nil
}

func unquoteDate(value string) string {
	if len(value) >= 2 && strings.HasPrefix(value, "'") && strings.HasSuffix(value, "'") {
		return value[1 : len(value)-1]
	}
	return value
}
