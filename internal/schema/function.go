package schema

const GenerateSQLFunctionName = "generate_sql_query"

// GenerateSQLFunction is the tool definition offered to function-calling
// backends. Its arguments decode into sql_query, parameters and explanation.
func GenerateSQLFunction() map[string]any {
	return map[string]any{
		"name":        GenerateSQLFunctionName,
		"description": "Generates an SQL query based on a natural language request",
		"parameters": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"sql_query": map[string]any{
					"type":        "string",
					"description": "The SQL query string that corresponds to the natural language request",
				},
				"parameters": map[string]any{
					"type":        "array",
					"description": "List of parameters extracted from the query that need to be filled in",
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"name": map[string]any{
								"type":        "string",
								"description": "Parameter name",
							},
							"value": map[string]any{
								"type":        "string",
								"description": "Parameter value extracted from the query",
							},
							"type": map[string]any{
								"type":        "string",
								"description": "Data type of the parameter (string, number, date)",
								"enum":        []string{"string", "number", "date"},
							},
						},
						"required": []string{"name", "value", "type"},
					},
				},
				"explanation": map[string]any{
					"type":        "string",
					"description": "Explanation of what the SQL query does",
				},
			},
			"required": []string{"sql_query", "parameters", "explanation"},
		},
	}
}
