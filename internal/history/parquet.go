package history

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/sqlpilot/sqlpilot/internal/nl2sql"
)

type parquetEntry struct {
	Seq            int64  `parquet:"seq"`
	TraceID        string `parquet:"trace_id"`
	Question       string `parquet:"question"`
	SQLQuery       string `parquet:"sql_query"`
	ParametersJSON string `parquet:"parameters_json"`
	Explanation    string `parquet:"explanation"`
	Fallback       bool   `parquet:"fallback"`
	Outcome        string `parquet:"outcome"`
	Detail         string `parquet:"detail"`
	RowCount       int64  `parquet:"row_count"`
	AffectedRows   int64  `parquet:"affected_rows"`
	DurationMs     int64  `parquet:"duration_ms"`
	CreatedAtMs    int64  `parquet:"created_at_unix_ms"`
}

func EncodeParquet(entries []Entry) ([]byte, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("entries are required")
	}

	rows := make([]parquetEntry, 0, len(entries))
	for _, entry := range entries {
		params := entry.Parameters
		if params == nil {
			params = []nl2sql.Parameter{}
		}
		paramsJSON, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("encode parameters for entry %d: %w", entry.Seq, err)
		}
		rows = append(rows, parquetEntry{
			Seq:            entry.Seq,
			TraceID:        entry.TraceID,
			Question:       entry.Question,
			SQLQuery:       entry.SQLQuery,
			ParametersJSON: string(paramsJSON),
			Explanation:    entry.Explanation,
			Fallback:       entry.Fallback,
			Outcome:        entry.Outcome,
			Detail:         entry.Detail,
			RowCount:       int64(entry.RowCount),
			AffectedRows:   entry.AffectedRows,
			DurationMs:     entry.Duration.Milliseconds(),
			CreatedAtMs:    entry.CreatedAt.UnixMilli(),
		})
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[parquetEntry](buf)
	if _, err := writer.Write(rows); err != nil {
		return nil, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

func DecodeParquet(data []byte) ([]Entry, error) {
	rows, err := parquet.Read[parquetEntry](bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("read parquet rows: %w", err)
	}

	entries := make([]Entry, 0, len(rows))
	for _, row := range rows {
		var params []nl2sql.Parameter
		if row.ParametersJSON != "" {
			if err := json.Unmarshal([]byte(row.ParametersJSON), &params); err != nil {
				return nil, fmt.Errorf("decode parameters for entry %d: %w", row.Seq, err)
			}
		}
		entries = append(entries, Entry{
			Seq:          row.Seq,
			TraceID:      row.TraceID,
			Question:     row.Question,
			SQLQuery:     row.SQLQuery,
			Parameters:   params,
			Explanation:  row.Explanation,
			Fallback:     row.Fallback,
			Outcome:      row.Outcome,
			Detail:       row.Detail,
			RowCount:     int(row.RowCount),
			AffectedRows: row.AffectedRows,
			Duration:     time.Duration(row.DurationMs) * time.Millisecond,
			CreatedAt:    time.UnixMilli(row.CreatedAtMs).UTC(),
		})
	}
	return entries, nil
}
