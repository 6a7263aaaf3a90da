package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"
)

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

const HistoryRoot = "history"

// BuildHistoryFilePath names the archive object for entries firstSeq..lastSeq
// flushed at flushedAt. instance separates processes sharing one bucket.
func BuildHistoryFilePath(instance string, flushedAt time.Time, firstSeq, lastSeq int64) (string, error) {
	if err := validatePathComponent(instance, "instance"); err != nil {
		return "", err
	}
	if firstSeq <= 0 || lastSeq < firstSeq {
		return "", fmt.Errorf("invalid sequence range %d..%d", firstSeq, lastSeq)
	}

	ts := flushedAt.UTC()
	return path.Join(
		HistoryRoot,
		instance,
		fmt.Sprintf("date=%04d-%02d-%02d", ts.Year(), ts.Month(), ts.Day()),
		fmt.Sprintf("hour=%02d", ts.Hour()),
		fmt.Sprintf("entries-%d-%012d-%012d.parquet", ts.UnixMilli(), firstSeq, lastSeq),
	), nil
}

// HistoryListPrefix is the key prefix under which BuildHistoryFilePath places
// objects for instance on the day of at. A zero at lists every day.
func HistoryListPrefix(instance string, at time.Time) (string, error) {
	if err := validatePathComponent(instance, "instance"); err != nil {
		return "", err
	}
	if at.IsZero() {
		return path.Join(HistoryRoot, instance) + "/", nil
	}
	ts := at.UTC()
	return path.Join(HistoryRoot, instance, fmt.Sprintf("date=%04d-%02d-%02d", ts.Year(), ts.Month(), ts.Day())) + "/", nil
}

// ValidateHistoryKey rejects keys outside the history tree.
func ValidateHistoryKey(key string) error {
	cleaned := path.Clean(strings.TrimPrefix(strings.TrimSpace(key), "/"))
	if !strings.HasPrefix(cleaned, HistoryRoot+"/") || !strings.HasSuffix(cleaned, ".parquet") {
		return fmt.Errorf("invalid history key: %q", key)
	}
	for _, segment := range strings.Split(cleaned, "/") {
		if segment == ".." {
			return fmt.Errorf("invalid history key: %q", key)
		}
	}
	return nil
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
