package logs

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// hiddenKeys are implied by the job log a line came from.
var hiddenKeys = map[string]struct{}{
	"ts":         {},
	"level":      {},
	"msg":        {},
	"job_id":     {},
	"episode_id": {},
	"worker":     {},
	"component":  {},
	"stage":      {},
}

// FormatLine renders one JSON log record as
// "<ts> LEVEL [stage] message key=value ...". Lines that are not JSON
// objects are returned unchanged.
func FormatLine(line string) string {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "{") {
		return line
	}
	var record map[string]any
	if err := json.Unmarshal([]byte(trimmed), &record); err != nil {
		return line
	}

	var b strings.Builder
	if ts, ok := record["ts"].(string); ok && ts != "" {
		b.WriteString(ts)
		b.WriteByte(' ')
	}
	level, _ := record["level"].(string)
	if level == "" {
		level = "info"
	}
	fmt.Fprintf(&b, "%-5s", strings.ToUpper(level))
	if stage, ok := record["stage"].(string); ok && stage != "" {
		fmt.Fprintf(&b, " [%s]", stage)
	}
	if msg, ok := record["msg"].(string); ok {
		b.WriteByte(' ')
		b.WriteString(msg)
	}

	keys := make([]string, 0, len(record))
	for key := range record {
		if _, skip := hiddenKeys[key]; !skip {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(&b, " %s=%s", key, formatValue(record[key]))
	}
	return b.String()
}

func formatValue(v any) string {
	switch value := v.(type) {
	case string:
		if value == "" || strings.ContainsAny(value, " \t\"=") {
			return fmt.Sprintf("%q", value)
		}
		return value
	case float64:
		if value == float64(int64(value)) {
			return fmt.Sprintf("%d", int64(value))
		}
		return fmt.Sprintf("%g", value)
	case nil:
		return "null"
	case map[string]any, []any:
		data, err := json.Marshal(value)
		if err != nil {
			return fmt.Sprint(value)
		}
		return string(data)
	default:
		return fmt.Sprint(value)
	}
}
