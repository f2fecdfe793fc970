package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"taskctl/internal/param"
	"taskctl/internal/schedule"
	"taskctl/internal/task"
)

// DecodeTaskList parses a ListTasks reply. The daemon sometimes wraps the
// array as a one-element array holding its JSON text; that form is
// unwrapped.
func DecodeTaskList(raw []byte) ([]json.RawMessage, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, nil
	}
	// the whole reply may itself be a JSON string
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("decode task list: %w", err)
		}
		return DecodeTaskList([]byte(s))
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode task list: %w", err)
	}
	if len(items) == 1 {
		item := bytes.TrimSpace(items[0])
		if len(item) > 0 && item[0] == '"' {
			var inner string
			if err := json.Unmarshal(item, &inner); err != nil {
				return nil, fmt.Errorf("decode task list: %w", err)
			}
			return DecodeTaskList([]byte(inner))
		}
	}
	return items, nil
}

type wireRecord struct {
	Name       string          `json:"name"`
	Template   string          `json:"template"`
	Env        json.RawMessage `json:"env"`
	Parameters json.RawMessage `json:"parameters"`
	Schedule   json.RawMessage `json:"schedule"`
	Notes      string          `json:"notes"`
	Scope      string          `json:"scope"`
	Unit       string          `json:"unit"`
}

// decodeRecord turns one list element into a Record. Only a structurally
// broken element is an error; missing fields are left for the caller.
func decodeRecord(raw json.RawMessage, scope task.Scope) (Record, error) {
	var w wireRecord
	if err := json.Unmarshal(raw, &w); err != nil {
		return Record{}, fmt.Errorf("decode task record: %w", err)
	}
	envRaw := w.Env
	if len(bytes.TrimSpace(envRaw)) == 0 {
		envRaw = w.Parameters
	}
	env, err := decodeEnv(envRaw)
	if err != nil {
		return Record{}, err
	}
	sched, err := decodeSchedule(w.Schedule)
	if err != nil {
		return Record{}, err
	}
	rec := Record{
		Name:     strings.TrimSpace(w.Name),
		Template: strings.TrimSpace(w.Template),
		Env:      env,
		Schedule: sched,
		Notes:    w.Notes,
		Scope:    scope,
		Unit:     w.Unit,
	}
	if w.Scope != "" {
		rec.Scope = task.ParseScope(w.Scope)
	}
	return rec, nil
}

// decodeEnv accepts an object, a list of KEY=VALUE strings, or env text.
func decodeEnv(raw json.RawMessage) (map[string]string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return map[string]string{}, nil
	}
	switch raw[0] {
	case '{':
		var m map[string]any
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("decode env: %w", err)
		}
		out := make(map[string]string, len(m))
		for k, v := range m {
			out[k] = scalar(v)
		}
		return out, nil
	case '[':
		var lines []string
		if err := json.Unmarshal(raw, &lines); err != nil {
			return nil, fmt.Errorf("decode env: %w", err)
		}
		return param.ParseEnvLines(lines), nil
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("decode env: %w", err)
		}
		return param.ParseEnv(s), nil
	}
	return nil, fmt.Errorf("decode env: unexpected %q", raw[:1])
}

func scalar(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		b, _ := json.Marshal(x)
		return string(b)
	}
}

// decodeSchedule accepts an object or its JSON text.
func decodeSchedule(raw json.RawMessage) (schedule.Schedule, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return schedule.Schedule{}, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return schedule.Schedule{}, fmt.Errorf("decode schedule: %w", err)
		}
		if strings.TrimSpace(s) == "" {
			return schedule.Schedule{}, nil
		}
		raw = []byte(s)
	}
	return schedule.Parse(raw)
}
