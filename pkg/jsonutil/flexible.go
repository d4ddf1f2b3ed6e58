// Package jsonutil decodes loosely typed JSON produced by the oracle.
package jsonutil

import (
	"encoding/json"
	"strconv"
	"strings"
)

// FlexibleStringValue converts a json.RawMessage to a string, accepting numbers
// and booleans where a string was asked for. Returns "" for null or empty input.
func FlexibleStringValue(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if i, err := n.Int64(); err == nil {
			return strconv.FormatInt(i, 10)
		}
		if f, err := n.Float64(); err == nil {
			return strconv.FormatFloat(f, 'g', -1, 64)
		}
		return n.String()
	}

	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return strconv.FormatBool(b)
	}

	return string(raw)
}

// FlexibleBoolValue accepts true/false as booleans or as strings ("yes"/"no" too).
// Anything else is false.
func FlexibleBoolValue(raw json.RawMessage) bool {
	switch strings.ToLower(strings.TrimSpace(FlexibleStringValue(raw))) {
	case "true", "yes", "1":
		return true
	default:
		return false
	}
}

// FlexibleStringList accepts an array of scalars or a single scalar.
// Null and empty values are dropped; the result is never nil.
func FlexibleStringList(raw json.RawMessage) []string {
	out := []string{}
	if len(raw) == 0 || string(raw) == "null" {
		return out
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		if s := FlexibleStringValue(raw); s != "" {
			out = append(out, s)
		}
		return out
	}
	for _, item := range items {
		if s := FlexibleStringValue(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}
