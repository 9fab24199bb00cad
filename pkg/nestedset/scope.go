// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

package nestedset

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ScopeField is one (name, value) pair of a scope tuple.
type ScopeField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Scope partitions the stored nodes into independent forests. Two nodes are
// only compared, reordered or validated against each other when their scopes
// are equal. The empty scope is the single global forest.
type Scope []ScopeField

// FormatScopeValue renders an attribute value the way it appears in a scope.
// Numbers print in plain decimal whatever their Go type, so an int64 set by a
// caller and the float64 it decodes back into after storage agree.
func FormatScopeValue(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.FormatInt(int64(v), 10)
	case int8:
		return strconv.FormatInt(int64(v), 10)
	case int16:
		return strconv.FormatInt(int64(v), 10)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case uint:
		return strconv.FormatUint(uint64(v), 10)
	case uint8:
		return strconv.FormatUint(uint64(v), 10)
	case uint16:
		return strconv.FormatUint(uint64(v), 10)
	case uint32:
		return strconv.FormatUint(uint64(v), 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

// Equal compares two scopes field by field, in order.
func (s Scope) Equal(other Scope) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Key returns the canonical encoding of the scope, usable as a map or bucket key.
// ParseScopeKey reverses it.
func (s Scope) Key() string {
	pairs := make([][2]string, len(s))
	for i, f := range s {
		pairs[i] = [2]string{f.Name, f.Value}
	}
	data, _ := json.Marshal(pairs)
	return string(data)
}

// Value returns the value of the named field and whether it is present.
func (s Scope) Value(name string) (string, bool) {
	for _, f := range s {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

func (s Scope) String() string {
	if len(s) == 0 {
		return "<global>"
	}
	parts := make([]string, len(s))
	for i, f := range s {
		parts[i] = f.Name + "=" + f.Value
	}
	return strings.Join(parts, ",")
}

// ParseScopeKey decodes a key produced by Scope.Key.
func ParseScopeKey(key string) (Scope, error) {
	var pairs [][2]string
	if err := json.Unmarshal([]byte(key), &pairs); err != nil {
		return nil, fmt.Errorf("failed to parse scope key %q: %w", key, err)
	}
	scope := make(Scope, len(pairs))
	for i, p := range pairs {
		scope[i] = ScopeField{Name: p[0], Value: p[1]}
	}
	return scope, nil
}
