// Copyright 2025 Plansight
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package vectordb

import (
	"encoding/json"
	"fmt"
)

const (
	maxStringLen   = 2000
	maxListLen     = 100
	maxFlattenKeys = 5
)

// SanitizeMetadata normalizes metadata to the constraints shared by
// the supported backends: values must be strings, numbers, booleans or
// lists of strings; strings truncate to 2000 characters; lists cap at
// 100 entries; small nested maps flatten with a key prefix, larger
// ones serialize to JSON.
func SanitizeMetadata(metadata map[string]any) map[string]any {
	clean := make(map[string]any, len(metadata))
	for key, value := range metadata {
		sanitizeValue(clean, key, value)
	}
	return clean
}

func sanitizeValue(clean map[string]any, key string, value any) {
	switch v := value.(type) {
	case nil:
		// Nulls are dropped; backends disagree on null handling.

	case string:
		clean[key] = truncate(v)

	case bool:
		clean[key] = v

	case int, int32, int64, float32, float64:
		clean[key] = v

	case []string:
		clean[key] = capStringList(v)

	case []any:
		list := make([]string, 0, len(v))
		for _, item := range v {
			list = append(list, truncate(stringify(item)))
		}
		clean[key] = capStringList(list)

	case map[string]any:
		if len(v) <= maxFlattenKeys {
			for subKey, subValue := range v {
				sanitizeValue(clean, key+"_"+subKey, subValue)
			}
		} else {
			data, err := json.Marshal(v)
			if err != nil {
				clean[key] = truncate(fmt.Sprint(v))
				return
			}
			clean[key] = truncate(string(data))
		}

	default:
		clean[key] = truncate(stringify(v))
	}
}

func truncate(s string) string {
	if len(s) <= maxStringLen {
		return s
	}
	if runes := []rune(s); len(runes) > maxStringLen {
		return string(runes[:maxStringLen])
	}
	return s
}

func capStringList(list []string) []string {
	for i := range list {
		list[i] = truncate(list[i])
	}
	if len(list) > maxListLen {
		return list[:maxListLen]
	}
	return list
}

func stringify(v any) string {
	switch s := v.(type) {
	case string:
		return s
	default:
		return fmt.Sprint(v)
	}
}
