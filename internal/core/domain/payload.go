package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/language"
)

// DefaultNavigationPrefix marks tracking keys that originate from a deep link.
const DefaultNavigationPrefix = "deep_"

// NormalizePayload converts a loosely typed producer map into a string map.
// Scalars keep their natural form, nested values are JSON encoded and nil
// values are dropped.
func NormalizePayload(raw map[string]any) map[string]string {
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if v == nil {
			continue
		}
		out[k] = stringify(v)
	}
	return out
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case json.Number:
		return t.String()
	case fmt.Stringer:
		return t.String()
	case map[string]any, []any:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	default:
		return fmt.Sprint(t)
	}
}

// MergeNavigation returns a copy of tracking with navigation entries added
// under prefix. Tracking is authoritative: a navigation key is skipped when
// either its raw or its prefixed form is already present.
func MergeNavigation(tracking, navigation map[string]string, prefix string) map[string]string {
	merged := CloneMap(tracking)
	for k, v := range navigation {
		if _, ok := tracking[k]; ok {
			continue
		}
		key := prefix + k
		if _, ok := merged[key]; ok {
			continue
		}
		merged[key] = v
	}
	return merged
}

// FillMissing returns a copy of dst with every src key that dst lacks.
func FillMissing(dst, src map[string]string) map[string]string {
	out := CloneMap(dst)
	for k, v := range src {
		if _, ok := out[k]; !ok {
			out[k] = v
		}
	}
	return out
}

// CloneMap copies m; a nil map yields an empty one.
func CloneMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// LocaleCode reduces a locale such as "en_US.UTF-8" or "pt-BR" to its
// uppercase two-letter language code, falling back to "EN".
func LocaleCode(locale string) string {
	locale = strings.TrimSpace(locale)
	if i := strings.IndexAny(locale, ".@"); i >= 0 {
		locale = locale[:i]
	}
	locale = strings.ReplaceAll(locale, "_", "-")
	if locale == "" || locale == "C" || locale == "POSIX" {
		return "EN"
	}

	tag, err := language.Parse(locale)
	if err != nil {
		return "EN"
	}
	base, _ := tag.Base()
	code := base.String()
	if len(code) != 2 {
		return "EN"
	}
	return strings.ToUpper(code)
}
