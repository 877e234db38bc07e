package env

import "strings"

// NormalizeName canonicalizes environment names and their aliases.
func NormalizeName(name string) string {
	normalized := strings.TrimSpace(strings.ToLower(name))
	normalized = strings.ReplaceAll(normalized, "_", "-")
	normalized = strings.ReplaceAll(normalized, " ", "-")
	normalized = strings.Trim(normalized, "-")
	if normalized == "" {
		return ""
	}
	if canonical, ok := canonicalEnvName(normalized); ok {
		return canonical
	}
	return normalized
}

func canonicalEnvName(alias string) (string, bool) {
	switch alias {
	case "go-to-goal":
		return "go-to-goal", true
	}

	compact := strings.ReplaceAll(alias, "-", "")
	switch compact {
	case "gotogoal", "g2g", "goal2goal":
		return "go-to-goal", true
	default:
		return "", false
	}
}
