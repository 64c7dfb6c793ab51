package orchestrator

import "strings"

// extractFilePath reads the new-side path out of a single-file unified
// diff block's "+++ b/<path>" header line, falling back to the
// "diff --git a/<path> b/<path>" header when the +++ line is a dev/null
// marker (a pure deletion).
func extractFilePath(block string) string {
	lines := strings.SplitN(block, "\n", 10)
	for _, line := range lines {
		if strings.HasPrefix(line, "+++ ") {
			path := strings.TrimPrefix(line, "+++ ")
			path = strings.TrimSpace(path)
			if path == "/dev/null" {
				continue
			}
			return strings.TrimPrefix(path, "b/")
		}
	}
	for _, line := range lines {
		if strings.HasPrefix(line, "diff --git ") {
			fields := strings.Fields(line)
			if len(fields) >= 4 {
				return strings.TrimPrefix(fields[3], "b/")
			}
		}
	}
	return ""
}

// matchesIgnoredSuffix reports whether path ends with any of the
// configured ignored suffixes (e.g. ".lock", ".min.js").
func matchesIgnoredSuffix(path string, suffixes []string) bool {
	for _, suffix := range suffixes {
		if suffix == "" {
			continue
		}
		if strings.HasSuffix(path, suffix) {
			return true
		}
	}
	return false
}
