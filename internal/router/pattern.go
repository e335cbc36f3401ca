package router

import "strings"

// toServeMuxPattern converts a route path pattern to http.ServeMux format:
// :param segments become {param} and trailing wildcards become {path...}.
func toServeMuxPattern(pattern string) string {
	if strings.Contains(pattern, ":") {
		parts := strings.Split(pattern, "/")
		for i, part := range parts {
			if strings.HasPrefix(part, ":") {
				parts[i] = "{" + part[1:] + "}"
			}
		}
		pattern = strings.Join(parts, "/")
	}

	if strings.HasSuffix(pattern, "/*") {
		pattern = strings.TrimSuffix(pattern, "/*") + "/{path...}"
	} else if strings.HasSuffix(pattern, "*") {
		pattern = strings.TrimSuffix(pattern, "*") + "{path...}"
	}

	return pattern
}
