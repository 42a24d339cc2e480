package core

import "fmt"

// extractJSON pulls the first balanced JSON object out of a model
// response, tolerating surrounding prose or code fences.
func extractJSON(response string) (string, error) {
	start := -1
	depth := 0
	for i, ch := range response {
		switch ch {
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
			}
			if depth == 0 && start != -1 {
				return response[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("no JSON object found in response")
}
