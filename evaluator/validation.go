package evaluator

import (
	"fmt"
	"strings"
)

// ValidationResult contains the results of request validation
type ValidationResult struct {
	Valid       bool
	Issues      []string
	Suggestions []string
}

// ValidateRequests checks a batch before evaluation: every request needs a
// unique non-empty ID and non-blank reference and candidate text. Results are
// returned even when validation fails so callers can report each problem.
func ValidateRequests(requests []EvaluationRequest) ([]ValidationResult, error) {
	if len(requests) == 0 {
		return nil, ErrEmptyInput
	}

	results := make([]ValidationResult, len(requests))
	seen := make(map[string]int, len(requests))
	hasErrors := false

	for i, req := range requests {
		result := ValidationResult{Valid: true}

		if req.ID == "" {
			result.Valid = false
			result.Issues = append(result.Issues, "request ID is empty")
			result.Suggestions = append(result.Suggestions, fmt.Sprintf("provide unique ID for request at index %d", i))
		} else if first, dup := seen[req.ID]; dup {
			result.Valid = false
			result.Issues = append(result.Issues, fmt.Sprintf("request ID %q duplicates index %d", req.ID, first))
			result.Suggestions = append(result.Suggestions, "give every request its own ID")
		} else {
			seen[req.ID] = i
		}

		if strings.TrimSpace(req.Reference) == "" {
			result.Valid = false
			result.Issues = append(result.Issues, "reference is empty")
			result.Suggestions = append(result.Suggestions, "provide the reference findings text")
		}

		if strings.TrimSpace(req.Candidate) == "" {
			result.Valid = false
			result.Issues = append(result.Issues, "candidate is empty")
			result.Suggestions = append(result.Suggestions, "provide the generated findings text")
		}

		if !result.Valid {
			hasErrors = true
		}
		results[i] = result
	}

	if hasErrors {
		return results, fmt.Errorf("validation failed for one or more requests")
	}

	return results, nil
}

// ValidationSummary flattens failed results into one line per issue. Requests
// are identified by their zero based index in the batch, not by input file
// line, since blank input lines are skipped when reading.
func ValidationSummary(requests []EvaluationRequest, results []ValidationResult) []string {
	var lines []string
	for i, r := range results {
		if r.Valid {
			continue
		}
		id := ""
		if i < len(requests) {
			id = requests[i].ID
		}
		for _, issue := range r.Issues {
			lines = append(lines, fmt.Sprintf("index %d (id %q): %s", i, id, issue))
		}
	}
	return lines
}
