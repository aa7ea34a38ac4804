package evaluator

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	significantLine   = regexp.MustCompile(`(?m)Number of clinically significant errors by type:[ \t]*(.*)$`)
	insignificantLine = regexp.MustCompile(`(?m)Number of clinically insignificant errors by type:[ \t]*(.*)$`)
	countPair         = regexp.MustCompile(`\(\s*([^(),\s]+)\s*,\s*([^(),]*?)\s*\)`)
	pairSeparators    = regexp.MustCompile(`^[\s,]*$`)
)

// ParseRating extracts the significant and insignificant error count tables
// from a model reply. Each line is parsed on its own; a missing or malformed
// line yields a nil table. When a line occurs more than once the first well
// formed occurrence wins.
func ParseRating(text string) (significant, insignificant ErrorCountTable) {
	return parseLine(significantLine, text), parseLine(insignificantLine, text)
}

// ParseResponse is ParseRating packed into a Rating.
func ParseResponse(text string) Rating {
	sig, insig := ParseRating(text)
	return Rating{
		ClinicallySignificant:   sig,
		ClinicallyInsignificant: insig,
	}
}

// parseLine returns the first table among the lines matching line that parses.
// Earlier matches may be an echo of the prompt's format line.
func parseLine(line *regexp.Regexp, text string) ErrorCountTable {
	for _, m := range line.FindAllStringSubmatch(text, -1) {
		if t := parseCounts(m[1]); t != nil {
			return t
		}
	}
	return nil
}

// parseCounts parses "((A, 1), (B, 0), ...)" or "[(A, 1), ...]".
func parseCounts(list string) ErrorCountTable {
	list = strings.TrimSpace(list)
	if len(list) < 2 {
		return nil
	}
	open, closing := list[0], list[len(list)-1]
	if !(open == '(' && closing == ')') && !(open == '[' && closing == ']') {
		return nil
	}
	inner := list[1 : len(list)-1]

	pairs := countPair.FindAllStringSubmatchIndex(inner, -1)
	if len(pairs) != len(Categories) {
		return nil
	}

	table := make(ErrorCountTable, len(Categories))
	prev := 0
	for _, p := range pairs {
		if !pairSeparators.MatchString(inner[prev:p[0]]) {
			return nil
		}
		prev = p[1]

		letter := inner[p[2]:p[3]]
		if len(letter) != 1 {
			return nil
		}
		category, ok := CategoryForLetter(rune(letter[0]))
		if !ok {
			return nil
		}
		if _, dup := table[category]; dup {
			return nil
		}
		n, err := strconv.Atoi(inner[p[4]:p[5]])
		if err != nil || n < 0 {
			return nil
		}
		table[category] = n
	}
	if !pairSeparators.MatchString(inner[prev:]) {
		return nil
	}
	return table
}
