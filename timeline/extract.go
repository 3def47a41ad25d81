package timeline

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Extract scans conversation text for the complaint's report date, issue
// category, and any mention of vulnerable occupants.
//
// Date matchers run in priority order: a relative phrase ("3 weeks ago"),
// an absolute date near a report verb ("complained on 01/03/2025"), then
// the first parseable date anywhere. Relative spans use calendar
// arithmetic, so "2 months ago" lands on the same day of the month.
// Candidates that fail to parse or land in the future are skipped and the
// scan moves on to the next candidate.
func Extract(text string, now time.Time) Fact {
	fact := Fact{
		IssueType:           classifyIssue(text),
		VulnerableOccupants: mentionsVulnerable(text),
	}
	for _, match := range dateMatchers {
		if d, ok := match(text, now); ok {
			fact.ReportedDate = &d
			break
		}
	}
	return fact
}

// dateMatchers in priority order; the first hit stops the scan.
var dateMatchers = []func(text string, now time.Time) (time.Time, bool){
	matchRelative,
	matchContextual,
	matchAbsolute,
}

var relativePattern = regexp.MustCompile(`(?i)(\d+)\s+(day|week|month|year)s?\s+ago`)

func matchRelative(text string, now time.Time) (time.Time, bool) {
	m := relativePattern.FindStringSubmatch(text)
	if m == nil {
		return time.Time{}, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return time.Time{}, false
	}
	switch strings.ToLower(m[2]) {
	case "day":
		return now.AddDate(0, 0, -n), true
	case "week":
		return now.AddDate(0, 0, -7*n), true
	case "month":
		return now.AddDate(0, -n, 0), true
	case "year":
		return now.AddDate(-n, 0, 0), true
	}
	return time.Time{}, false
}

// contextWindow is how far past a report verb a date may start and still
// count as the date of that report.
const contextWindow = 40

var (
	reportVerbPattern = regexp.MustCompile(`(?i)\b(?:reported|told|contacted|complained|raised|logged)\b`)

	// datePattern finds date-like candidates: day-first numeric, written
	// month, and ISO forms. Whether a candidate actually parses is decided
	// separately, so near misses are culled here cheaply.
	datePattern = regexp.MustCompile(`\b(?:\d{1,2}[/-]\d{1,2}[/-]\d{4}|\d{4}-\d{2}-\d{2}|\d{1,2}\s+[A-Za-z]{3,9}\s+\d{4})\b`)
)

// matchContextual prefers dates that follow a report verb: "I reported the
// leak on 5 March 2024" dates the report even when other dates appear
// earlier in the text.
func matchContextual(text string, now time.Time) (time.Time, bool) {
	locs := datePattern.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return time.Time{}, false
	}
	for _, verb := range reportVerbPattern.FindAllStringIndex(text, -1) {
		for _, loc := range locs {
			if loc[0] < verb[1] || loc[0] > verb[1]+contextWindow {
				continue
			}
			if d, ok := parsePlausible(text[loc[0]:loc[1]], now); ok {
				return d, true
			}
		}
	}
	return time.Time{}, false
}

func matchAbsolute(text string, now time.Time) (time.Time, bool) {
	for _, cand := range datePattern.FindAllString(text, -1) {
		if d, ok := parsePlausible(cand, now); ok {
			return d, true
		}
	}
	return time.Time{}, false
}

// absoluteLayouts in trial order. UK day-first forms come before ISO so
// 05/03/2024 reads as 5 March. Unpadded layouts also accept padded input;
// month names match case-insensitively.
var absoluteLayouts = []string{
	"2/1/2006",
	"2-1-2006",
	"2 January 2006",
	"2 Jan 2006",
	"2006-01-02",
}

// parsePlausible parses one candidate, rejecting dates in the future: a
// complaint cannot have been reported after today.
func parsePlausible(cand string, now time.Time) (time.Time, bool) {
	for _, layout := range absoluteLayouts {
		d, err := time.Parse(layout, cand)
		if err != nil {
			continue
		}
		if d.After(now) {
			return time.Time{}, false
		}
		return d, true
	}
	return time.Time{}, false
}

// issueKeywords in priority order: the first group with a hit wins, so
// "damp and a leak" classifies as damp_mould, not repairs.
var issueKeywords = []struct {
	issue    IssueType
	keywords []string
}{
	{IssueDampMould, []string{"damp", "mould", "mold", "mildew", "condensation"}},
	{IssueRepairs, []string{"repair", "leak", "broken", "maintenance", "fix"}},
	{IssueHeating, []string{"heating", "boiler", "radiator", "hot water", "cold"}},
}

func classifyIssue(text string) IssueType {
	lower := strings.ToLower(text)
	for _, group := range issueKeywords {
		for _, kw := range group.keywords {
			if strings.Contains(lower, kw) {
				return group.issue
			}
		}
	}
	return IssueGeneral
}

var vulnerableKeywords = []string{"child", "baby", "infant", "kid", "toddler", "son", "daughter"}

func mentionsVulnerable(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range vulnerableKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
