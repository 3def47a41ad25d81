// Package briefing assembles the context block a letter-drafting model
// receives: the current date, a timeline breach analysis when the
// conversation dates the complaint, and retrieved legal knowledge split
// into recently-sourced updates and established material.
package briefing

import (
	"fmt"
	"strings"
	"time"

	"github.com/obba100/redress/corpus"
	"github.com/obba100/redress/crossref"
	"github.com/obba100/redress/timeline"
)

// Result is a retrieved knowledge chunk rendered into the briefing.
type Result = crossref.Result

const (
	breachHeader = "=== TIMELINE BREACH ANALYSIS ==="
	breachFooter = "=== END BREACH ANALYSIS ==="
	updateHeader = "=== RECENTLY-SOURCED LEGISLATION UPDATES ==="
	coreHeader   = "=== ESTABLISHED LEGAL KNOWLEDGE ==="
)

// Format renders the briefing text. It always opens with the current-date
// line, even when there is nothing else to say, so the model can reason
// about deadlines; Format(now, nil, nil) is the valid empty briefing.
//
// Update-tagged documents render before established knowledge: a recent
// change in the law outranks the settled material it may amend. When any
// documents were rendered, a closing instruction pins every legal claim
// to the cited material.
func Format(now time.Time, results []Result, rep *timeline.Report) string {
	var b strings.Builder
	b.WriteString("Current date: ")
	b.WriteString(now.Format("Monday, 2 January 2006"))
	b.WriteString("\n")

	if rep != nil && rep.HasBreaches {
		b.WriteString("\n")
		b.WriteString(breachHeader)
		b.WriteString("\n")
		fmt.Fprintf(&b, "Issue reported: %s\n", rep.ReportedDate.Format("2 January 2006"))
		fmt.Fprintf(&b, "Elapsed since report: %d working days, %d calendar days\n",
			rep.WorkingDays, rep.CalendarDays)
		for _, br := range rep.Breaches {
			prefix := "BREACH"
			if !br.Breached {
				prefix = "IMPENDING (not yet in force)"
			}
			fmt.Fprintf(&b, "%s: %s - %s (%d %s elapsed, severity: %s)\n",
				prefix, br.Regulation, br.Requirement, br.Elapsed, br.Unit, br.Severity)
		}
		b.WriteString("Cite these timeline findings prominently in the letter.\n")
		b.WriteString(breachFooter)
		b.WriteString("\n")
	}

	updates, core := partitionByTag(results)
	if len(updates) > 0 {
		b.WriteString("\n")
		b.WriteString(updateHeader)
		b.WriteString("\n")
		writeEntries(&b, updates)
	}
	if len(core) > 0 {
		b.WriteString("\n")
		b.WriteString(coreHeader)
		b.WriteString("\n")
		writeEntries(&b, core)
	}
	if len(results) > 0 {
		b.WriteString("\nSupport every legal claim in the letter with 2-3 distinct authorities from the material above.\n")
	}
	return b.String()
}

func partitionByTag(results []Result) (updates, core []Result) {
	for _, r := range results {
		if r.Tag == corpus.TagUpdate {
			updates = append(updates, r)
		} else {
			core = append(core, r)
		}
	}
	return updates, core
}

func writeEntries(b *strings.Builder, results []Result) {
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(b, "[Source: %s]\n%s\n", r.Source, r.Content)
	}
}
