// Package timeline turns tenant conversation text into a dated housing
// complaint fact and measures the elapsed time against statutory response
// deadlines.
//
// Extract pulls the report date, issue category, and vulnerable-occupant
// flag out of free text. Calculate compares the report date with the
// current time and emits one record per deadline rule that applies:
// complaint-handling acknowledgement and response windows in working days,
// and issue-specific repair duties in calendar days. The hazard
// investigation duty for damp and mould is gated on its commencement date;
// before that date it is reported as impending rather than breached.
package timeline

import "time"

// IssueType categorizes what the tenant is complaining about.
type IssueType string

const (
	IssueDampMould IssueType = "damp_mould"
	IssueRepairs   IssueType = "repairs"
	IssueHeating   IssueType = "heating"
	IssueGeneral   IssueType = "general"
)

// Fact is what Extract learned from the conversation. ReportedDate is nil
// when no plausible date was found; that is a normal outcome, not an error.
type Fact struct {
	ReportedDate        *time.Time `json:"reported_date,omitempty"`
	IssueType           IssueType  `json:"issue_type"`
	VulnerableOccupants bool       `json:"vulnerable_occupants"`
}

// Breach severity levels, mildest first. "impending" marks a duty that is
// not yet in force but will bind the landlord once it commences.
const (
	SeverityModerate  = "moderate"
	SeveritySerious   = "serious"
	SeverityCritical  = "critical"
	SeverityImpending = "impending"
)

// Units for Breach.Elapsed.
const (
	UnitWorkingDays  = "working days"
	UnitCalendarDays = "calendar days"
)

// Breach is one deadline rule that applies to the complaint.
type Breach struct {
	Regulation  string `json:"regulation"`
	Requirement string `json:"requirement"`
	Elapsed     int    `json:"elapsed"`
	Unit        string `json:"unit"`
	Breached    bool   `json:"breached"`
	Severity    string `json:"severity"`
}

// Report is the elapsed-time analysis for a dated complaint.
// HasBreaches is true when any rule fired, including an impending one.
type Report struct {
	ReportedDate time.Time `json:"reported_date"`
	WorkingDays  int       `json:"working_days"`
	CalendarDays int       `json:"calendar_days"`
	Breaches     []Breach  `json:"breaches,omitempty"`
	HasBreaches  bool      `json:"has_breaches"`
}

// DefaultEnforcementDate is when the damp-and-mould investigation duty for
// social landlords commences.
var DefaultEnforcementDate = time.Date(2025, time.October, 27, 0, 0, 0, 0, time.UTC)

// Config carries the deadline knobs that are policy, not code.
type Config struct {
	// EnforcementDate is the commencement date of the vulnerable-occupant
	// hazard investigation duty. It is always set explicitly (config file
	// or environment), never inferred from document content.
	EnforcementDate time.Time `yaml:"enforcement_date"`
}

func (c *Config) defaults() {
	if c.EnforcementDate.IsZero() {
		c.EnforcementDate = DefaultEnforcementDate
	}
}

// Calculate evaluates every deadline rule against the fact and returns the
// elapsed-time report. It returns nil when the fact has no report date:
// without a date there is no timeline to measure.
//
// Each rule is evaluated independently, so several can fire at once (a
// complaint past the response window is also past the acknowledgement
// window). Deadlines are strict: exactly 5 working days is within the
// acknowledgement window, 6 is outside it.
func Calculate(fact Fact, now time.Time, cfg Config) *Report {
	if fact.ReportedDate == nil {
		return nil
	}
	cfg.defaults()

	reported := *fact.ReportedDate
	rep := &Report{
		ReportedDate: reported,
		WorkingDays:  WorkingDaysBetween(reported, now),
		CalendarDays: CalendarDaysBetween(reported, now),
	}

	if rep.WorkingDays > 5 {
		rep.Breaches = append(rep.Breaches, Breach{
			Regulation:  "Housing Ombudsman Complaint Handling Code, acknowledgement",
			Requirement: "acknowledge within 5 working days",
			Elapsed:     rep.WorkingDays,
			Unit:        UnitWorkingDays,
			Breached:    true,
			Severity:    SeverityModerate,
		})
	}
	if rep.WorkingDays > 10 {
		rep.Breaches = append(rep.Breaches, Breach{
			Regulation:  "Housing Ombudsman Complaint Handling Code, response",
			Requirement: "respond within 10 working days",
			Elapsed:     rep.WorkingDays,
			Unit:        UnitWorkingDays,
			Breached:    true,
			Severity:    SeveritySerious,
		})
	}

	hazardDuty := fact.IssueType == IssueDampMould && fact.VulnerableOccupants
	inForce := !now.Before(cfg.EnforcementDate)
	if hazardDuty && inForce && rep.CalendarDays > 14 {
		rep.Breaches = append(rep.Breaches, Breach{
			Regulation:  "Awaab's Law (Social Housing (Regulation) Act 2023)",
			Requirement: "investigate damp and mould within 14 days",
			Elapsed:     rep.CalendarDays,
			Unit:        UnitCalendarDays,
			Breached:    true,
			Severity:    SeverityCritical,
		})
	}
	if hazardDuty && !inForce {
		rep.Breaches = append(rep.Breaches, Breach{
			Regulation:  "Awaab's Law (not yet in force)",
			Requirement: "investigate damp and mould within 14 days",
			Elapsed:     rep.CalendarDays,
			Unit:        UnitCalendarDays,
			Breached:    false,
			Severity:    SeverityImpending,
		})
	}

	if fact.IssueType == IssueHeating && rep.CalendarDays > 1 {
		rep.Breaches = append(rep.Breaches, Breach{
			Regulation:  "Landlord and Tenant Act 1985 s.11 (emergency)",
			Requirement: "restore heating within 24 hours",
			Elapsed:     rep.CalendarDays,
			Unit:        UnitCalendarDays,
			Breached:    true,
			Severity:    SeveritySerious,
		})
	}
	if fact.IssueType == IssueRepairs && rep.CalendarDays > 28 {
		rep.Breaches = append(rep.Breaches, Breach{
			Regulation:  "Landlord and Tenant Act 1985 s.11",
			Requirement: "repair within a reasonable time (around 28 days)",
			Elapsed:     rep.CalendarDays,
			Unit:        UnitCalendarDays,
			Breached:    true,
			Severity:    SeverityModerate,
		})
	}

	rep.HasBreaches = len(rep.Breaches) > 0
	return rep
}

// WorkingDaysBetween counts weekdays from from through to, inclusive of
// both endpoints. Monday through Friday of the same week is 5. A span that
// ends before it starts counts zero.
func WorkingDaysBetween(from, to time.Time) int {
	last := startOfDay(to)
	days := 0
	for d := startOfDay(from); !d.After(last); d = d.AddDate(0, 0, 1) {
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			days++
		}
	}
	return days
}

// CalendarDaysBetween counts whole 24-hour days in the span.
func CalendarDaysBetween(from, to time.Time) int {
	if to.Before(from) {
		return 0
	}
	return int(to.Sub(from).Hours() / 24)
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
