// Package report builds read-only snapshots of ladder state for printing or
// export.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/okian/ladder/internal/domain/model"
	"github.com/okian/ladder/internal/domain/tier"
	"github.com/okian/ladder/internal/domain/week"
)

// Placeholder stands in for a missing teacher or subject name.
const Placeholder = "—"

// DateLayout formats report dates.
const DateLayout = "2006-01-02"

// Row is one student line of a section report.
type Row struct {
	RN        int    `json:"rn"`
	StudentID string `json:"student_id"`
	Name      string `json:"name"`
	Level     string `json:"level"`
}

// Section is a progress report for one section, in roster order.
type Section struct {
	Section string `json:"section"`
	Teacher string `json:"teacher"`
	Subject string `json:"subject"`
	Date    string `json:"date"`
	Rows    []Row  `json:"rows"`
}

// BuildSection lists every student with their current tier. Students absent
// from tiers are at none.
func BuildSection(section string, students []model.Student, tiers map[string]tier.Tier, meta model.Meta, at time.Time) Section {
	rows := make([]Row, 0, len(students))
	for i, s := range students {
		rows = append(rows, Row{
			RN:        i + 1,
			StudentID: s.ID,
			Name:      s.Name,
			Level:     tiers[s.ID].Label(),
		})
	}
	return Section{
		Section: section,
		Teacher: orPlaceholder(meta.TeacherName),
		Subject: orPlaceholder(meta.SubjectName),
		Date:    at.Format(DateLayout),
		Rows:    rows,
	}
}

// Poster is the weekly spotlight listing. From is the Monday and To the
// Sunday of the week.
type Poster struct {
	WeekKey string                 `json:"week"`
	From    string                 `json:"from"`
	To      string                 `json:"to"`
	Entries []model.SpotlightEntry `json:"entries"`
}

// BuildPoster wraps the entries of the week containing at.
func BuildPoster(at time.Time, loc *time.Location, entries []model.SpotlightEntry) Poster {
	start, end := week.Bounds(at, loc)
	if entries == nil {
		entries = []model.SpotlightEntry{}
	}
	return Poster{
		WeekKey: start.Format(week.KeyLayout),
		From:    start.Format(DateLayout),
		To:      end.AddDate(0, 0, -1).Format(DateLayout),
		Entries: entries,
	}
}

// WriteSectionCSV renders r as CSV: a metadata block, a blank line, then the
// student table.
func WriteSectionCSV(w io.Writer, r Section) error {
	cw := csv.NewWriter(w)
	records := [][]string{
		{"Section", r.Section},
		{"Teacher", r.Teacher},
		{"Subject", r.Subject},
		{"Date", r.Date},
		{},
		{"RN", "Student ID", "Student Name", "Level"},
	}
	for _, row := range r.Rows {
		records = append(records, []string{strconv.Itoa(row.RN), row.StudentID, row.Name, row.Level})
	}
	if err := cw.WriteAll(records); err != nil {
		return fmt.Errorf("write report csv: %w", err)
	}
	return nil
}

var unsafeChars = regexp.MustCompile(`[/\\?%*:|"<>]`)
var spaces = regexp.MustCompile(`\s+`)

// SafeName makes s usable as part of a file name.
func SafeName(s string) string {
	s = unsafeChars.ReplaceAllString(strings.TrimSpace(s), "-")
	return spaces.ReplaceAllString(s, "_")
}

// FileName returns "<section>_<subject>_Report.<ext>" with both parts made
// safe. An empty subject becomes the placeholder.
func FileName(section, subject, ext string) string {
	return fmt.Sprintf("%s_%s_Report.%s", SafeName(section), SafeName(orPlaceholder(subject)), strings.TrimPrefix(ext, "."))
}

func orPlaceholder(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return Placeholder
	}
	return s
}
