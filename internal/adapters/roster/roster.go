// Package roster loads the student list from CSV.
package roster

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/okian/ladder/internal/domain/model"
)

// fetchTimeout bounds URL sources when ctx has no deadline.
const fetchTimeout = 10 * time.Second

// Roster maps each section to its students, sorted by name.
type Roster struct {
	sections map[string][]model.Student
}

// Sections returns the section names in sorted order.
func (r *Roster) Sections() []string {
	names := make([]string, 0, len(r.sections))
	for name := range r.sections {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Students returns a copy of the section's students and whether the section
// exists.
func (r *Roster) Students(section string) ([]model.Student, bool) {
	s, ok := r.sections[section]
	if !ok {
		return nil, false
	}
	return slices.Clone(s), true
}

// Student looks up one student in a section.
func (r *Roster) Student(section, id string) (model.Student, bool) {
	for _, s := range r.sections[section] {
		if s.ID == id {
			return s, true
		}
	}
	return model.Student{}, false
}

// Size returns the number of sections and students.
func (r *Roster) Size() (sections, students int) {
	for _, s := range r.sections {
		students += len(s)
	}
	return len(r.sections), students
}

// New builds a roster from already-parsed sections.
func New(sections map[string][]model.Student, lang language.Tag) *Roster {
	r := &Roster{sections: make(map[string][]model.Student, len(sections))}
	col := collate.New(lang)
	for name, students := range sections {
		sorted := slices.Clone(students)
		slices.SortStableFunc(sorted, func(a, b model.Student) int {
			return col.CompareString(a.Name, b.Name)
		})
		r.sections[name] = sorted
	}
	return r
}

// Load reads the roster from a file path or an http(s) URL.
func Load(ctx context.Context, source string) (*Roster, error) {
	rc, err := open(ctx, source)
	if err != nil {
		return nil, &IngestionError{Source: source, Err: err}
	}
	defer rc.Close()

	r, err := Parse(rc)
	if err != nil {
		return nil, &IngestionError{Source: source, Err: err}
	}
	return r, nil
}

// Parse reads CSV with a header row naming id, name and section in any order
// and case. Rows missing any of the three are skipped.
func Parse(src io.Reader) (*Roster, error) {
	cr := csv.NewReader(src)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	records = slices.DeleteFunc(records, blank)
	if len(records) < 2 {
		return nil, ErrEmptyRoster
	}

	idx := map[string]int{"id": -1, "name": -1, "section": -1}
	for i, h := range records[0] {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if pos, ok := idx[key]; ok && pos == -1 {
			idx[key] = i
		}
	}
	for _, pos := range idx {
		if pos == -1 {
			return nil, ErrMissingColumns
		}
	}

	sections := make(map[string][]model.Student)
	for _, rec := range records[1:] {
		id := field(rec, idx["id"])
		name := field(rec, idx["name"])
		section := field(rec, idx["section"])
		if id == "" || name == "" || section == "" {
			continue
		}
		sections[section] = append(sections[section], model.Student{ID: id, Name: name})
	}
	if len(sections) == 0 {
		return nil, ErrEmptyRoster
	}
	return New(sections, language.Und), nil
}

func open(ctx context.Context, source string) (io.ReadCloser, error) {
	if !strings.HasPrefix(source, "http://") && !strings.HasPrefix(source, "https://") {
		f, err := os.Open(source)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSourceUnreachable, err)
		}
		return f, nil
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, fetchTimeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnreachable, err)
	}
	req.Header.Set("Cache-Control", "no-store")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnreachable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrSourceUnreachable, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnreachable, err)
	}
	return io.NopCloser(strings.NewReader(string(body))), nil
}

func field(rec []string, i int) string {
	if i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

func blank(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// IsIngestion reports whether err came from roster loading.
func IsIngestion(err error) bool {
	var ie *IngestionError
	return errors.As(err, &ie)
}
