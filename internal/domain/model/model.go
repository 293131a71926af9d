// Package model contains domain models passed between layers.
package model

import "time"

// Student is a roster member. ID is unique within a section.
type Student struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SpotlightEntry records a student reaching gold. At most one entry exists
// per (WeekKey, StudentID, Section).
type SpotlightEntry struct {
	WeekKey     string `json:"weekKey"`   // Monday of the week, YYYY-MM-DD
	Timestamp   int64  `json:"timestamp"` // epoch milliseconds
	StudentID   string `json:"studentId"`
	StudentName string `json:"studentName"`
	Section     string `json:"section"`
}

// Time returns the entry timestamp as a time.Time.
func (e SpotlightEntry) Time() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// DedupeKey identifies the (week, student, section) triple.
func (e SpotlightEntry) DedupeKey() string {
	return SpotlightKey(e.WeekKey, e.StudentID, e.Section)
}

// SpotlightKey builds the idempotency key for a spotlight record. The unit
// separator cannot appear in CSV-sourced identifiers.
func SpotlightKey(weekKey, studentID, section string) string {
	return weekKey + "\x1f" + section + "\x1f" + studentID
}

// Meta carries the teacher and subject printed on reports.
type Meta struct {
	TeacherName string `json:"teacherName"`
	SubjectName string `json:"subjectName"`
}
