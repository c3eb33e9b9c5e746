package summary

import (
	"strings"

	"github.com/lox/rollbook/internal/models"
)

// Named drops records without a student name.
func Named(records []models.DerivedRecord) []models.DerivedRecord {
	out := make([]models.DerivedRecord, 0, len(records))
	for _, r := range records {
		if r.Named() {
			out = append(out, r)
		}
	}
	return out
}

// ByCourse returns the named records of one course, in roster order.
func ByCourse(records []models.DerivedRecord, tag string) []models.DerivedRecord {
	var out []models.DerivedRecord
	for _, r := range records {
		if r.Named() && r.CourseTag == tag {
			out = append(out, r)
		}
	}
	return out
}

// ByStudent matches names case-insensitively across every course.
func ByStudent(records []models.DerivedRecord, name string) []models.DerivedRecord {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	var out []models.DerivedRecord
	for _, r := range records {
		if r.Named() && strings.EqualFold(r.Name, name) {
			out = append(out, r)
		}
	}
	return out
}

// Tags lists course tags in first-arrival order.
func Tags(records []models.DerivedRecord) []string {
	seen := make(map[string]bool)
	var tags []string
	for _, r := range records {
		if !seen[r.CourseTag] {
			seen[r.CourseTag] = true
			tags = append(tags, r.CourseTag)
		}
	}
	return tags
}

// Students lists distinct student names in first-arrival order.
func Students(records []models.DerivedRecord) []string {
	seen := make(map[string]bool)
	var names []string
	for _, r := range records {
		if !r.Named() || seen[r.Name] {
			continue
		}
		seen[r.Name] = true
		names = append(names, r.Name)
	}
	return names
}
