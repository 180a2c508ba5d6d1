package skills

import (
	"slices"
	"testing"
)

func TestExtract(t *testing.T) {
	t.Parallel()

	vocabulary := []string{"Spark", "Apache Spark", "SQL", "C++", "R", "Node.js", "data pipeline"}

	tests := []struct {
		name   string
		input  string
		expect []string
	}{
		{name: "empty text", input: "", expect: []string{}},
		{name: "case insensitive", input: "We use sql daily", expect: []string{"SQL"}},
		{
			name:   "longer term consumes shorter",
			input:  "Experience with Apache Spark required",
			expect: []string{"Apache Spark"},
		},
		{
			name:   "shorter term found elsewhere",
			input:  "Apache Spark and plain Spark streaming",
			expect: []string{"Apache Spark", "Spark"},
		},
		{name: "whole words only", input: "sparkling mysql", expect: []string{}},
		{name: "symbols", input: "C++ and Node.js, R.", expect: []string{"C++", "Node.js", "R"}},
		{name: "multi word", input: "Build a Data Pipeline", expect: []string{"data pipeline"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Extract(tt.input, vocabulary)
			if !slices.Equal(got, tt.expect) {
				t.Fatalf("expected %v, got %v", tt.expect, got)
			}
		})
	}
}

func TestExtractEach(t *testing.T) {
	vocabulary := []string{"Apache Spark", "Spark", "PySpark", "SQL"}

	got := ExtractEach("Skills: Apache Spark, PySpark and sql", vocabulary)
	want := []string{"Apache Spark", "PySpark", "SQL", "Spark"}
	if !slices.Equal(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}

	if got := ExtractEach("", vocabulary); len(got) != 0 {
		t.Fatalf("expected no skills for empty text, got %v", got)
	}
}

func TestContains(t *testing.T) {
	if !Contains("Strong Python skills", "python") {
		t.Fatalf("expected python to be found")
	}
	if Contains("pythonic", "python") {
		t.Fatalf("did not expect partial word match")
	}
}

func TestExperienceYears(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input  string
		expect int
	}{
		{"", 0},
		{"no numbers here", 0},
		{"5+ years of experience", 5},
		{"minimum 4 years in data", 4},
		{"at least 2 years", 2},
		{"3-5 years experience, 7 yrs preferred", 7},
		{"founded 120 years ago", 0},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			if got := ExperienceYears(tt.input); got != tt.expect {
				t.Fatalf("expected %d, got %d", tt.expect, got)
			}
		})
	}
}

func TestSeniorityLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input  string
		expect Seniority
	}{
		{"Junior Data Engineer", SeniorityEntry},
		{"Senior Data Engineer", SenioritySenior},
		{"Director of Data", SeniorityExpert},
		{"Data Engineer", SeniorityMid},
		{"", SeniorityMid},
	}

	for _, tt := range tests {
		if got := SeniorityLevel(tt.input); got != tt.expect {
			t.Fatalf("%q: expected %s, got %s", tt.input, tt.expect, got)
		}
	}
}

func TestRedFlags(t *testing.T) {
	flags := RedFlags("This is an UNPAID INTERNSHIP with mandatory weekends")
	if !slices.Equal(flags, []string{"unpaid internship", "mandatory weekends"}) {
		t.Fatalf("unexpected flags: %v", flags)
	}
	if len(RedFlags("")) != 0 {
		t.Fatalf("expected no flags for empty text")
	}
}

func TestAllIsSortedAndUnique(t *testing.T) {
	all := All()
	if !slices.IsSorted(all) {
		t.Fatalf("expected sorted taxonomy")
	}
	if len(slices.Compact(slices.Clone(all))) != len(all) {
		t.Fatalf("expected unique taxonomy terms")
	}
	if !slices.Contains(all, "data pipeline") || !slices.Contains(all, "bigquery") {
		t.Fatalf("expected taxonomy to include multi-word and cloud terms")
	}
}

func TestFamily(t *testing.T) {
	if f := Family(" AWS "); !slices.Contains(f, "gcp") {
		t.Fatalf("expected cloud family, got %v", f)
	}
	if Family("excel") != nil {
		t.Fatalf("expected no family for unknown skill")
	}
}
