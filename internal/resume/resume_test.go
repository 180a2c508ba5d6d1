package resume

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

const sampleResume = `# Jane Doe
jane.doe+jobs@example.com | Bengaluru

Data Engineer with 4+ years building ETL pipeline systems on AWS and Databricks.
Skills: Python, SQL, Apache Spark, PySpark, Airflow, Docker, Terraform, Kafka.
Led a zero-downtime migration to Snowflake with 30% cost reduction.
`

func TestParse(t *testing.T) {
	p := Parse(sampleResume)

	if p.Name != "Jane Doe" {
		t.Fatalf("unexpected name: %q", p.Name)
	}
	if p.Email != "jane.doe+jobs@example.com" {
		t.Fatalf("unexpected email: %q", p.Email)
	}
	if p.ExperienceYears != 4 {
		t.Fatalf("expected 4 years, got %d", p.ExperienceYears)
	}

	// "Apache Spark" also counts as the canonical "Spark"
	for _, want := range []string{"AWS", "Apache Spark", "Databricks", "PySpark", "Python", "SQL", "Spark"} {
		if !slices.Contains(p.PrimarySkills, want) {
			t.Fatalf("expected primary skill %s in %v", want, p.PrimarySkills)
		}
	}
	if !slices.Contains(p.SecondarySkills, "Snowflake") || !slices.Contains(p.AdditionalSkills, "Kafka") {
		t.Fatalf("unexpected secondary/additional skills: %v %v", p.SecondarySkills, p.AdditionalSkills)
	}
	if !slices.Contains(p.ExpertiseKeywords, "zero-downtime") || !slices.Contains(p.ExpertiseKeywords, "cost reduction") {
		t.Fatalf("unexpected expertise keywords: %v", p.ExpertiseKeywords)
	}

	if !slices.IsSorted(p.AllSkills) || len(slices.Compact(slices.Clone(p.AllSkills))) != len(p.AllSkills) {
		t.Fatalf("expected sorted unique skills: %v", p.AllSkills)
	}

	for _, s := range p.Skills() {
		if s != strings.ToLower(s) {
			t.Fatalf("expected normalized skills, got %v", p.Skills())
		}
	}
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "resume.md")
	if err := os.WriteFile(path, []byte(sampleResume), 0o600); err != nil {
		t.Fatalf("writing resume: %v", err)
	}

	p, err := ParseFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Name != "Jane Doe" {
		t.Fatalf("unexpected name: %q", p.Name)
	}

	empty := filepath.Join(dir, "empty.txt")
	if err := os.WriteFile(empty, []byte("  \n"), 0o600); err != nil {
		t.Fatalf("writing empty resume: %v", err)
	}
	if _, err := ParseFile(empty); err == nil {
		t.Fatalf("expected error for empty resume")
	}
	if _, err := ParseFile(filepath.Join(dir, "missing.txt")); err == nil {
		t.Fatalf("expected error for missing resume")
	}
	if _, err := ParseFile(""); err == nil {
		t.Fatalf("expected error for unset path")
	}
}
