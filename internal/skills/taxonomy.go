package skills

import (
	"slices"
	"strings"
)

type Category string

const (
	CategoryCore      Category = "core"
	CategoryBigData   Category = "big_data"
	CategoryCloud     Category = "cloud"
	CategoryDatabases Category = "databases"
	CategoryTools     Category = "tools"
	CategoryLanguages Category = "languages"
	CategoryML        Category = "ml"
)

type Seniority string

const (
	SeniorityEntry  Seniority = "entry"
	SeniorityMid    Seniority = "mid"
	SenioritySenior Seniority = "senior"
	SeniorityExpert Seniority = "expert"
)

// Categories lists taxonomy categories in declaration order.
var Categories = []Category{
	CategoryCore, CategoryBigData, CategoryCloud, CategoryDatabases,
	CategoryTools, CategoryLanguages, CategoryML,
}

var Taxonomy = map[Category][]string{
	CategoryCore:      {"sql", "python", "etl", "data pipeline", "data warehousing", "data modeling"},
	CategoryBigData:   {"spark", "pyspark", "hadoop", "kafka", "airflow", "databricks"},
	CategoryCloud:     {"aws", "azure", "gcp", "snowflake", "s3", "redshift", "bigquery"},
	CategoryDatabases: {"postgresql", "mysql", "mongodb", "redis", "cassandra", "dynamodb"},
	CategoryTools:     {"docker", "kubernetes", "git", "jenkins", "terraform", "dbt"},
	CategoryLanguages: {"java", "scala", "r", "bash", "shell scripting"},
	CategoryML:        {"machine learning", "tensorflow", "scikit-learn", "pandas", "numpy"},
}

// SeniorityOrder is the order in which seniority buckets are checked.
var SeniorityOrder = []Seniority{SeniorityEntry, SeniorityMid, SenioritySenior, SeniorityExpert}

var SeniorityKeywords = map[Seniority][]string{
	SeniorityEntry:  {"junior", "entry level", "0-2 years", "graduate", "fresher", "associate"},
	SeniorityMid:    {"mid level", "2-5 years", "3-5 years", "intermediate", "engineer ii"},
	SenioritySenior: {"senior", "5+ years", "7+ years", "lead", "principal", "staff", "architect"},
	SeniorityExpert: {"expert", "10+ years", "director", "head of", "vp", "chief"},
}

// DefaultYears is the assumed requirement when a posting names no years.
var DefaultYears = map[Seniority]int{
	SeniorityEntry:  1,
	SeniorityMid:    3,
	SenioritySenior: 6,
	SeniorityExpert: 10,
}

var RedFlagPhrases = []string{
	"extensive travel required",
	"on-call 24/7",
	"must relocate",
	"commission only",
	"unpaid internship",
	"mandatory weekends",
}

// CriticalSkills earn a technical score boost when two or more are matched.
var CriticalSkills = []string{"sql", "python", "etl", "data pipeline"}

// PremiumSkills are highlighted as strengths when matched.
var PremiumSkills = []string{"databricks", "spark", "airflow", "kafka", "snowflake"}

// Families group interchangeable skills for transferable-skill detection.
var Families = [][]string{
	{"python", "java", "scala", "r"},
	{"sql", "postgresql", "mysql", "oracle"},
	{"aws", "azure", "gcp"},
	{"spark", "pyspark", "hadoop"},
	{"docker", "kubernetes", "containers"},
}

// KeyTechnologyOrder is the category priority used to pick key technologies.
var KeyTechnologyOrder = []Category{
	CategoryBigData, CategoryCloud, CategoryCore, CategoryDatabases, CategoryTools,
}

// All returns every taxonomy term, deduplicated and sorted.
func All() []string {
	var all []string
	for _, c := range Categories {
		all = append(all, Taxonomy[c]...)
	}
	slices.Sort(all)
	return slices.Compact(all)
}

// SeniorityLevel returns the first seniority bucket whose keywords occur in
// text, defaulting to mid.
func SeniorityLevel(text string) Seniority {
	lower := strings.ToLower(text)
	for _, level := range SeniorityOrder {
		for _, kw := range SeniorityKeywords[level] {
			if strings.Contains(lower, kw) {
				return level
			}
		}
	}
	return SeniorityMid
}

// RedFlags returns the red-flag phrases found in text.
func RedFlags(text string) []string {
	lower := strings.ToLower(text)
	var flags []string
	for _, phrase := range RedFlagPhrases {
		if strings.Contains(lower, phrase) {
			flags = append(flags, phrase)
		}
	}
	return flags
}

// Family returns the family containing skill, or nil.
func Family(skill string) []string {
	skill = strings.ToLower(strings.TrimSpace(skill))
	for _, family := range Families {
		if slices.Contains(family, skill) {
			return family
		}
	}
	return nil
}

// Normalize lowercases, trims and deduplicates skills.
func Normalize(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		out = append(out, s)
	}
	slices.Sort(out)
	return slices.Compact(out)
}
