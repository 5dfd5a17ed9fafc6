package models

// AssignmentType is the top-level category picked on the first wizard step.
type AssignmentType string

const (
	TypeCoursework         AssignmentType = "coursework"
	TypeDissertation       AssignmentType = "dissertation"
	TypeDoctoralThesis     AssignmentType = "doctoral_thesis"
	TypeApplicationWriting AssignmentType = "application_writing"
)

// AcademicLevel of the work being ordered.
type AcademicLevel string

const (
	LevelHighSchool    AcademicLevel = "high_school"
	LevelUndergraduate AcademicLevel = "undergraduate"
	LevelMasters       AcademicLevel = "masters"
	LevelDoctoral      AcademicLevel = "doctoral"
)

// ReferencingStyle accepted on the details step.
type ReferencingStyle string

const (
	StyleAPA       ReferencingStyle = "apa"
	StyleMLA       ReferencingStyle = "mla"
	StyleHarvard   ReferencingStyle = "harvard"
	StyleChicago   ReferencingStyle = "chicago"
	StyleIEEE      ReferencingStyle = "ieee"
	StyleOSCOLA    ReferencingStyle = "oscola"
	StyleVancouver ReferencingStyle = "vancouver"
)

// CatalogType describes one selectable category and its subtypes.
type CatalogType struct {
	Type     AssignmentType `json:"type"`
	Label    string         `json:"label"`
	Subtypes []string       `json:"subtypes"`
}

// Catalog is the fixed offer shown by the wizard, in display order.
var Catalog = []CatalogType{
	{
		Type:  TypeCoursework,
		Label: "Coursework",
		Subtypes: []string{
			"essay", "report", "case_study", "literature_review",
			"presentation", "reflective_writing", "lab_report",
		},
	},
	{
		Type:  TypeDissertation,
		Label: "Dissertation",
		Subtypes: []string{
			"full_dissertation", "proposal", "literature_review",
			"methodology", "data_analysis", "editing",
		},
	},
	{
		Type:  TypeDoctoralThesis,
		Label: "Doctoral Thesis",
		Subtypes: []string{
			"full_thesis", "research_proposal", "chapter", "editing_proofreading",
		},
	},
	{
		Type:  TypeApplicationWriting,
		Label: "Application Writing",
		Subtypes: []string{
			"personal_statement", "statement_of_purpose", "cover_letter",
			"cv_resume", "scholarship_essay",
		},
	},
}

var AcademicLevels = []AcademicLevel{
	LevelHighSchool, LevelUndergraduate, LevelMasters, LevelDoctoral,
}

var ReferencingStyles = []ReferencingStyle{
	StyleAPA, StyleMLA, StyleHarvard, StyleChicago, StyleIEEE, StyleOSCOLA, StyleVancouver,
}

// Subtypes returns the allowed subtypes of t, or nil for an unknown type.
func Subtypes(t AssignmentType) []string {
	for _, ct := range Catalog {
		if ct.Type == t {
			return ct.Subtypes
		}
	}
	return nil
}

func (t AssignmentType) Valid() bool { return Subtypes(t) != nil }

// HasSubtype reports whether s belongs to the subtype list of t.
func (t AssignmentType) HasSubtype(s string) bool {
	for _, st := range Subtypes(t) {
		if st == s {
			return true
		}
	}
	return false
}

func (l AcademicLevel) Valid() bool {
	for _, v := range AcademicLevels {
		if v == l {
			return true
		}
	}
	return false
}

func (s ReferencingStyle) Valid() bool {
	for _, v := range ReferencingStyles {
		if v == s {
			return true
		}
	}
	return false
}
