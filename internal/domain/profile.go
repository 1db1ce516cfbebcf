package domain

// Profile is the structured personal-knowledge document the service answers
// questions about. It is loaded once at startup and treated as read-only.
type Profile struct {
	Personal   *Personal    `json:"personal,omitempty"`
	Education  *Education   `json:"education,omitempty"`
	Experience []Experience `json:"experience,omitempty"`
	Skills     *SkillSet    `json:"skills,omitempty"`
	Projects   []Project    `json:"projects,omitempty"`
}

// Personal holds contact information.
type Personal struct {
	Name     string `json:"name"`
	Location string `json:"location"`
	Email    string `json:"email"`
	LinkedIn string `json:"linkedin"`
	GitHub   string `json:"github"`
}

// Education holds the academic background section.
type Education struct {
	Degree             string   `json:"degree"`
	Institution        string   `json:"institution"`
	CGPA               string   `json:"cgpa"`
	ExpectedGraduation string   `json:"expected_graduation"`
	RelevantCoursework []string `json:"relevant_coursework"`
}

// Experience is a single work-experience entry.
type Experience struct {
	Role             string   `json:"role"`
	Company          string   `json:"company"`
	Location         string   `json:"location"`
	Duration         string   `json:"duration"`
	Responsibilities []string `json:"responsibilities"`
	Technologies     []string `json:"technologies"`
}

// SkillSet holds categorized skill lists. Categories are formatted and
// indexed in a fixed order: languages, frontend, backend, databases,
// devops, ai_ml.
type SkillSet struct {
	Languages []string `json:"languages,omitempty"`
	Frontend  []string `json:"frontend,omitempty"`
	Backend   []string `json:"backend,omitempty"`
	Databases []string `json:"databases,omitempty"`
	DevOps    []string `json:"devops,omitempty"`
	AIML      []string `json:"ai_ml,omitempty"`
}

// Project is a single portfolio project entry.
type Project struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Technologies []string `json:"technologies"`
	Highlights   []string `json:"highlights,omitempty"`
	GitHub       string   `json:"github,omitempty"`
	Demo         string   `json:"demo,omitempty"`
}

// IsEmpty reports whether the profile has no populated sections.
func (p *Profile) IsEmpty() bool {
	if p == nil {
		return true
	}
	return p.Personal == nil && p.Education == nil && len(p.Experience) == 0 &&
		p.Skills == nil && len(p.Projects) == 0
}
