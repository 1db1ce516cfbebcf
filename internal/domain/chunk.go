package domain

import (
	"fmt"
	"strings"
)

// Section identifies which part of the profile a chunk was derived from.
type Section string

const (
	SectionPersonal   Section = "personal"
	SectionEducation  Section = "education"
	SectionExperience Section = "experience"
	SectionSkills     Section = "skills"
	SectionProjects   Section = "projects"
	SectionUnknown    Section = "unknown"
)

// Chunk bounds for the chunker. Chunks shorter than MinChunkChars after
// formatting are dropped; longer ones are truncated to MaxChunkChars.
const (
	MinChunkChars = 200
	MaxChunkChars = 500
)

// Chunk is a bounded text segment produced by the chunker. Immutable once
// created; the whole set is replaced on reindex.
type Chunk struct {
	ID         string
	Text       string
	Section    Section
	Subsection string
	CharCount  int
}

// ChunkMetadata is the metadata stored alongside each index entry.
type ChunkMetadata struct {
	ChunkID    string  `json:"chunk_id"`
	Section    Section `json:"section"`
	Subsection string  `json:"subsection"`
	CharCount  int     `json:"char_count"`
	Source     string  `json:"source"`
}

// sectionRule maps a keyword set to a section. Rules are evaluated
// top-to-bottom and the first rule with any matching keyword wins, so the
// declaration order is the tie-break order.
type sectionRule struct {
	keywords   []string
	section    Section
	subsection string
}

var sectionRules = []sectionRule{
	{
		keywords:   []string{"contact:", "email:", "linkedin:", "github:"},
		section:    SectionPersonal,
		subsection: "contact_info",
	},
	{
		keywords:   []string{"education:", "b.tech", "cgpa:"},
		section:    SectionEducation,
		subsection: "academic_background",
	},
	{
		keywords:   []string{"current role:", "responsibilities:", "duration:"},
		section:    SectionExperience,
		subsection: "work_experience",
	},
	{
		keywords: []string{
			"programming languages:",
			"frontend technologies:",
			"backend technologies:",
			"database technologies:",
			"devops tools:",
			"ai/ml technologies:",
		},
		section: SectionSkills,
	},
}

// skillSubsections resolves the skills subsection, checked in order so that
// e.g. "database" does not shadow "devops".
var skillSubsections = []struct {
	keyword    string
	subsection string
}{
	{"programming languages:", "languages"},
	{"frontend", "frontend"},
	{"backend", "backend"},
	{"database", "databases"},
	{"devops", "devops"},
	{"ai/ml", "ai_ml"},
}

// ClassifyChunk derives the section and subsection for a chunk text using
// the ordered keyword rules. Anything that matches no rule is treated as a
// project chunk, with the subsection derived from the leading project name
// when one is present.
func ClassifyChunk(text string, index int) (Section, string) {
	lower := strings.ToLower(text)

	for _, rule := range sectionRules {
		for _, kw := range rule.keywords {
			if !strings.Contains(lower, kw) {
				continue
			}
			if rule.section == SectionSkills {
				return SectionSkills, skillSubsection(lower)
			}
			return rule.section, rule.subsection
		}
	}

	return SectionProjects, projectSubsection(text, index)
}

func skillSubsection(lower string) string {
	for _, s := range skillSubsections {
		if strings.Contains(lower, s.keyword) {
			return s.subsection
		}
	}
	return ""
}

func projectSubsection(text string, index int) string {
	colon := strings.Index(text, ":")
	if colon > 0 && colon < 100 {
		name := strings.TrimSpace(text[:colon])
		return "project_" + strings.ReplaceAll(strings.ToLower(name), " ", "_")
	}
	return fmt.Sprintf("project_%d", index)
}

// Metadata builds the stored metadata for a chunk.
func (c Chunk) Metadata(source string) ChunkMetadata {
	return ChunkMetadata{
		ChunkID:    c.ID,
		Section:    c.Section,
		Subsection: c.Subsection,
		CharCount:  c.CharCount,
		Source:     source,
	}
}
