package service

import (
	"fmt"
	"strings"

	"github.com/askfolio/askfolio/internal/domain"
)

// maxResponsibilityChars caps the responsibilities excerpt inside an
// experience chunk so the surrounding template stays within chunk bounds.
const maxResponsibilityChars = 300

// BuildChunks splits the profile into bounded text chunks with section
// metadata. Pure and deterministic: the same profile always yields a
// byte-identical chunk sequence.
//
// Chunks shorter than domain.MinChunkChars after formatting are dropped
// rather than padded or merged, so very small sections (a short skills
// list, a sparse contact block) contribute nothing. Chunks longer than
// domain.MaxChunkChars are truncated.
func BuildChunks(profile *domain.Profile) []domain.Chunk {
	b := chunkBuilder{}
	if profile == nil {
		return b.chunks
	}

	if p := profile.Personal; p != nil {
		b.emit(fmt.Sprintf(
			"%s is located in %s. Contact: %s, LinkedIn: %s, GitHub: %s",
			p.Name, p.Location, p.Email, p.LinkedIn, p.GitHub,
		))
	}

	if e := profile.Education; e != nil {
		coursework := strings.Join(e.RelevantCoursework, ", ")
		b.emit(fmt.Sprintf(
			"Education: %s from %s, CGPA: %s, graduating in %s. Relevant coursework includes %s.",
			e.Degree, e.Institution, e.CGPA, e.ExpectedGraduation, coursework,
		))
	}

	for _, exp := range profile.Experience {
		responsibilities := truncateRunes(strings.Join(exp.Responsibilities, " "), maxResponsibilityChars)
		b.emit(fmt.Sprintf(
			"Current role: %s at %s (%s). Duration: %s. Responsibilities: %s",
			exp.Role, exp.Company, exp.Location, exp.Duration, responsibilities,
		))

		if len(exp.Technologies) > 0 {
			b.emit(fmt.Sprintf(
				"%s at %s uses technologies: %s",
				exp.Role, exp.Company, strings.Join(exp.Technologies, ", "),
			))
		}
	}

	if s := profile.Skills; s != nil {
		// Fixed category order; part of the deterministic output contract.
		skillCategories := []struct {
			label string
			items []string
		}{
			{"Programming Languages", s.Languages},
			{"Frontend Technologies", s.Frontend},
			{"Backend Technologies", s.Backend},
			{"Database Technologies", s.Databases},
			{"DevOps Tools", s.DevOps},
			{"AI/ML Technologies", s.AIML},
		}
		for _, cat := range skillCategories {
			if len(cat.items) == 0 {
				continue
			}
			b.emit(fmt.Sprintf("%s: %s", cat.label, strings.Join(cat.items, ", ")))
		}
	}

	for _, project := range profile.Projects {
		b.emit(fmt.Sprintf(
			"%s: %s Technologies: %s",
			project.Name, project.Description, strings.Join(project.Technologies, ", "),
		))

		if len(project.Highlights) > 0 {
			b.emit(fmt.Sprintf(
				"%s highlights: %s",
				project.Name, strings.Join(project.Highlights, " "),
			))
		}

		var links []string
		if project.GitHub != "" {
			links = append(links, "GitHub: "+project.GitHub)
		}
		if project.Demo != "" {
			links = append(links, "Demo: "+project.Demo)
		}
		if len(links) > 0 {
			b.emit(fmt.Sprintf("%s - %s", project.Name, strings.Join(links, ", ")))
		}
	}

	return b.chunks
}

type chunkBuilder struct {
	chunks []domain.Chunk
}

// emit applies the chunk bounds and, when the text survives them, appends
// it with a stable id and derived section metadata.
func (b *chunkBuilder) emit(text string) {
	runes := []rune(text)
	if len(runes) < domain.MinChunkChars {
		return
	}
	if len(runes) > domain.MaxChunkChars {
		runes = runes[:domain.MaxChunkChars]
		text = string(runes)
	}

	index := len(b.chunks)
	section, subsection := domain.ClassifyChunk(text, index)
	b.chunks = append(b.chunks, domain.Chunk{
		ID:         fmt.Sprintf("chunk_%d", index),
		Text:       text,
		Section:    section,
		Subsection: subsection,
		CharCount:  len(runes),
	})
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
