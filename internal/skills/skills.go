// Package skills decides whether a worker may perform a job.
//
// Jobs carry their requirement in one of two forms: an explicit set of
// skill ids, or implicitly through their service category. The explicit
// path demands ALL listed skills; the implicit path accepts ANY keyword
// match. The asymmetry is intentional and reflects the different
// confidence levels of the two data sources.
package skills

import (
	"strings"

	"fieldops/internal/model"
)

// Engine evaluates job skill requirements against worker skill sets.
type Engine struct {
	keywords map[string][]string // lowercased service category -> acceptable skill names
}

// NewEngine builds an Engine from a service-category keyword table
// (normally config.DispatchPolicy.SkillKeywords).
func NewEngine(keywords map[string][]string) *Engine {
	kw := make(map[string][]string, len(keywords))
	for cat, names := range keywords {
		kw[strings.ToLower(strings.TrimSpace(cat))] = names
	}
	return &Engine{keywords: kw}
}

// requirement is the variant a job's skill demand resolves to.
type requirement interface {
	satisfiedBy(w model.Worker, e *Engine) bool
}

// explicit requires every listed skill id.
type explicit struct{ ids []string }

// implicit requires any keyword match for the job's service category.
type implicit struct{ category string }

func requirementOf(job model.Job) requirement {
	if len(job.RequiredSkillIDs) > 0 {
		return explicit{ids: job.RequiredSkillIDs}
	}
	return implicit{category: job.ServiceType}
}

func (r explicit) satisfiedBy(w model.Worker, _ *Engine) bool {
	have := make(map[string]struct{}, len(w.SkillIDs))
	for _, id := range w.SkillIDs {
		have[id] = struct{}{}
	}
	for _, id := range r.ids {
		if _, ok := have[id]; !ok {
			return false
		}
	}
	return true
}

func (r implicit) satisfiedBy(w model.Worker, e *Engine) bool {
	accepted := e.keywords[strings.ToLower(strings.TrimSpace(r.category))]
	if len(accepted) == 0 {
		// Unlisted or open category: any worker qualifies.
		return true
	}
	for _, name := range w.SkillNames {
		for _, kw := range accepted {
			if fuzzyMatch(name, kw) {
				return true
			}
		}
	}
	return false
}

// fuzzyMatch reports a case-insensitive equal/contains/contained match.
func fuzzyMatch(skillName, keyword string) bool {
	a := strings.ToLower(strings.TrimSpace(skillName))
	b := strings.ToLower(strings.TrimSpace(keyword))
	if a == "" || b == "" {
		return false
	}
	return a == b || strings.Contains(a, b) || strings.Contains(b, a)
}

// IsQualified reports whether the worker may perform the job.
func (e *Engine) IsQualified(w model.Worker, job model.Job) bool {
	if job.AllowUnqualified {
		return true
	}
	return requirementOf(job).satisfiedBy(w, e)
}

// MissingSkills returns the explicitly required skill ids the worker
// lacks, in the job's declaration order. It is empty when the job has no
// explicit requirements; the implicit path has nothing enumerable to
// report.
func (e *Engine) MissingSkills(w model.Worker, job model.Job) []string {
	if len(job.RequiredSkillIDs) == 0 {
		return nil
	}
	have := make(map[string]struct{}, len(w.SkillIDs))
	for _, id := range w.SkillIDs {
		have[id] = struct{}{}
	}
	var missing []string
	for _, id := range job.RequiredSkillIDs {
		if _, ok := have[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}
