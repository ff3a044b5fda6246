// Package patient holds the encounter record a clinician works on: the
// extracted field contents and the jobs list derived from the plan.
package patient

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/scribe/internal/format"
)

var (
	// ErrNotFound is returned when no record has the requested id.
	ErrNotFound = errors.New("patient not found")
	// ErrJobNotFound is returned when a job id is not in the record's jobs list.
	ErrJobNotFound = errors.New("job not found")
)

// Job is one actionable line of the plan.
type Job struct {
	ID        int    `json:"id"`
	Job       string `json:"job"`
	Completed bool   `json:"completed"`
}

// Record is a patient encounter. It exclusively owns its jobs list.
type Record struct {
	ID               string            `json:"id"`
	Name             string            `json:"name"`
	DOB              string            `json:"dob,omitempty"`
	Gender           string            `json:"gender,omitempty"`
	EncounterDate    string            `json:"encounter_date,omitempty"`
	TemplateKey      string            `json:"template_key"`
	TemplateData     map[string]string `json:"template_data"`
	Generated        map[string]string `json:"generated_data,omitempty"` // last machine output per field
	Jobs             []Job             `json:"jobs_list"`
	AllJobsCompleted bool              `json:"all_jobs_completed"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// JobsFromPlan keeps the plan lines whose first non-space character is a
// digit and numbers them from 1. Jobs start incomplete.
func JobsFromPlan(plan string) []Job {
	var jobs []Job
	for _, line := range strings.Split(plan, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || line[0] < '0' || line[0] > '9' {
			continue
		}
		jobs = append(jobs, Job{
			ID:  len(jobs) + 1,
			Job: format.StripNumber(line),
		})
	}
	return jobs
}

// SetJobs replaces the jobs list and recomputes AllJobsCompleted.
func (r *Record) SetJobs(jobs []Job) {
	r.Jobs = jobs
	r.AllJobsCompleted = allCompleted(jobs)
}

// ReplacePlan rebuilds the jobs list from new plan text. Jobs whose text is
// unchanged keep their completion state.
func (r *Record) ReplacePlan(plan string) {
	done := make(map[string]bool, len(r.Jobs))
	for _, j := range r.Jobs {
		if j.Completed {
			done[strings.ToLower(j.Job)] = true
		}
	}
	jobs := JobsFromPlan(plan)
	for i := range jobs {
		jobs[i].Completed = done[strings.ToLower(jobs[i].Job)]
	}
	r.SetJobs(jobs)
}

// ToggleJob sets the completion state of one job.
func (r *Record) ToggleJob(id int, completed bool) error {
	for i := range r.Jobs {
		if r.Jobs[i].ID == id {
			r.Jobs[i].Completed = completed
			r.AllJobsCompleted = allCompleted(r.Jobs)
			return nil
		}
	}
	return fmt.Errorf("toggle job %d: %w", id, ErrJobNotFound)
}

// Context returns the demographic context passed to the extractor.
func (r *Record) Context(now time.Time) Context {
	c := Context{}
	if r.Name != "" {
		c[KeyName] = r.Name
	}
	if age, ok := AgeAt(r.DOB, now); ok {
		c[KeyAge] = fmt.Sprintf("%d", age)
	}
	if r.Gender != "" {
		c[KeyGender] = r.Gender
	}
	return c
}

// SortedFieldKeys returns the keys of TemplateData in a stable order.
func (r *Record) SortedFieldKeys() []string {
	keys := make([]string, 0, len(r.TemplateData))
	for k := range r.TemplateData {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func allCompleted(jobs []Job) bool {
	for _, j := range jobs {
		if !j.Completed {
			return false
		}
	}
	return true
}

// AgeAt computes whole years between a YYYY-MM-DD date of birth and now.
func AgeAt(dob string, now time.Time) (int, bool) {
	born, err := time.Parse("2006-01-02", strings.TrimSpace(dob))
	if err != nil {
		return 0, false
	}
	age := now.Year() - born.Year()
	if now.Month() < born.Month() || (now.Month() == born.Month() && now.Day() < born.Day()) {
		age--
	}
	if age < 0 {
		return 0, false
	}
	return age, true
}
