package patient

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobsFromPlan(t *testing.T) {
	jobs := JobsFromPlan("1. Check CBC\n2. Refer derm\nNotes: misc")

	require.Len(t, jobs, 2)
	assert.Equal(t, Job{ID: 1, Job: "Check CBC"}, jobs[0])
	assert.Equal(t, Job{ID: 2, Job: "Refer derm"}, jobs[1])
}

func TestJobsFromPlan_IndentedAndEmpty(t *testing.T) {
	assert.Empty(t, JobsFromPlan(""))
	assert.Empty(t, JobsFromPlan("- bullet only\nfree text"))

	jobs := JobsFromPlan("   3. Indented\n\n10. Ten")
	require.Len(t, jobs, 2)
	assert.Equal(t, 1, jobs[0].ID)
	assert.Equal(t, "Indented", jobs[0].Job)
	assert.Equal(t, 2, jobs[1].ID)
	assert.Equal(t, "Ten", jobs[1].Job)
}

func TestSetJobs_RecomputesAllCompleted(t *testing.T) {
	r := &Record{}
	r.SetJobs([]Job{{ID: 1, Completed: true}, {ID: 2, Completed: false}})
	assert.False(t, r.AllJobsCompleted)

	require.NoError(t, r.ToggleJob(2, true))
	assert.True(t, r.AllJobsCompleted)

	require.NoError(t, r.ToggleJob(1, false))
	assert.False(t, r.AllJobsCompleted)
}

func TestToggleJob_NotFound(t *testing.T) {
	r := &Record{}
	r.SetJobs([]Job{{ID: 1}})
	err := r.ToggleJob(9, true)
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestReplacePlan_KeepsCompletion(t *testing.T) {
	r := &Record{}
	r.SetJobs([]Job{{ID: 1, Job: "Check CBC", Completed: true}, {ID: 2, Job: "Refer derm"}})

	r.ReplacePlan("1. Refer derm\n2. Check CBC\n3. Book follow up")

	require.Len(t, r.Jobs, 3)
	assert.False(t, r.Jobs[0].Completed)
	assert.True(t, r.Jobs[1].Completed)
	assert.False(t, r.Jobs[2].Completed)
	assert.False(t, r.AllJobsCompleted)
}

func TestContext(t *testing.T) {
	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	r := &Record{Name: "Jane Doe", DOB: "1980-03-11", Gender: "F"}

	c := r.Context(now)
	assert.Equal(t, "45", c[KeyAge])
	assert.Equal(t, "Patient name: Jane Doe. Age: 45. Gender: F.", c.SystemMessage())

	r = &Record{Name: "John"}
	c = r.Context(now)
	_, hasAge := c[KeyAge]
	assert.False(t, hasAge)
	assert.Equal(t, "Patient name: John.", c.SystemMessage())

	assert.Equal(t, "", Context{}.SystemMessage())
}
