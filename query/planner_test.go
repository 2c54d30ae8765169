package query

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPlannerCachesSuccessfulPlans(t *testing.T) {
	var p = NewPlanner(NewValidator(DefaultLimits()), 16)

	first, err := p.Plan("c:r t:creature")
	require.NoError(t, err)
	require.True(t, p.plans.Contains("c:r t:creature"))

	second, err := p.Plan("c:r t:creature")
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestPlannerRejectsInvalidQueries(t *testing.T) {
	var p = NewPlanner(NewValidator(DefaultLimits()), 16)

	_, err := p.Plan("(c:r")
	require.Error(t, err)
	require.Contains(t, err.Error(), "unclosed")
	require.False(t, p.plans.Contains("(c:r"))

	_, err = p.Plan("artist:bob")
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid field name")
	require.False(t, p.plans.Contains("artist:bob"))
}

func TestPlannerEvictsOldEntries(t *testing.T) {
	var p = NewPlanner(NewValidator(DefaultLimits()), 2)

	_, err := p.Plan("name:a")
	require.NoError(t, err)
	_, err = p.Plan("name:b")
	require.NoError(t, err)
	_, err = p.Plan("name:c")
	require.NoError(t, err)

	require.False(t, p.plans.Contains("name:a"))
	require.True(t, p.plans.Contains("name:c"))
}

func TestPlannerLimits(t *testing.T) {
	var limits = Limits{MaxQueryLength: 10, MaxNestingDepth: 2, MaxOrClauses: 1, MaxResults: 5}
	var p = NewPlanner(NewValidator(limits), 0)
	require.Equal(t, limits, p.Limits())

	_, err := p.Plan("name:toolong")
	require.Error(t, err)
	require.Contains(t, err.Error(), "query too long")
}