package dap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testURI = "/home/user/analysis.R"

func TestSetBreakpoints_InitialUnverified(t *testing.T) {
	s := NewState()

	result := s.SetBreakpoints(testURI, "hash-1", []int{3, 7, 12})
	require.Len(t, result, 3)

	for i, bp := range result {
		assert.Equal(t, Unverified, bp.State)
		assert.False(t, bp.IsVerified())
		assert.Equal(t, []int{3, 7, 12}[i], bp.Line)
	}
	assert.Greater(t, result[1].ID, result[0].ID)
	assert.Greater(t, result[2].ID, result[1].ID)
}

func TestSetBreakpoints_IdempotentKeepsIDs(t *testing.T) {
	s := NewState()

	first := s.SetBreakpoints(testURI, "hash-1", []int{3, 7})
	second := s.SetBreakpoints(testURI, "hash-1", []int{3, 7})

	require.Len(t, second, 2)
	assert.Equal(t, first[0].ID, second[0].ID)
	assert.Equal(t, first[1].ID, second[1].ID)
}

func TestSetBreakpoints_VerifiedSurvivesUncheckRecheck(t *testing.T) {
	s := NewState()

	first := s.SetBreakpoints(testURI, "hash-1", []int{5})
	s.VerifyBreakpoints(testURI, 1, 100)

	// Uncheck: the verified breakpoint leaves the response but stays
	// in the table as Disabled.
	gone := s.SetBreakpoints(testURI, "hash-1", []int{})
	assert.Empty(t, gone)

	stored := s.DocumentBreakpoints(testURI)
	require.Len(t, stored, 1)
	assert.Equal(t, Disabled, stored[0].State)

	// Recheck: it comes back Verified immediately, same id, no
	// re-verification round trip.
	back := s.SetBreakpoints(testURI, "hash-1", []int{5})
	require.Len(t, back, 1)
	assert.Equal(t, first[0].ID, back[0].ID)
	assert.Equal(t, Verified, back[0].State)
}

func TestSetBreakpoints_HashChangeDiscards(t *testing.T) {
	s := NewState()

	first := s.SetBreakpoints(testURI, "hash-1", []int{5})
	s.VerifyBreakpoints(testURI, 1, 100)

	second := s.SetBreakpoints(testURI, "hash-2", []int{5})
	require.Len(t, second, 1)
	assert.NotEqual(t, first[0].ID, second[0].ID)
	assert.Equal(t, Unverified, second[0].State)

	stored := s.DocumentBreakpoints(testURI)
	assert.Len(t, stored, 1)
}

func TestSetBreakpoints_UnverifiedOmittedIsDropped(t *testing.T) {
	s := NewState()

	s.SetBreakpoints(testURI, "hash-1", []int{5, 9})
	s.SetBreakpoints(testURI, "hash-1", []int{9})

	stored := s.DocumentBreakpoints(testURI)
	require.Len(t, stored, 1)
	assert.Equal(t, 9, stored[0].Line)
}

func TestVerifyBreakpoints_RangeOnly(t *testing.T) {
	s := NewState()
	s.SetBreakpoints(testURI, "hash-1", []int{2, 10, 20})

	s.VerifyBreakpoints(testURI, 5, 15)

	stored := s.DocumentBreakpoints(testURI)
	require.Len(t, stored, 3)
	assert.Equal(t, Unverified, stored[0].State)
	assert.Equal(t, Verified, stored[1].State)
	assert.Equal(t, Unverified, stored[2].State)
}

func TestVerifyBreakpoints_EmitsChangeEvents(t *testing.T) {
	s := NewState()
	s.SetConnected(true)
	s.SetBreakpoints(testURI, "hash-1", []int{4, 6})

	s.VerifyBreakpoints(testURI, 1, 10)

	seen := 0
	for len(s.Events()) > 0 {
		ev := <-s.Events()
		if ev.Kind == EventBreakpoint {
			seen++
			require.NotNil(t, ev.Breakpoint)
			assert.Equal(t, Verified, ev.Breakpoint.State)
		}
	}
	assert.Equal(t, 2, seen)
}

func TestInvalidateBreakpoint_ThenResetRetries(t *testing.T) {
	s := NewState()
	first := s.SetBreakpoints(testURI, "hash-1", []int{8})

	s.InvalidateBreakpoint(testURI, 8, "not a statement")
	stored := s.DocumentBreakpoints(testURI)
	require.Len(t, stored, 1)
	assert.Equal(t, Invalid, stored[0].State)
	assert.Equal(t, "not a statement", stored[0].InvalidReason)

	// Re-sending the same request gives the invalid breakpoint another
	// chance under the same id.
	retry := s.SetBreakpoints(testURI, "hash-1", []int{8})
	require.Len(t, retry, 1)
	assert.Equal(t, first[0].ID, retry[0].ID)
	assert.Equal(t, Unverified, retry[0].State)
	assert.Empty(t, retry[0].InvalidReason)
}

func TestSetBreakpoints_IndependentDocuments(t *testing.T) {
	s := NewState()

	a := s.SetBreakpoints("/a.R", "hash-a", []int{1})
	b := s.SetBreakpoints("/b.R", "hash-b", []int{1})

	assert.NotEqual(t, a[0].ID, b[0].ID)
	s.SetBreakpoints("/a.R", "other-hash", []int{1})

	stored := s.DocumentBreakpoints("/b.R")
	require.Len(t, stored, 1)
	assert.Equal(t, b[0].ID, stored[0].ID)
}
