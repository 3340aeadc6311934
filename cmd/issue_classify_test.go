package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/opsdesk/opsdesk/internal/models"
)

func TestClassifyIssueType(t *testing.T) {
	tests := []struct {
		title string
		want  models.IssueType
	}{
		// Auth
		{"Cannot login after password reset", models.IssueTypeAuthAccess},
		{"Sign up form rejects valid emails", models.IssueTypeAuthAccess},
		{"2FA code never arrives", models.IssueTypeAuthAccess},

		// Scoring
		{"Quiz result shows 0 despite correct answers", models.IssueTypeAssessmentScore},
		{"Essay graded before submission", models.IssueTypeAssessmentScore},

		// Tutor output
		{"Tutor gives wrong answer for fractions", models.IssueTypeTutorOutput},
		{"Hint reveals the full solution", models.IssueTypeTutorOutput},

		// Billing
		{"Charged twice for annual subscription", models.IssueTypeBilling},
		{"Refund button does nothing", models.IssueTypeBilling},

		// Navigation
		{"Back button loops on results page", models.IssueTypeUXNavigation},
		{"404 when opening lesson from email", models.IssueTypeUXNavigation},

		// Performance
		{"Dashboard takes forever to load", models.IssueTypePerformance},
		{"Report export timed out", models.IssueTypePerformance},

		// Content
		{"Typo in welcome banner", models.IssueTypeContent},
		{"Grammar mistake in lesson 3 intro", models.IssueTypeContent},

		// Cosmetic
		{"Buttons overlap on small screens", models.IssueTypeCosmetic},
		{"Wrong font in dark mode header", models.IssueTypeCosmetic},

		// Precedence: auth beats content
		{"Typo on login page", models.IssueTypeAuthAccess},
		// Precedence: scoring beats performance
		{"Scoring page is slow", models.IssueTypeAssessmentScore},

		// No match
		{"Something feels off", models.IssueTypeUnknown},
		{"", models.IssueTypeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyIssueType(tt.title))
		})
	}
}
