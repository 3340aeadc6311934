package cmd

import (
	"strings"

	"github.com/opsdesk/opsdesk/internal/models"
)

// classifyIssueType infers the issue category from the title using keyword
// heuristics. Trust-impacting categories (auth, scoring, tutor output,
// billing) are checked before cosmetic ones so "login page typo" lands on
// auth rather than content. Defaults to unknown if no keywords match.
func classifyIssueType(title string) models.IssueType {
	lower := strings.ToLower(title)

	authWords := []string{
		"login", "log in", "logout", "sign in", "signin", "sign up", "signup",
		"password", "auth", "session expired", "account locked", "2fa", "otp",
	}
	for _, kw := range authWords {
		if strings.Contains(lower, kw) {
			return models.IssueTypeAuthAccess
		}
	}

	scoringWords := []string{
		"score", "scoring", "grade", "graded", "grading",
		"quiz result", "exam result", "assessment", "marked wrong", "marked incorrect",
	}
	for _, kw := range scoringWords {
		if strings.Contains(lower, kw) {
			return models.IssueTypeAssessmentScore
		}
	}

	tutorWords := []string{
		"tutor", "hint", "explanation", "ai answer", "ai response",
		"wrong answer", "incorrect answer", "hallucin",
	}
	for _, kw := range tutorWords {
		if strings.Contains(lower, kw) {
			return models.IssueTypeTutorOutput
		}
	}

	billingWords := []string{
		"billing", "payment", "charge", "charged", "invoice", "refund",
		"subscription", "trial", "checkout", "card declined",
	}
	for _, kw := range billingWords {
		if strings.Contains(lower, kw) {
			return models.IssueTypeBilling
		}
	}

	navWords := []string{
		"navigation", "nav ", "menu", "back button", "redirect", "404",
		"broken link", "dead link", "cannot open", "can't open", "stuck on",
	}
	for _, kw := range navWords {
		if strings.Contains(lower, kw) {
			return models.IssueTypeUXNavigation
		}
	}

	perfWords := []string{
		"slow", "timeout", "timed out", "lag", "latency", "hangs", "hanging",
		"performance", "takes forever", "spinner",
	}
	for _, kw := range perfWords {
		if strings.Contains(lower, kw) {
			return models.IssueTypePerformance
		}
	}

	contentWords := []string{
		"typo", "misspell", "spelling", "grammar", "wording", "wrong text",
	}
	for _, kw := range contentWords {
		if strings.Contains(lower, kw) {
			return models.IssueTypeContent
		}
	}

	cosmeticWords := []string{
		"overlap", "misaligned", "alignment", "color", "colour", "font",
		"padding", "margin", "clipped", "truncated", "dark mode", "icon",
	}
	for _, kw := range cosmeticWords {
		if strings.Contains(lower, kw) {
			return models.IssueTypeCosmetic
		}
	}

	return models.IssueTypeUnknown
}
