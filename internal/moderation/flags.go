// Package moderation contains the heuristic content scanner and the
// administrative moderation service.
package moderation

import "strings"

// Flag names produced by DetectFlags.
const (
	FlagRepeatedChars = "repeated-characters"
	FlagLinkOnly      = "link-only"
	FlagBannedKeyword = "banned-keyword"
)

// repeatedRunThreshold is the run length at which repeated characters are
// considered spammy.
const repeatedRunThreshold = 7

// linkOnlyMaxLength: a message containing a bare URL counts as link-only when
// it is shorter than this.
const linkOnlyMaxLength = 30

var bannedKeywords = []string{
	"free money",
	"giveaway",
	"scam",
	"spam",
}

// DetectFlags scans content and returns the moderation flags it triggers.
// It is a pure function: deterministic, no side effects.
func DetectFlags(content string) []string {
	var flags []string

	if hasRepeatedRun(content, repeatedRunThreshold) {
		flags = append(flags, FlagRepeatedChars)
	}
	if len(content) < linkOnlyMaxLength && containsURLToken(content) {
		flags = append(flags, FlagLinkOnly)
	}
	lower := strings.ToLower(content)
	for _, keyword := range bannedKeywords {
		if strings.Contains(lower, keyword) {
			flags = append(flags, FlagBannedKeyword)
			break
		}
	}

	return flags
}

// hasRepeatedRun reports whether any rune repeats at least n times in a row.
// RE2 has no backreferences, so this is a plain scan.
func hasRepeatedRun(s string, n int) bool {
	var prev rune
	run := 0
	for _, r := range s {
		if r == prev {
			run++
			if run >= n {
				return true
			}
		} else {
			prev = r
			run = 1
			if run >= n {
				return true
			}
		}
	}
	return false
}

func containsURLToken(s string) bool {
	for _, token := range strings.Fields(s) {
		if strings.HasPrefix(token, "http://") || strings.HasPrefix(token, "https://") {
			return true
		}
	}
	return false
}
