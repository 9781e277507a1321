package engine

import (
	"path"
	"strings"
	"unicode"
	"unicode/utf8"
)

// noisePhrases are descriptions analyzers attach to style and hygiene
// reports that never describe an exploitable issue.
var noisePhrases = []string{
	"naming convention",
	"should be declared external",
	"should be constant",
	"should be immutable",
	"pragma version",
	"different versions of solidity",
	"too many digits",
	"gas optimization",
	"consider using",
}

var testDirs = map[string]bool{
	"test":     true,
	"tests":    true,
	"mock":     true,
	"mocks":    true,
	"example":  true,
	"examples": true,
	"fixtures": true,
}

// ReduceFalsePositives drops findings that are likely noise. The filter is
// stateless, so applying it twice gives the same result as applying it once.
// The input slice is not modified; callers wanting an audit trail should
// keep their own reference to it.
func ReduceFalsePositives(findings []ConsensusFinding) []ConsensusFinding {
	out := make([]ConsensusFinding, 0, len(findings))
	for _, f := range findings {
		if _, drop := FalsePositiveReason(f); drop {
			continue
		}
		out = append(out, f)
	}
	return out
}

// FalsePositiveReason reports why f would be dropped by ReduceFalsePositives.
func FalsePositiveReason(f ConsensusFinding) (string, bool) {
	switch {
	case f.Severity == SeverityLow && f.Tier == TierLow:
		return "low severity with low confidence", true
	case IsTestPath(f.File):
		return "test or example code", true
	case isNoise(f.Description):
		return "generic analyzer noise", true
	case f.Tier == TierLow && len(f.Tools) == 1:
		return "single source with low confidence", true
	}
	return "", false
}

// NormalizePath puts a reported file path into the form used for
// grouping: forward slashes, no "." or ".." segments and no leading "./".
// An empty path stays empty so that Validate still rejects it.
func NormalizePath(file string) string {
	file = strings.TrimSpace(file)
	if file == "" {
		return ""
	}
	return strings.TrimPrefix(path.Clean(strings.ReplaceAll(file, "\\", "/")), "./")
}

// IsTestPath reports whether file looks like test, mock or example code.
//
// Directory names are only inspected for relative paths, which analyzers
// report against the audited project. An absolute path carries directories
// above the project that say nothing about the file, so only its base name
// is checked.
func IsTestPath(file string) bool {
	p := NormalizePath(file)
	if p == "" {
		return false
	}
	if !isAbsPath(p) {
		for _, dir := range strings.Split(path.Dir(p), "/") {
			if testDirs[strings.ToLower(dir)] {
				return true
			}
		}
	}
	return isTestFileName(path.Base(p))
}

func isAbsPath(p string) bool {
	return strings.HasPrefix(p, "/") || (len(p) >= 2 && p[1] == ':')
}

var testNameParts = []string{"Test", "Mock"}

// isTestFileName matches Foundry's .t.sol suffix and names built from a
// Test or Mock word: TestBank.sol, Bank_test.sol, ERC20Mock.sol, mock-oracle.sol.
// Words that merely start with those letters (Testament, Mockable) do not count.
func isTestFileName(base string) bool {
	lower := strings.ToLower(base)
	if strings.HasSuffix(lower, ".t.sol") || strings.HasSuffix(lower, "_test.go") {
		return true
	}
	stem := strings.TrimSuffix(base, path.Ext(base))
	lowerStem := strings.ToLower(stem)
	for _, part := range testNameParts {
		lp := strings.ToLower(part)
		if lowerStem == lp {
			return true
		}
		// TestBank, Test_bank, test-bank
		if rest, ok := strings.CutPrefix(stem, part); ok && startsWord(rest, true) {
			return true
		}
		if rest, ok := strings.CutPrefix(stem, lp); ok && startsWord(rest, false) {
			return true
		}
		// BankTest, ERC20Mock, bank_test, bank-mock
		if rest, ok := strings.CutSuffix(stem, part); ok && rest != "" {
			return true
		}
		if rest, ok := strings.CutSuffix(lowerStem, lp); ok && rest != "" && isSeparator(rune(rest[len(rest)-1])) {
			return true
		}
	}
	return false
}

// startsWord reports whether rest begins a new word after a prefix. An
// upper-case letter counts only after a capitalized prefix (TestBank).
func startsWord(rest string, capitalized bool) bool {
	r, _ := utf8.DecodeRuneInString(rest)
	if r == utf8.RuneError {
		return false
	}
	return isSeparator(r) || unicode.IsDigit(r) || (capitalized && unicode.IsUpper(r))
}

func isSeparator(r rune) bool {
	return r == '_' || r == '-' || r == '.'
}

func isNoise(description string) bool {
	d := strings.ToLower(description)
	for _, phrase := range noisePhrases {
		if strings.Contains(d, phrase) {
			return true
		}
	}
	return false
}
