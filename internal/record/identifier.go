package record

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	nonAlnum    = regexp.MustCompile(`[^a-z0-9]+`)
	tdPattern   = regexp.MustCompile(`td\D*(\d+)`)
	psurPattern = regexp.MustCompile(`psur\D*(\d+)`)
	tdMention   = regexp.MustCompile(`\btd\D*?(\d+)\b`)
	psurMention = regexp.MustCompile(`\bpsur\D*?(\d+)\b`)
)

// NormalizeIdentifier maps "td 45", "TD-045" and "td045" to TD045. Input that
// does not look like a TD number is returned trimmed but otherwise unchanged.
func NormalizeIdentifier(s string) string {
	if n, ok := numbered(tdPattern, s); ok {
		return fmt.Sprintf("TD%03d", n)
	}
	return strings.TrimSpace(s)
}

// NormalizeReportNumber maps "psur 7" and "PSUR-007" to PSUR007, with the same
// fallback as NormalizeIdentifier.
func NormalizeReportNumber(s string) string {
	if n, ok := numbered(psurPattern, s); ok {
		return fmt.Sprintf("PSUR%03d", n)
	}
	return strings.TrimSpace(s)
}

func numbered(re *regexp.Regexp, s string) (int, bool) {
	folded := nonAlnum.ReplaceAllString(strings.ToLower(s), "")
	m := re.FindStringSubmatch(folded)
	if m == nil || !strings.HasPrefix(folded, m[0]) {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// Mentions extracts canonical TD and PSUR identifiers from free text such as
// "when is psur-045 due for td 12". Missing kinds are returned empty.
func Mentions(text string) (identifier, reportNumber string) {
	q := strings.ToLower(text)
	if m := tdMention.FindStringSubmatch(q); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			identifier = fmt.Sprintf("TD%03d", n)
		}
	}
	if m := psurMention.FindStringSubmatch(q); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			reportNumber = fmt.Sprintf("PSUR%03d", n)
		}
	}
	return identifier, reportNumber
}
