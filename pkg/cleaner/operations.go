// pkg/cleaner/operations.go
package cleaner

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/danalec/CNPJ-Receita-Federal/pkg/model"
)

var (
	emailBasicRe      = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	emailAggressiveRe = regexp.MustCompile(`^[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}$`)
	digitRunRe        = regexp.MustCompile(`\d+`)
)

// trimToNull trims surrounding whitespace and collapses empty strings to
// NULL.
func trimToNull(s string) *string {
	t := strings.TrimSpace(s)
	if t == "" {
		return nil
	}
	return &t
}

// digitsOf strips every non-digit rune; empty results become NULL.
func digitsOf(s string) *string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return nil
	}
	out := b.String()
	return &out
}

// digitsExact strips non-digits and requires exactly n digits, else NULL.
func digitsExact(s string, n int) *string {
	d := digitsOf(s)
	if d == nil || len(*d) != n {
		return nil
	}
	return d
}

// normalizeUF uppercases two-letter state codes and checks them against the
// federative-unit set. Codes outside the set become NULL.
func normalizeUF(s string) *string {
	t := strings.ToUpper(strings.TrimSpace(s))
	if t == "" || !model.ValidUF(t) {
		return nil
	}
	return &t
}

// normalizeEmail lowercase-trims and shape-checks an address. Basic mode
// accepts any single-@ value with a dot after the @; aggressive mode
// restricts the character classes.
func normalizeEmail(s string, level Level) *string {
	t := strings.ToLower(strings.TrimSpace(s))
	if t == "" {
		return nil
	}
	if level == LevelAggressive {
		if !emailAggressiveRe.MatchString(t) {
			return nil
		}
		return &t
	}
	if !emailBasicRe.MatchString(t) {
		return nil
	}
	return &t
}

// normalizePhone keeps only digits. In aggressive mode anything outside the
// plausible 8 to 11 digit range becomes NULL.
func normalizePhone(s string, level Level) *string {
	d := digitsOf(s)
	if d == nil {
		return nil
	}
	if level == LevelAggressive {
		if n := len(*d); n < 8 || n > 11 {
			return nil
		}
	}
	return d
}

// normalizeDDD keeps only digits; aggressive mode requires a 2 or 3 digit
// area code.
func normalizeDDD(s string, level Level) *string {
	d := digitsOf(s)
	if d == nil {
		return nil
	}
	if level == LevelAggressive {
		if n := len(*d); n < 2 || n > 3 {
			return nil
		}
	}
	return d
}

// e164Example renders a Brazilian number for telemetry examples. Never
// written back to the row.
func e164Example(ddd, phone string) string {
	return "+55" + ddd + phone
}

// sanitizeDate normalizes source dates to ISO. Accepts YYYYMMDD and
// already-ISO YYYY-MM-DD input; invalid calendar fields and the registry's
// zero sentinels become NULL. Idempotent over its own output.
func sanitizeDate(s string) *string {
	t := strings.TrimSpace(s)
	switch t {
	case "", "0", "00000000", "0000-00-00":
		return nil
	}
	var y, m, d string
	switch {
	case len(t) == 8 && isDigits(t):
		y, m, d = t[:4], t[4:6], t[6:8]
	case len(t) == 10 && t[4] == '-' && t[7] == '-' && isDigits(t[:4]) && isDigits(t[5:7]) && isDigits(t[8:10]):
		y, m, d = t[:4], t[5:7], t[8:10]
	default:
		return nil
	}
	mi, _ := strconv.Atoi(m)
	di, _ := strconv.Atoi(d)
	yi, _ := strconv.Atoi(y)
	if yi < 1 || mi < 1 || mi > 12 || di < 1 || di > 31 {
		return nil
	}
	out := y + "-" + m + "-" + d
	return &out
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// normalizeDecimalComma converts the registry's comma-decimal money format
// to a dotted decimal. Values already dotted pass through unchanged, which
// keeps the operation idempotent. Non-numeric input becomes NULL.
func normalizeDecimalComma(s string) *string {
	t := strings.TrimSpace(s)
	if t == "" {
		return nil
	}
	if strings.Contains(t, ",") {
		t = strings.ReplaceAll(t, ".", "")
		t = strings.ReplaceAll(t, ",", ".")
	}
	v, err := strconv.ParseFloat(t, 64)
	if err != nil || v != v {
		return nil
	}
	out := strconv.FormatFloat(v, 'f', -1, 64)
	return &out
}

// normalizeCNAEList parses a secondary-activity list into comma-separated
// seven-digit codes. Digit runs shorter than seven are zero-padded on the
// left; longer runs are dropped. Aggressive mode additionally deduplicates
// and sorts. A non-nil return with ok=false flags a value that had content
// but yielded no valid code.
func normalizeCNAEList(s string, level Level) (out *string, ok bool) {
	t := strings.TrimSpace(s)
	if t == "" {
		return nil, true
	}
	runs := digitRunRe.FindAllString(t, -1)
	codes := make([]string, 0, len(runs))
	for _, r := range runs {
		if len(r) > 7 {
			continue
		}
		codes = append(codes, strings.Repeat("0", 7-len(r))+r)
	}
	if len(codes) == 0 {
		return nil, false
	}
	if level == LevelAggressive {
		seen := make(map[string]struct{}, len(codes))
		uniq := codes[:0]
		for _, c := range codes {
			if _, dup := seen[c]; dup {
				continue
			}
			seen[c] = struct{}{}
			uniq = append(uniq, c)
		}
		codes = uniq
		sort.Strings(codes)
	}
	// Stored as a Postgres text array literal.
	joined := "{" + strings.Join(codes, ",") + "}"
	return &joined, true
}
