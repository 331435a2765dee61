// pkg/checksum/checksum.go

// Package checksum implements the check-digit rules for the Brazilian
// national tax identifiers: CPF (11 digits, individuals) and CNPJ (14
// digits, companies). Both use the mod-11 remainder rule: a check digit is 0
// when sum%11 < 2, else 11 - sum%11.
package checksum

var (
	cnpjWeights1 = []int{5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
	cnpjWeights2 = []int{6, 5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
)

// ValidCPF reports whether s is a valid 11-digit CPF. Inputs that are not
// digit-only, have the wrong length, or repeat a single digit are invalid
// without computing checksums.
func ValidCPF(s string) bool {
	if !digitsOnly(s, 11) || allSame(s) {
		return false
	}
	d := toDigits(s)

	sum := 0
	for i := 0; i < 9; i++ {
		sum += d[i] * (10 - i)
	}
	if checkDigit(sum) != d[9] {
		return false
	}

	sum = 0
	for i := 0; i < 10; i++ {
		sum += d[i] * (11 - i)
	}
	return checkDigit(sum) == d[10]
}

// ValidCNPJ reports whether s is a valid 14-digit CNPJ.
func ValidCNPJ(s string) bool {
	if !digitsOnly(s, 14) || allSame(s) {
		return false
	}
	d := toDigits(s)

	sum := 0
	for i, w := range cnpjWeights1 {
		sum += d[i] * w
	}
	if checkDigit(sum) != d[12] {
		return false
	}

	sum = 0
	for i, w := range cnpjWeights2 {
		sum += d[i] * w
	}
	return checkDigit(sum) == d[13]
}

func checkDigit(sum int) int {
	if r := sum % 11; r >= 2 {
		return 11 - r
	}
	return 0
}

func digitsOnly(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func allSame(s string) bool {
	for i := 1; i < len(s); i++ {
		if s[i] != s[0] {
			return false
		}
	}
	return true
}

func toDigits(s string) []int {
	d := make([]int, len(s))
	for i := 0; i < len(s); i++ {
		d[i] = int(s[i] - '0')
	}
	return d
}
