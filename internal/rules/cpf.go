package rules

// ValidateCPF validates a Brazilian CPF (Cadastro de Pessoas Físicas).
//
// Dots and dashes are stripped first, so both 123.456.789-09 and 12345678909
// are accepted forms. The cleaned value must be exactly 11 digits, must not
// be an all-same-digit sequence, and the two check digits (positions 10-11)
// must match the weighted-sum-mod-11 checksum, with a remainder of 10
// treated as 0.
func ValidateCPF(cpf string) bool {
	digits := make([]int, 0, 11)
	for _, r := range cpf {
		if r >= '0' && r <= '9' {
			digits = append(digits, int(r-'0'))
		}
	}
	if len(digits) != 11 {
		return false
	}

	allSame := true
	for _, d := range digits[1:] {
		if d != digits[0] {
			allSame = false
			break
		}
	}
	if allSame {
		return false
	}

	if checkDigit(digits[:9], 10) != digits[9] {
		return false
	}
	return checkDigit(digits[:10], 11) == digits[10]
}

// checkDigit computes a CPF verification digit over the given prefix using
// descending weights starting at startWeight.
func checkDigit(prefix []int, startWeight int) int {
	sum := 0
	for i, d := range prefix {
		sum += d * (startWeight - i)
	}
	remainder := (sum * 10) % 11
	if remainder == 10 {
		remainder = 0
	}
	return remainder
}
