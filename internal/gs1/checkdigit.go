package gs1

// checkDigit computes the GS1 mod-10 check digit for a string of digits.
// Weights alternate 3,1,3,... starting from the rightmost digit of the body.
func checkDigit(body string) int {
	sum := 0
	weight := 3
	for i := len(body) - 1; i >= 0; i-- {
		sum += int(body[i]-'0') * weight
		if weight == 3 {
			weight = 1
		} else {
			weight = 3
		}
	}
	return (10 - sum%10) % 10
}

// allDigits reports whether s is non-empty and consists only of ASCII digits
func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
