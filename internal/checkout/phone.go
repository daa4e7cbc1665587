package checkout

import "strings"

// NormalizePhone validates a South African phone number and returns it in
// local 0XXXXXXXXX form. Accepts "0823456789", "082 345 6789",
// "+27 82 345 6789" and the like.
func NormalizePhone(s string) (string, bool) {
	var digits strings.Builder
	rest := strings.TrimSpace(s)
	rest = strings.TrimPrefix(rest, "+")
	for _, r := range rest {
		switch {
		case r >= '0' && r <= '9':
			digits.WriteRune(r)
		case r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
			// separators are fine
		default:
			return "", false
		}
	}
	d := digits.String()

	switch {
	case len(d) == 11 && strings.HasPrefix(d, "27"):
		// +27 or bare 27 country code
		d = "0" + d[2:]
	case len(d) == 10 && d[0] == '0':
		// already local form
	default:
		return "", false
	}
	// second digit 1-8 covers geographic and mobile ranges
	if d[1] < '1' || d[1] > '8' {
		return "", false
	}
	return d, true
}
