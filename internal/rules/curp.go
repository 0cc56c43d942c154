package rules

import (
	"regexp"
	"strings"
)

// CURP layout: 4 letters, 6 digits, gender marker (H or M), 5 letters,
// 1 alphanumeric, 1 digit. CURP carries no checksum in this scope.
var curpPattern = regexp.MustCompile(`^[A-Z]{4}[0-9]{6}[HM][A-Z]{5}[A-Z0-9][0-9]$`)

// ValidateCURP validates a Mexican CURP (Clave Única de Registro de
// Población). Matching is case-insensitive; input is uppercased first.
// Example: GARC850101HDFRRL09.
func ValidateCURP(curp string) bool {
	if len(curp) != 18 {
		return false
	}
	return curpPattern.MatchString(strings.ToUpper(curp))
}
