package egg

import (
	"fmt"
	"strconv"
	"strings"
)

// ValidateValue applies a variable's rules string to a value. Rules are
// pipe-separated tokens: required, nullable, string, numeric, min:n, max:n,
// between:a,b, in:v1,v2,...
//
// min/max/between compare numerically when the rules include numeric,
// otherwise by string length.
func ValidateValue(v Variable, value string) error {
	rules := strings.Split(v.Rules, "|")

	nullable := false
	numeric := false
	for _, r := range rules {
		switch strings.TrimSpace(r) {
		case "nullable":
			nullable = true
		case "numeric":
			numeric = true
		}
	}
	if value == "" {
		for _, r := range rules {
			if strings.TrimSpace(r) == "required" && !nullable {
				return fmt.Errorf("%s is required", v.EnvVariable)
			}
		}
		// Empty and not required: nothing further to check.
		return nil
	}

	for _, raw := range rules {
		rule := strings.TrimSpace(raw)
		name, arg, _ := strings.Cut(rule, ":")

		switch name {
		case "", "required", "nullable", "string":
			// string accepts anything; required/nullable handled above.
		case "numeric":
			if _, err := strconv.ParseFloat(value, 64); err != nil {
				return fmt.Errorf("%s must be numeric, got %q", v.EnvVariable, value)
			}
		case "min":
			bound, err := strconv.ParseFloat(arg, 64)
			if err != nil {
				return fmt.Errorf("bad rule %q on %s", rule, v.EnvVariable)
			}
			if magnitude(value, numeric) < bound {
				return fmt.Errorf("%s must be at least %s", v.EnvVariable, arg)
			}
		case "max":
			bound, err := strconv.ParseFloat(arg, 64)
			if err != nil {
				return fmt.Errorf("bad rule %q on %s", rule, v.EnvVariable)
			}
			if magnitude(value, numeric) > bound {
				return fmt.Errorf("%s must be at most %s", v.EnvVariable, arg)
			}
		case "between":
			lo, hi, ok := strings.Cut(arg, ",")
			if !ok {
				return fmt.Errorf("bad rule %q on %s", rule, v.EnvVariable)
			}
			loF, err1 := strconv.ParseFloat(strings.TrimSpace(lo), 64)
			hiF, err2 := strconv.ParseFloat(strings.TrimSpace(hi), 64)
			if err1 != nil || err2 != nil {
				return fmt.Errorf("bad rule %q on %s", rule, v.EnvVariable)
			}
			m := magnitude(value, numeric)
			if m < loF || m > hiF {
				return fmt.Errorf("%s must be between %s and %s", v.EnvVariable, lo, hi)
			}
		case "in":
			allowed := strings.Split(arg, ",")
			found := false
			for _, a := range allowed {
				if value == strings.TrimSpace(a) {
					found = true
					break
				}
			}
			if !found {
				return fmt.Errorf("%s must be one of %s", v.EnvVariable, arg)
			}
		default:
			// Unknown tokens are ignored rather than rejected; egg authors
			// use a wider DSL than the daemon enforces.
		}
	}
	return nil
}

// magnitude returns the numeric value when the rules include numeric and
// value parses as a number, otherwise its length.
func magnitude(value string, numeric bool) float64 {
	if numeric {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return float64(len(value))
}
