package tablesource

import (
	"os"
	"regexp"

	"github.com/peter-fm/tabdiff/pkg/errs"
)

var envTokenPattern = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// SubstituteEnv replaces every {NAME} token in a SQL source file's DSN or
// query text with the value of the process environment variable NAME
// (spec.md §6). A referenced variable that isn't set is a hard failure:
// tabdiff never silently substitutes an empty string for a missing
// credential.
func SubstituteEnv(text string) (string, error) {
	var missing []string
	result := envTokenPattern.ReplaceAllStringFunc(text, func(token string) string {
		name := envTokenPattern.FindStringSubmatch(token)[1]
		val, ok := os.LookupEnv(name)
		if !ok {
			missing = append(missing, name)
			return token
		}
		return val
	})
	if len(missing) > 0 {
		return "", errs.New(errs.KindSourceUnreadable, "missing environment variable(s) for SQL source: "+joinUnique(missing))
	}
	return result, nil
}

func joinUnique(names []string) string {
	seen := make(map[string]bool, len(names))
	out := ""
	for _, n := range names {
		if seen[n] {
			continue
		}
		seen[n] = true
		if out != "" {
			out += ", "
		}
		out += n
	}
	return out
}
