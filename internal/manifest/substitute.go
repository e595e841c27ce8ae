package manifest

import (
	"os"
	"regexp"
)

// varPattern matches ${VAR} and ${VAR:-default}. Substitution is a
// textual pre-parse pass over the raw manifest bytes, before the YAML
// decoder ever sees them.
var varPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// substitute applies the manifest's variable-substitution rules:
//
//	${VAR:-default}  -> os.Getenv(VAR), or default if VAR is unset
//	${VAR}           -> os.Getenv(VAR), or the literal text unchanged if unset
func substitute(text string) string {
	return varPattern.ReplaceAllStringFunc(text, func(match string) string {
		groups := varPattern.FindStringSubmatch(match)
		name := groups[1]
		hasDefault := groups[2] != ""
		value, ok := os.LookupEnv(name)
		switch {
		case ok:
			return value
		case hasDefault:
			return groups[3]
		default:
			return match
		}
	})
}
