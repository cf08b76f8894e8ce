package collector

import "strings"

// ParseInvocationArgs converts a command line into a mapping. "--k=v" and
// "--k v" store v under "--k", a flag not followed by a value stores true,
// and other arguments are gathered in order under "positional".
func ParseInvocationArgs(args []string) map[string]any {
	result := make(map[string]any)
	var positional []any

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "-") {
			positional = append(positional, arg)
			continue
		}

		if key, value, ok := strings.Cut(arg, "="); ok {
			result[key] = value
			continue
		}

		if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
			result[arg] = args[i+1]
			i++
			continue
		}
		result[arg] = true
	}

	if len(positional) > 0 {
		result["positional"] = positional
	}
	return result
}
