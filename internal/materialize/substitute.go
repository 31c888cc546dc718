// File: internal/materialize/substitute.go
// Brief: Literal placeholder substitution for downloaded templates.

package materialize

import (
	"regexp"
	"sort"
	"strings"
)

// TokenPrefix starts every sentinel token, e.g. __COSY_DOMAIN__.
const TokenPrefix = "__COSY_"

var sentinelRE = regexp.MustCompile(`__COSY_[A-Z0-9]+(?:_[A-Z0-9]+)*__`)

// Token returns the sentinel token for a placeholder name.
func Token(name string) string {
	return TokenPrefix + strings.ToUpper(name) + "__"
}

// Placeholders maps sentinel tokens to their resolved values.
type Placeholders map[string]string

// Set stores value under the token for name.
func (p Placeholders) Set(name, value string) Placeholders {
	p[Token(name)] = value
	return p
}

// Merge returns a copy of p overlaid with other.
func (p Placeholders) Merge(other Placeholders) Placeholders {
	out := make(Placeholders, len(p)+len(other))
	for k, v := range p {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// Substitute replaces every token of placeholders found in content. It is a
// pure text operation: the content is never parsed. Longer tokens are tried
// first so a token that prefixes another cannot clobber it.
func Substitute(content string, placeholders Placeholders) string {
	if len(placeholders) == 0 {
		return content
	}
	keys := make([]string, 0, len(placeholders))
	for k := range placeholders {
		if k != "" {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	pairs := make([]string, 0, len(keys)*2)
	for _, k := range keys {
		pairs = append(pairs, k, placeholders[k])
	}
	return strings.NewReplacer(pairs...).Replace(content)
}

// Unresolved lists the distinct sentinel tokens still present in content.
func Unresolved(content string) []string {
	matches := sentinelRE.FindAllString(content, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}
