package registry

import (
	"strings"
)

// globPrefix returns the literal prefix before the first wildcard
// character, used to narrow the underlying listing before the in-memory
// filter runs.
func globPrefix(pattern string) string {
	idx := strings.IndexAny(pattern, "*?[")
	if idx < 0 {
		return pattern
	}
	return pattern[:idx]
}

// globMatch reports whether key matches a shell-style glob pattern
// supporting "*" (any run of non-slash characters), "?" (one non-slash
// character), character classes ("[abc]", "[a-z]", "[!abc]"), and "**"
// (any run of characters including slashes, for recursive matching).
func globMatch(pattern, key string) bool {
	return matchSegment([]rune(pattern), []rune(key))
}

func matchSegment(p, s []rune) bool {
	for len(p) > 0 {
		switch p[0] {
		case '*':
			if len(p) >= 2 && p[1] == '*' {
				rest := p[2:]
				// "**" consumes any number of characters, including '/'.
				for i := 0; i <= len(s); i++ {
					if matchSegment(rest, s[i:]) {
						return true
					}
				}
				return false
			}
			rest := p[1:]
			for i := 0; i <= len(s); i++ {
				if i > 0 && s[i-1] == '/' {
					break
				}
				if matchSegment(rest, s[i:]) {
					return true
				}
			}
			return false
		case '?':
			if len(s) == 0 || s[0] == '/' {
				return false
			}
			p, s = p[1:], s[1:]
		case '[':
			end := indexRune(p, ']')
			if end < 0 {
				// No closing bracket: treat '[' as a literal.
				if len(s) == 0 || s[0] != '[' {
					return false
				}
				p, s = p[1:], s[1:]
				continue
			}
			if len(s) == 0 {
				return false
			}
			class := p[1:end]
			if !matchClass(class, s[0]) {
				return false
			}
			p, s = p[end+1:], s[1:]
		default:
			if len(s) == 0 || s[0] != p[0] {
				return false
			}
			p, s = p[1:], s[1:]
		}
	}
	return len(s) == 0
}

func matchClass(class []rune, c rune) bool {
	negate := false
	if len(class) > 0 && (class[0] == '!' || class[0] == '^') {
		negate = true
		class = class[1:]
	}
	matched := false
	for i := 0; i < len(class); i++ {
		if i+2 < len(class) && class[i+1] == '-' {
			if c >= class[i] && c <= class[i+2] {
				matched = true
			}
			i += 2
			continue
		}
		if class[i] == c {
			matched = true
		}
	}
	return matched != negate
}

func indexRune(s []rune, target rune) int {
	for i, r := range s {
		if r == target {
			return i
		}
	}
	return -1
}
