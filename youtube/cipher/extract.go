package cipher

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const ident = `[a-zA-Z0-9_$]+`

var (
	// sigFuncRes find the signature function: its body starts by splitting
	// its argument into characters.
	sigFuncRes = []*regexp.Regexp{
		regexp.MustCompile(`\b(` + ident + `)\s*=\s*function\(\s*` + ident + `\s*\)\s*\{\s*` + ident + `\s*=\s*` + ident + `\.split\(\s*""\s*\)`),
		regexp.MustCompile(`\bfunction\s+(` + ident + `)\(\s*` + ident + `\s*\)\s*\{\s*` + ident + `\s*=\s*` + ident + `\.split\(\s*""\s*\)`),
	}
	helperCallRe = regexp.MustCompile(`;\s*(` + ident + `)\.` + ident + `\(`)

	// nFuncRes find the name (and optional array index) of the n transform.
	nFuncRes = []*regexp.Regexp{
		regexp.MustCompile(`\.get\("n"\)\)&&\(b=(` + ident + `)(?:\[(\d+)\])?\(` + ident + `\)`),
		regexp.MustCompile(`\(b=String\.fromCharCode\(110\),c=a\.get\(b\)\)&&\(c=(` + ident + `)(?:\[(\d+)\])?\(c\)`),
	}
)

var errUnbalanced = errors.New("unbalanced braces")

// balanced returns the index just past the brace that closes js[open].
// String and template literals are skipped.
func balanced(js string, open int) (int, error) {
	if open < 0 || open >= len(js) || js[open] != '{' {
		return 0, fmt.Errorf("no opening brace at %d", open)
	}
	depth := 0
	for i := open; i < len(js); i++ {
		switch c := js[i]; c {
		case '"', '\'', '`':
			for i++; i < len(js) && js[i] != c; i++ {
				if js[i] == '\\' {
					i++
				}
			}
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1, nil
			}
		}
	}
	return 0, errUnbalanced
}

// functionAt returns the source of the function whose "function" keyword
// starts at or after from.
func functionAt(js string, from int) (string, error) {
	start := strings.Index(js[from:], "function")
	if start < 0 {
		return "", errors.New("function keyword not found")
	}
	start += from
	open := strings.IndexByte(js[start:], '{')
	if open < 0 {
		return "", errors.New("function body not found")
	}
	end, err := balanced(js, start+open)
	if err != nil {
		return "", err
	}
	return js[start:end], nil
}

// objectLiteral returns `{...}` assigned to name somewhere in js.
func objectLiteral(js, name string) (string, error) {
	re := regexp.MustCompile(`(?:^|[\s,;])(?:var\s+)?` + regexp.QuoteMeta(name) + `\s*=\s*\{`)
	loc := re.FindStringIndex(js)
	if loc == nil {
		return "", fmt.Errorf("object %s not found", name)
	}
	open := loc[1] - 1
	end, err := balanced(js, open)
	if err != nil {
		return "", err
	}
	return js[open:end], nil
}

// signatureProgram builds a standalone script defining __sig(s).
func signatureProgram(js string) (string, error) {
	for _, re := range sigFuncRes {
		loc := re.FindStringIndex(js)
		if loc == nil {
			continue
		}
		fn, err := functionAt(js, loc[0])
		if err != nil {
			return "", NewError(ErrCodeJSParsingFailed, "signature function", err)
		}
		var b strings.Builder
		if m := helperCallRe.FindStringSubmatch(fn); m != nil {
			obj, err := objectLiteral(js, m[1])
			if err != nil {
				return "", NewError(ErrCodeJSParsingFailed, "signature helper", err)
			}
			fmt.Fprintf(&b, "var %s=%s;\n", m[1], obj)
		}
		fmt.Fprintf(&b, "var __sig=%s;\n", fn)
		return b.String(), nil
	}
	return "", NewError(ErrCodeSignatureNotFound, "signature function not found in player", nil)
}

// nProgram builds a standalone script defining __n(n).
func nProgram(js string) (string, error) {
	for _, re := range nFuncRes {
		m := re.FindStringSubmatch(js)
		if m == nil {
			continue
		}
		name := m[1]
		if m[2] != "" {
			idx, _ := strconv.Atoi(m[2])
			arr := regexp.MustCompile(`var\s+` + regexp.QuoteMeta(name) + `\s*=\s*\[([^\]]+)\]`).FindStringSubmatch(js)
			if arr == nil {
				return "", NewError(ErrCodeJSParsingFailed, "n function array "+name+" not found", nil)
			}
			parts := strings.Split(arr[1], ",")
			if idx >= len(parts) {
				return "", NewError(ErrCodeJSParsingFailed, "n function index out of range", nil)
			}
			name = strings.TrimSpace(parts[idx])
		}
		def := regexp.MustCompile(`(?:\bfunction\s+` + regexp.QuoteMeta(name) + `\s*\(|(?:^|[\s,;])` + regexp.QuoteMeta(name) + `\s*=\s*function\s*\()`)
		loc := def.FindStringIndex(js)
		if loc == nil {
			return "", NewError(ErrCodeJSParsingFailed, "n function "+name+" not defined", nil)
		}
		fn, err := functionAt(js, loc[0])
		if err != nil {
			return "", NewError(ErrCodeJSParsingFailed, "n function", err)
		}
		return "var __n=" + fn + ";\n", nil
	}
	return "", NewError(ErrCodeSignatureNotFound, "n function not found in player", nil)
}
