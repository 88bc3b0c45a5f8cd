package value

import (
	"math"
	"strconv"
	"strings"
)

// FormatArgs renders console arguments the way a script developer expects:
// space separated, top-level strings verbatim.
func FormatArgs(args []Value) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = Format(a)
	}
	return strings.Join(parts, " ")
}

// Format renders v as display text.
func Format(v Value) string {
	if v.kind == KindString {
		return v.s
	}
	var b strings.Builder
	writeValue(&b, v, 0)
	return b.String()
}

func writeValue(b *strings.Builder, v Value, depth int) {
	switch v.kind {
	case KindUndefined:
		b.WriteString("undefined")
	case KindNull:
		b.WriteString("null")
	case KindBoolean:
		b.WriteString(strconv.FormatBool(v.b))
	case KindNumber:
		b.WriteString(formatNumber(v.n))
	case KindString:
		if depth == 0 {
			b.WriteString(v.s)
		} else {
			b.WriteString(strconv.Quote(v.s))
		}
	case KindFunction:
		if v.s == "" {
			b.WriteString("[Function (anonymous)]")
		} else {
			b.WriteString("[Function: " + v.s + "]")
		}
	case KindError:
		b.WriteString(v.err.String())
	case KindSymbol:
		b.WriteString("Symbol(" + v.s + ")")
	case KindBigInt:
		b.WriteString(v.s + "n")
	case KindArray:
		if len(v.items) == 0 {
			b.WriteString("[]")
			return
		}
		b.WriteString("[ ")
		for i, item := range v.items {
			if i > 0 {
				b.WriteString(", ")
			}
			writeValue(b, item, depth+1)
		}
		b.WriteString(" ]")
	case KindObject:
		if v.fields == nil && v.s != "" {
			// opaque placeholder such as [Circular] or Promise { <pending> }
			b.WriteString(v.s)
			return
		}
		if v.s != "" && v.s != "Object" {
			b.WriteString(v.s + " ")
		}
		if len(v.fields) == 0 {
			b.WriteString("{}")
			return
		}
		b.WriteString("{ ")
		for i, f := range v.fields {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(formatKey(f.Key))
			b.WriteString(": ")
			writeValue(b, f.Value, depth+1)
		}
		b.WriteString(" }")
	}
}

func formatNumber(n float64) string {
	switch {
	case math.IsNaN(n):
		return "NaN"
	case math.IsInf(n, 1):
		return "Infinity"
	case math.IsInf(n, -1):
		return "-Infinity"
	case n == math.Trunc(n) && math.Abs(n) < 1e21:
		return strconv.FormatFloat(n, 'f', -1, 64)
	}
	return strconv.FormatFloat(n, 'g', -1, 64)
}

func formatKey(k string) string {
	if k == "" {
		return `""`
	}
	for i, r := range k {
		ident := r == '_' || r == '$' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(i > 0 && r >= '0' && r <= '9')
		if !ident {
			return strconv.Quote(k)
		}
	}
	return k
}
