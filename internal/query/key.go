package query

import (
	"fmt"
	"strconv"
	"strings"
)

// Key identifies a cached read: an operation name followed by its parameters,
// e.g. Key{"booklists", userID}. Keys compare element by element, so two
// separately built keys with the same elements address the same entry.
//
// Elements should be primitives (strings, integers, booleans, floats). Integer
// types are not interchangeable: int(1) and int64(1) are different elements.
type Key []any

// String returns the canonical form used to index the cache.
func (k Key) String() string {
	var b strings.Builder
	b.WriteByte('[')
	for i, el := range k {
		if i > 0 {
			b.WriteByte(',')
		}
		writeElement(&b, el)
	}
	b.WriteByte(']')
	return b.String()
}

// HasPrefix reports whether the first len(prefix) elements of k equal prefix.
// An empty prefix matches every key.
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	for i := range prefix {
		if !elementEqual(k[i], prefix[i]) {
			return false
		}
	}
	return true
}

// Equal reports structural equality.
func (k Key) Equal(other Key) bool {
	return len(k) == len(other) && k.HasPrefix(other)
}

func elementEqual(a, b any) bool {
	var sa, sb strings.Builder
	writeElement(&sa, a)
	writeElement(&sb, b)
	return sa.String() == sb.String()
}

func writeElement(b *strings.Builder, el any) {
	switch v := el.(type) {
	case nil:
		b.WriteString("nil")
	case string:
		b.WriteString(strconv.Quote(v))
	case bool:
		b.WriteString(strconv.FormatBool(v))
	case int:
		b.WriteString("int:" + strconv.Itoa(v))
	case int64:
		b.WriteString("int64:" + strconv.FormatInt(v, 10))
	case float64:
		b.WriteString("float64:" + strconv.FormatFloat(v, 'g', -1, 64))
	default:
		fmt.Fprintf(b, "%T:%v", v, v)
	}
}
