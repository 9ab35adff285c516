package prompts

import (
	"fmt"
	"strings"
)

// Format substitutes {name} placeholders from vars. Doubled braces are
// literal braces, so JSON examples in templates survive formatting.
func Format(template string, vars map[string]string) (string, error) {
	var b strings.Builder
	b.Grow(len(template))

	for i := 0; i < len(template); i++ {
		ch := template[i]
		switch ch {
		case '{':
			if i+1 < len(template) && template[i+1] == '{' {
				b.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(template[i+1:], '}')
			if end < 0 {
				return "", fmt.Errorf("unclosed placeholder at offset %d", i)
			}
			name := template[i+1 : i+1+end]
			val, ok := vars[name]
			if !ok {
				return "", fmt.Errorf("template variable %q not provided", name)
			}
			b.WriteString(val)
			i += end + 1
		case '}':
			if i+1 < len(template) && template[i+1] == '}' {
				i++
			}
			b.WriteByte('}')
		default:
			b.WriteByte(ch)
		}
	}
	return b.String(), nil
}
