package pipeline

import (
	"strconv"
	"strings"
)

// FilterComplex serializes the graph into the engine's filter syntax.
// Stage order is preserved exactly as built; serialization is the only
// place that knows the argument-string format, keeping graph construction
// independently testable.
func (g *Graph) FilterComplex() string {
	var b strings.Builder
	stages := make([]Stage, 0, len(g.VideoStages)+len(g.AudioStages))
	stages = append(stages, g.VideoStages...)
	stages = append(stages, g.AudioStages...)
	for i, s := range stages {
		if i > 0 {
			b.WriteByte(';')
		}
		writeStage(&b, s)
	}
	return b.String()
}

func writeStage(b *strings.Builder, s Stage) {
	for _, in := range s.Inputs {
		b.WriteByte('[')
		b.WriteString(in)
		b.WriteByte(']')
	}
	b.WriteString(s.Filter)
	if len(s.Options) > 0 {
		b.WriteByte('=')
		b.WriteString(strings.Join(s.Options, ":"))
	}
	for _, out := range s.Outputs {
		b.WriteByte('[')
		b.WriteString(out)
		b.WriteByte(']')
	}
}

// formatFloat renders a float the way filter options expect: no exponent,
// no trailing zeros.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// escapeFilterPath escapes a filename for use inside a quoted filter
// option. Single quotes and colons are the characters the filter parser
// treats specially.
func escapeFilterPath(path string) string {
	path = strings.ReplaceAll(path, `\`, `\\`)
	path = strings.ReplaceAll(path, `'`, `\'`)
	path = strings.ReplaceAll(path, `:`, `\:`)
	return path
}
