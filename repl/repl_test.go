package repl

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStartBuildsEachSnippet(t *testing.T) {
	in := strings.NewReader("        one\n        return\n\n\n        bogus\n")
	var out bytes.Buffer

	Start(in, &out)

	s := out.String()
	assert.Equal(t, 1, strings.Count(s, "GRAPH repl (MIR)"))
	assert.Contains(t, s, "E0401")
	assert.True(t, strings.HasPrefix(s, PROMPT+CONTINUATION+CONTINUATION))
}

func TestEval(t *testing.T) {
	var out bytes.Buffer
	assert.True(t, Eval(&out, ".function f\n.args 1\n getarg 0\n return"))
	assert.Contains(t, out.String(), "GRAPH f (MIR)")

	out.Reset()
	assert.False(t, Eval(&out, "getarg 3\nreturn"))
	assert.Contains(t, out.String(), "E0204")
	assert.Contains(t, out.String(), "repl:1:1")
}
