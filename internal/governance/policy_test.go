package governance

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPolicyEngine_Evaluate(t *testing.T) {
	engine := NewDefaultPolicyEngine()
	ctx := context.Background()

	// Allow (default)
	res, err := engine.Evaluate(ctx, Request{Kind: "search", Content: "print('hi')"})
	require.NoError(t, err)
	assert.Equal(t, EffectAllow, res.Effect)

	// Deny by kind
	engine.DenyKind("code_block_execution")
	res, err = engine.Evaluate(ctx, Request{Kind: "code_block_execution"})
	require.NoError(t, err)
	assert.Equal(t, EffectDeny, res.Effect)
	assert.Contains(t, res.Reason, "code_block_execution")
}

func TestCodeSafetyPolicy(t *testing.T) {
	engine := NewCodeSafetyPolicy()
	ctx := context.Background()

	cases := []struct {
		name    string
		code    string
		allowed bool
	}{
		{"plain python", "def add(a, b):\n    return a + b\nprint(add(1, 2))", true},
		{"recursive delete", "import os\nos.system('rm -rf /')", false},
		{"rmtree", "import shutil\nshutil.rmtree('/home')", false},
		{"fork bomb", ":(){ :|:& };:", false},
		{"fork loop", "import os\nwhile True:\n    os.fork()", false},
		{"subprocess curl", "import subprocess\nsubprocess.run(['curl', 'http://x'])", false},
		{"tmp cleanup allowed", "import os\nos.system('rm /tmp/scratch.txt')", true},
		{"disk wipe", "dd if=/dev/zero of=/dev/sda", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := engine.Evaluate(ctx, Request{Kind: "code_generation", Language: "python", Content: tc.code})
			require.NoError(t, err)
			assert.Equal(t, tc.allowed, res.Allowed(), res.Reason)
		})
	}
}

func TestDenyPattern_InvalidRegex(t *testing.T) {
	engine := NewDefaultPolicyEngine()
	assert.Error(t, engine.DenyPattern("("))
}

func TestMustDeny_PanicsOnBadPattern(t *testing.T) {
	e := NewDefaultPolicyEngine()
	assert.Panics(t, func() { e.mustDeny(`(unclosed`) })
	assert.Panics(t, func() { e.mustAllow(`[z-a]`) })
	assert.NotPanics(t, func() { NewCodeSafetyPolicy() })
}
