package echo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvalExpr(t *testing.T) {
	tests := []struct {
		input string
		want  int64
	}{
		{"1 + 1", 2},
		{"2 * 3 + 4", 10},
		{"2 + 3 * 4", 14},
		{"(2 + 3) * 4", 20},
		{"10 / 2 - 1", 4},
		{"-5 + 3", -2},
		{"42", 42},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := evalExpr(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvalExpr_Errors(t *testing.T) {
	for _, input := range []string{"", "1 +", "1 / 0", "(1 + 2", "foo", "1 2"} {
		t.Run(input, func(t *testing.T) {
			_, err := evalExpr(input)
			require.Error(t, err)
		})
	}
}

func TestFirstToken(t *testing.T) {
	assert.Equal(t, "prompt", firstToken("prompt(5)"))
	assert.Equal(t, "sum", firstToken("  sum "))
	assert.Equal(t, "", firstToken("1 + 1"))
}
