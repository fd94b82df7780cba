package service

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMaskEmailAddress(t *testing.T) {
	cases := map[string]string{
		"":                    "",
		"Student@Example.com": "s***t@example.com",
		"ab@example.com":      "a***@example.com",
		"not-an-email":        "***",
		"@example.com":        "***",
		"a@b@example.com":     "***",
	}
	for input, expected := range cases {
		require.Equal(t, expected, maskEmailAddress(input), input)
	}
}
