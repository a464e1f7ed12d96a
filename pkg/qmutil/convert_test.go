package qmutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToStr(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"hi", "hi"},
		{42, "42"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, ToStr(c.in))
	}
}

func TestPadStart(t *testing.T) {
	assert.Equal(t, "   ab", PadStart("ab", 5, " "))
	assert.Equal(t, "abcdef", PadStart("abcdef", 3, " "), "PadStart should not truncate")
}
