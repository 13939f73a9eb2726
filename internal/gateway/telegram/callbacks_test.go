package telegram

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitCallback(t *testing.T) {
	cases := []struct {
		data string
		kind string
		arg  string
	}{
		{"region:UK", "region", "UK"},
		{"region:DE", "region", "DE"},
		{"approve:17", "approve", "17"},
		{"reject:17", "reject", "17"},
		{"garbage", "garbage", ""},
		{"", "", ""},
	}
	for _, tc := range cases {
		kind, arg := splitCallback(tc.data)
		assert.Equal(t, tc.kind, kind, "data %q", tc.data)
		assert.Equal(t, tc.arg, arg, "data %q", tc.data)
	}
}
