package handlers

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeOutputName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"contract.pdf", "contract.pdf"},
		{"  Q3 report (final).pdf ", "Q3_report__final_.pdf"},
		{"../../etc/passwd", "_.._etc_passwd"},
		{".hidden", "hidden"},
		{"", "default.pdf"},
		{"///", "default.pdf"},
		{"résumé.pdf", "r_sum_.pdf"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeOutputName(tt.in, "default.pdf"), tt.in)
	}

	long := SanitizeOutputName(strings.Repeat("a", 500), "x")
	assert.Len(t, long, maxOutputNameLen)
}
