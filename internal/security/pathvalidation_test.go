package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidatePathWithinDirectory(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		path    string
		base    string
		wantErr bool
	}{
		{"child", "/proj/Sweep/Threshold-5", "/proj/Sweep", false},
		{"nested", "/proj/E1/Sweep/Threshold-5/x", "/proj", false},
		{"unclean child", "/proj/./E1/../E2", "/proj", false},
		{"base itself", "/proj/", "/proj", true},
		{"parent", "/proj/..", "/proj", true},
		{"traversal", "/proj/Sweep/../../etc", "/proj/Sweep", true},
		{"sibling prefix", "/project2/x", "/proj", true},
		{"relative escape", "data/../../x", "data", true},
		{"mixed absolute", "/proj/x", "proj", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := ValidatePathWithinDirectory(tt.path, tt.base)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrOutsideDirectory)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateName(t *testing.T) {
	t.Parallel()

	for _, ok := range []string{"E1", "Exp 2024-01", "Threshold-5.5"} {
		assert.NoError(t, ValidateName(ok), ok)
	}
	for _, bad := range []string{"", ".", "..", "a/b", `a\b`, "../E1"} {
		assert.Error(t, ValidateName(bad), bad)
	}
}
