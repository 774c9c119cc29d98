package moduleinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUserAgent(t *testing.T) {
	assert.Equal(t, Info.Slug+"/"+Version(), UserAgent())
}

func TestVersionNotEmpty(t *testing.T) {
	assert.NotEmpty(t, Version())
}
