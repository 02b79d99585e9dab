package version

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

// A full release-pipeline check would shell out to git to verify the
// Tag constant's date against HEAD, but that's meaningless outside a
// real release process; this just checks the tag has semantic-version
// shape.
func TestTagIsSemVer(t *testing.T) {
	assert.Regexp(t, regexp.MustCompile(`^v\d+\.\d+\.\d+$`), Tag)
}
