package opal

import (
	"testing"

	"github.com/blang/semver/v4"
	"github.com/stretchr/testify/require"
)

func TestVersion(t *testing.T) {
	assert := require.New(t)

	// Version is embedded in every serialized model form; a zero or
	// unparseable version would silence the compatibility warning on read.
	assert.NotEqual(uint64(0), Version.Major+Version.Minor+Version.Patch)

	reparsed, err := semver.Parse(Version.String())
	assert.NoError(err)
	assert.Zero(Version.Compare(reparsed))
}
