// ABOUTME: Tests for version constants
// ABOUTME: Ensures version information is properly defined
package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIdentityDefined(t *testing.T) {
	for name, v := range map[string]string{
		"version":      Version,
		"product":      Product,
		"manufacturer": Manufacturer,
	} {
		assert.NotEmpty(t, v, name)
		assert.LessOrEqual(t, len(v), 100, name)
	}
}

func TestVersionNotPlaceholder(t *testing.T) {
	for _, placeholder := range []string{"TODO", "FIXME", "XXX", "placeholder"} {
		assert.NotEqual(t, placeholder, Version)
		assert.NotEqual(t, placeholder, Product)
		assert.NotEqual(t, placeholder, Manufacturer)
	}
}

func TestString(t *testing.T) {
	assert.Equal(t, Product+" "+Version, String())
}
