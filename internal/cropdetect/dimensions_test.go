package cropdetect

import (
	"testing"

	cErrors "github.com/mantonx/ffcrop/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDimensions(t *testing.T) {
	dims, err := ParseDimensions("1920x1080")
	require.NoError(t, err)
	assert.Equal(t, Dimensions{Width: 1920, Height: 1080}, dims)
	assert.Equal(t, "1920x1080", dims.String())

	dims, err = ParseDimensions(" 1280x720\n")
	require.NoError(t, err)
	assert.Equal(t, Dimensions{Width: 1280, Height: 720}, dims)

	for _, bad := range []string{"1920", "", "1920x", "x1080", "1920x1080x3", "wide x tall", "-1280x720", "0x720", "99999999999x1"} {
		t.Run(bad, func(t *testing.T) {
			_, err := ParseDimensions(bad)
			assert.ErrorIs(t, err, cErrors.ErrNumericConversion)
		})
	}
}
