package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognidex/cognidex/internal/errors"
)

func TestText_PlainFormats(t *testing.T) {
	got, err := Text([]byte("hello world"), ".txt")
	require.NoError(t, err)
	assert.Equal(t, "hello world", got)

	got, err = Text([]byte("# Title\n\nbody"), ".MD")
	require.NoError(t, err)
	assert.Equal(t, "# Title\n\nbody", got)
}

func TestText_InvalidUTF8(t *testing.T) {
	_, err := Text([]byte{0xff, 0xfe, 0xfd}, ".txt")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeExtractionFailed, errors.GetCode(err))
}

func TestText_PDFNeedsUpstreamService(t *testing.T) {
	_, err := Text([]byte("%PDF-1.4"), ".pdf")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeExtractionFailed, errors.GetCode(err))
}

func TestText_DisallowedExtension(t *testing.T) {
	_, err := Text([]byte("binary"), ".exe")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.GetCode(err))
}

func TestAllowed(t *testing.T) {
	assert.True(t, Allowed(".txt"))
	assert.True(t, Allowed(".PDF"))
	assert.False(t, Allowed(".exe"))
	assert.False(t, Allowed("txt"))
}
