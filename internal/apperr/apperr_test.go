package apperr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesKind(t *testing.T) {
	err := NewMPDParseError(errors.New("bad xml"))
	assert.True(t, Is(err, KindMPDParse))
	assert.False(t, Is(err, KindTransport))
}

func TestUnwrapReturnsCause(t *testing.T) {
	cause := errors.New("boom")
	err := NewTransportError(cause)
	assert.Same(t, cause, errors.Unwrap(err))
}

func TestMissingSegmentErrorMessage(t *testing.T) {
	err := NewMissingSegmentError(2, 7)
	assert.Contains(t, err.Error(), "MissingSegment")
	assert.Contains(t, err.Error(), "7")
}

func TestTransportUnsupportedNamesOperation(t *testing.T) {
	err := NewTransportUnsupportedError("stop")
	assert.Contains(t, err.Error(), "stop")
	assert.True(t, Is(err, KindTransportUnsupported))
}
