package quictransport

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWaitCompleteUnknownURLErrors(t *testing.T) {
	m := New(nil, true)
	defer m.Close()

	_, err := m.WaitComplete(context.Background(), "https://example.invalid/seg.m4s")
	assert.Error(t, err)
}

func TestStopAndDropUnknownURLErrors(t *testing.T) {
	m := New(nil, true)
	defer m.Close()

	assert.Error(t, m.Stop("https://example.invalid/seg.m4s"))
	assert.Error(t, m.DropURL("https://example.invalid/seg.m4s"))
}

func TestCloseWithoutTransfersSucceeds(t *testing.T) {
	m := New(nil, true)
	assert.NoError(t, m.Close())
}
