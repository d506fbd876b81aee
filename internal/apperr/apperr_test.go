package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIsMatchesKind(t *testing.T) {
	err := DocumentUnreadable("/tmp/a.pdf", errors.New("bad xref"))

	assert.True(t, errors.Is(err, ErrDocumentUnreadable))
	assert.False(t, errors.Is(err, ErrMediaUnreadable))

	wrapped := fmt.Errorf("merge failed: %w", err)
	assert.True(t, errors.Is(wrapped, ErrDocumentUnreadable))
	assert.Equal(t, KindDocumentUnreadable, KindOf(wrapped))
}

func TestErrorMessage(t *testing.T) {
	err := New(KindNoAudioTrack, "clip.mp4", "no audio streams", nil)
	assert.Equal(t, "NoAudioTrack (clip.mp4): no audio streams", err.Error())

	err = InvalidParameter("width %d must be even", 101)
	assert.Equal(t, "InvalidParameter: width 101 must be even", err.Error())
}

type kindedErr struct{}

func (kindedErr) Error() string { return "remote said no" }
func (kindedErr) Kind() Kind    { return KindAPIError }

func TestKindOf(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(nil))
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
	assert.Equal(t, KindIOError, KindOf(IO("/out", errors.New("read-only"))))
	assert.Equal(t, KindAPIError, KindOf(fmt.Errorf("call: %w", kindedErr{})))
}
