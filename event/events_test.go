package event

import (
	nativeerrors "errors"
	"github.com/lefinal/minigame-host/errors"
	"github.com/stretchr/testify/assert"
	"testing"
)

func TestErrorEventPayloadFromError(t *testing.T) {
	t.Run("user blamed", func(t *testing.T) {
		got := ErrorEventPayloadFromError(errors.NewMatchFullError("arena-1", 4))
		assert.Equal(t, string(errors.ErrCapacity), got.Code, "should set code")
		assert.Equal(t, string(errors.KindMatchFull), got.Kind, "should set kind")
		assert.Equal(t, "match arena-1 is full", got.Message, "should set message")
		assert.Equal(t, 4, got.Details["max_players"], "should include details")
	})
	t.Run("internal", func(t *testing.T) {
		got := ErrorEventPayloadFromError(errors.NewInternalError("secret", errors.Details{"a": "b"}))
		assert.Equal(t, string(errors.ErrInternal), got.Code, "should set code")
		assert.Equal(t, "internal server error", got.Message, "should hide message")
		assert.Nil(t, got.Details, "should hide details")
	})
	t.Run("unexpected", func(t *testing.T) {
		got := ErrorEventPayloadFromError(nativeerrors.New("sad life"))
		assert.Equal(t, string(errors.ErrUnexpected), got.Code, "should use unexpected code")
		assert.Empty(t, got.Err, "should hide original error")
	})
}
