package mcptrace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type hostWithAddMiddleware struct {
	added []ToolMiddleware
}

func (h *hostWithAddMiddleware) AddMiddleware(mw ToolMiddleware) {
	h.added = append(h.added, mw)
}

type hostWithUse struct {
	used []ToolMiddleware
}

func (h *hostWithUse) Use(mw ToolMiddleware) {
	h.used = append(h.used, mw)
}

func TestInstrumentAddMiddlewareHook(t *testing.T) {
	host := &hostWithAddMiddleware{}

	mw, err := Instrument(host, WithSpanNamePrefix("tool."))

	require.NoError(t, err)
	require.Len(t, host.added, 1)
	assert.Same(t, mw, host.added[0])
	assert.Equal(t, "tool.", mw.spanNamePrefix)
}

func TestInstrumentUseHook(t *testing.T) {
	host := &hostWithUse{}

	mw, err := Instrument(host)

	require.NoError(t, err)
	require.Len(t, host.used, 1)
	assert.Same(t, mw, host.used[0])
}

func TestInstrumentNoHookFails(t *testing.T) {
	mw, err := Instrument(struct{}{})

	require.Error(t, err)
	assert.Nil(t, mw)
	assert.Contains(t, err.Error(), "registration hook")
}

func TestInstrumentWithCallback(t *testing.T) {
	var registered ToolMiddleware

	mw := InstrumentWith(func(m ToolMiddleware) { registered = m }, WithRecordSuccess(false))

	require.NotNil(t, registered)
	assert.Same(t, mw, registered)
	assert.False(t, mw.recordSuccess)
}
