package xtrack

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type upperCodec struct{ JSONCodec }

func (upperCodec) Name() string { return "upper" }

func TestCodecRegistry(t *testing.T) {
	c, err := NewCodec("json")
	require.NoError(t, err)
	assert.Equal(t, "json", c.Name())

	_, err = NewCodec("xml")
	assert.Error(t, err)

	assert.Error(t, RegisterCodec("", func() Codec { return upperCodec{} }))
	assert.Error(t, RegisterCodec("upper", nil))
	require.NoError(t, RegisterCodec("upper", func() Codec { return upperCodec{} }))

	c, err = NewCodec("upper")
	require.NoError(t, err)
	assert.Equal(t, "upper", c.Name())
}

func TestJSONCodec_NoHTMLEscape(t *testing.T) {
	b, err := JSONCodec{}.Marshal(map[string]string{"url": "http://a.test/?x=1&y=<2>"})
	require.NoError(t, err)
	assert.Equal(t, `{"url":"http://a.test/?x=1&y=<2>"}`, string(b))

	var out map[string]string
	require.NoError(t, JSONCodec{}.Unmarshal(b, &out))
	assert.Equal(t, "http://a.test/?x=1&y=<2>", out["url"])
}

func TestTransportRegistry(t *testing.T) {
	_, err := NewTransport("carrier-pigeon", nil)
	var unknown ErrUnknownTransport
	require.ErrorAs(t, err, &unknown)
	assert.Contains(t, err.Error(), "carrier-pigeon")

	assert.Error(t, RegisterTransport("", func(map[string]any) (Transport, error) { return &fakeTransport{}, nil }))
	assert.Error(t, RegisterTransport("fake", nil))

	require.NoError(t, RegisterTransport("fake", func(map[string]any) (Transport, error) { return &fakeTransport{}, nil }))
	tr, err := NewTransport("fake", nil)
	require.NoError(t, err)
	assert.Equal(t, "fake", tr.Name())

	em, err := NewEmitterBuilder().WithTransport("fake", nil).Build()
	require.NoError(t, err)
	t.Cleanup(func() { _ = em.Close(context.Background()) })
	assert.Equal(t, "fake", em.Name())
}
