package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func TestWalkSkipsUnknownWireTypes(t *testing.T) {
	var b []byte
	b = AppendUint(b, 1, 42)
	b = protowire.AppendTag(b, 2, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, 7)
	b = AppendString(b, 3, "abc")

	var seen []protowire.Number
	err := Walk(b, func(f Field) error {
		seen = append(seen, f.Num)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []protowire.Number{1, 3}, seen)
}

func TestZeroValuesOmitted(t *testing.T) {
	var b []byte
	b = AppendUint(b, 1, 0)
	b = AppendString(b, 2, "")
	b = AppendBool(b, 3, false)
	b = AppendOptionalBytes(b, 4, nil)
	assert.Empty(t, b)

	// repeated 元素即使为空也要保留
	b = AppendBytes(b, 5, nil)
	assert.NotEmpty(t, b)
}

func TestCompatibleWithProtobufRuntime(t *testing.T) {
	b := AppendString(nil, 1, "hello")
	var msg wrapperspb.StringValue
	require.NoError(t, proto.Unmarshal(b, &msg))
	assert.Equal(t, "hello", msg.GetValue())
}

func TestWalkTruncated(t *testing.T) {
	b := AppendBytes(nil, 1, []byte("abcdef"))
	err := Walk(b[:len(b)-2], func(Field) error { return nil })
	assert.Error(t, err)
}
