package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xcsec/omniuat/primitives"
)

func TestSignAndVerify(t *testing.T) {
	suite, err := primitives.NewSuite()
	require.NoError(t, err)

	env := Envelope{FromNodeID: 1, ToNodeID: 2, Type: Heartbeat, Timestamp: 1, Payload: []byte("hi")}
	require.NoError(t, env.Sign(suite))
	require.True(t, env.Verify(suite.PublicKey()))
}

func TestVerifyFailsOnTamperedPayload(t *testing.T) {
	suite, err := primitives.NewSuite()
	require.NoError(t, err)

	env := Envelope{FromNodeID: 1, ToNodeID: 2, Type: Heartbeat, Timestamp: 1, Payload: []byte("hi")}
	require.NoError(t, env.Sign(suite))
	env.Payload = []byte("hx")
	require.False(t, env.Verify(suite.PublicKey()))
}

func TestPayloadTooLarge(t *testing.T) {
	suite, err := primitives.NewSuite()
	require.NoError(t, err)
	env := Envelope{Payload: make([]byte, MaxPayloadSize+1)}
	require.ErrorIs(t, env.Sign(suite), ErrPayloadTooLarge)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	suite, err := primitives.NewSuite()
	require.NoError(t, err)
	env := Envelope{FromNodeID: 3, ToNodeID: 4, Type: DAGNode, Timestamp: 42, Payload: []byte("payload")}
	require.NoError(t, env.Sign(suite))

	b, err := env.Encode()
	require.NoError(t, err)

	decoded, err := Decode(b)
	require.NoError(t, err)
	require.Equal(t, env.FromNodeID, decoded.FromNodeID)
	require.Equal(t, env.Payload, decoded.Payload)
	require.True(t, decoded.Verify(suite.PublicKey()))
}

func TestLoopbackBroadcast(t *testing.T) {
	nets := NewLoopbackNetwork([]uint32{1, 2, 3}, 8)
	env := Envelope{FromNodeID: 1, Type: Heartbeat}
	require.NoError(t, nets[1].Broadcast(env, []uint32{1, 2, 3}))

	_, ok := nets[2].Recv()
	require.True(t, ok)
	_, ok = nets[3].Recv()
	require.True(t, ok)
}

func TestLoopbackSendUnreachablePeer(t *testing.T) {
	nets := NewLoopbackNetwork([]uint32{1, 2}, 8)
	err := nets[1].Send(Envelope{FromNodeID: 1, ToNodeID: 99})
	require.ErrorIs(t, err, ErrPeerUnreachable)
}
