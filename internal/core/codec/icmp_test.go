package codec

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"

	"firestige.xyz/tapstack/internal/core"
)

func echoRequest(id, seq uint16, payload []byte) []byte {
	return ICMPPacket{
		Type:       ICMPEchoRequest,
		Identifier: id,
		Sequence:   seq,
		Payload:    payload,
	}.Bytes()
}

func TestParseICMP(t *testing.T) {
	data := echoRequest(0x1234, 1, []byte("abc"))

	p, err := ParseICMP(data)
	require.NoError(t, err)

	assert.Equal(t, ICMPEchoRequest, p.Type)
	assert.Equal(t, uint8(0), p.Code)
	assert.Equal(t, uint16(0x1234), p.Identifier)
	assert.Equal(t, uint16(1), p.Sequence)
	assert.Equal(t, []byte("abc"), p.Payload)
	assert.True(t, p.ChecksumValid())
}

func TestParseICMPTooShort(t *testing.T) {
	_, err := ParseICMP(make([]byte, 7))
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrInvalidPacket))
}

func TestBuildEchoReply(t *testing.T) {
	request, err := ParseICMP(echoRequest(0x1234, 1, []byte("abc")))
	require.NoError(t, err)

	reply := BuildEchoReply(request)
	data := reply.Bytes()

	assert.Equal(t, ICMPEchoReply, reply.Type)
	assert.Equal(t, uint8(0), reply.Code)
	assert.Equal(t, uint16(0x1234), reply.Identifier)
	assert.Equal(t, uint16(1), reply.Sequence)
	assert.Equal(t, []byte("abc"), reply.Payload)

	require.Len(t, data, 11)
	assert.Equal(t, []byte{0x29, 0x68}, data[2:4])
	assert.True(t, VerifyChecksum(data))

	// The reply must not share the request's payload buffer.
	request.Payload[0] = 'z'
	assert.Equal(t, []byte("abc"), reply.Payload)
}

func TestICMPChecksumValid(t *testing.T) {
	p, err := ParseICMP(echoRequest(7, 42, []byte("ping")))
	require.NoError(t, err)
	assert.True(t, p.ChecksumValid())

	p.Checksum ^= 0x0100
	assert.False(t, p.ChecksumValid())
}

func TestICMPTypeKnown(t *testing.T) {
	for _, typ := range []ICMPType{ICMPEchoReply, ICMPDestinationUnreachable, ICMPEchoRequest, ICMPTimeExceeded} {
		assert.True(t, typ.Known(), typ.String())
	}
	assert.False(t, ICMPType(13).Known())
	assert.Equal(t, "type(13)", ICMPType(13).String())
}

func TestEchoReplyParseWithXNet(t *testing.T) {
	request, err := ParseICMP(echoRequest(0xbeef, 9, []byte("hello, tap")))
	require.NoError(t, err)

	msg, err := icmp.ParseMessage(1, BuildEchoReply(request).Bytes())
	require.NoError(t, err)

	assert.Equal(t, ipv4.ICMPTypeEchoReply, msg.Type)
	assert.Equal(t, 0, msg.Code)
	echo, ok := msg.Body.(*icmp.Echo)
	require.True(t, ok)
	assert.Equal(t, 0xbeef, echo.ID)
	assert.Equal(t, 9, echo.Seq)
	assert.Equal(t, []byte("hello, tap"), echo.Data)
}
