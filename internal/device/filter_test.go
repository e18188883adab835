package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/bpf"

	"firestige.xyz/tapstack/internal/core/codec"
)

func frameWithType(t codec.EtherType) []byte {
	return codec.BuildEthernet(codec.BroadcastMAC, codec.MAC{2, 0, 0, 0, 0, 1}, t, make([]byte, 46)).Bytes()
}

func TestFilterMatch(t *testing.T) {
	f, err := NewFilter(StackEtherTypes...)
	require.NoError(t, err)

	tests := []struct {
		name  string
		frame []byte
		want  bool
	}{
		{"arp", frameWithType(codec.EtherTypeARP), true},
		{"ipv4", frameWithType(codec.EtherTypeIPv4), true},
		{"ipv6", frameWithType(codec.EtherTypeIPv6), false},
		{"lldp", frameWithType(codec.EtherType(0x88cc)), false},
		{"runt", []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13}, false},
		{"empty", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, f.Match(tt.frame))
		})
	}
}

func TestEtherTypeProgramShape(t *testing.T) {
	prog := EtherTypeProgram(codec.EtherTypeARP, codec.EtherTypeIPv4, codec.EtherTypeIPv6)

	require.Len(t, prog, 6)
	assert.Equal(t, bpf.LoadAbsolute{Off: 12, Size: 2}, prog[0])
	assert.Equal(t, bpf.JumpIf{Cond: bpf.JumpEqual, Val: 0x0806, SkipTrue: 3}, prog[1])
	assert.Equal(t, bpf.JumpIf{Cond: bpf.JumpEqual, Val: 0x0800, SkipTrue: 2}, prog[2])
	assert.Equal(t, bpf.JumpIf{Cond: bpf.JumpEqual, Val: 0x86dd, SkipTrue: 1}, prog[3])
	assert.Equal(t, bpf.RetConstant{Val: 0}, prog[4])
	assert.Equal(t, bpf.RetConstant{Val: acceptLen}, prog[5])
}

func TestEtherTypeFilterAssembles(t *testing.T) {
	raw, err := EtherTypeFilter(StackEtherTypes...)
	require.NoError(t, err)
	require.Len(t, raw, 5)

	// ldh [12]
	assert.Equal(t, uint16(0x28), raw[0].Op)
	assert.Equal(t, uint32(12), raw[0].K)
	// ret #0
	assert.Equal(t, uint16(0x06), raw[3].Op)
	assert.Equal(t, uint32(0), raw[3].K)

	// The raw program behaves like the instruction form.
	insns, ok := bpf.Disassemble(raw)
	require.True(t, ok)
	vm, err := bpf.NewVM(insns)
	require.NoError(t, err)
	n, err := vm.Run(frameWithType(codec.EtherTypeARP))
	require.NoError(t, err)
	assert.Positive(t, n)
}

func TestEtherTypeFilterLimits(t *testing.T) {
	_, err := EtherTypeFilter()
	assert.Error(t, err)
	_, err = NewFilter()
	assert.Error(t, err)
}
