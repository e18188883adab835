package device

import (
	"fmt"

	"golang.org/x/net/bpf"

	"firestige.xyz/tapstack/internal/core/codec"
)

// acceptLen is the snap length returned for accepted frames.
const acceptLen = 0x40000

// EtherTypeProgram returns a classic BPF program that accepts Ethernet
// frames whose EtherType is one of types and rejects everything else,
// including frames too short to carry an EtherType.
func EtherTypeProgram(types ...codec.EtherType) []bpf.Instruction {
	n := len(types)
	prog := make([]bpf.Instruction, 0, n+3)
	prog = append(prog, bpf.LoadAbsolute{Off: 12, Size: 2})
	for i, t := range types {
		// Jump over the remaining tests and the reject return.
		prog = append(prog, bpf.JumpIf{Cond: bpf.JumpEqual, Val: uint32(t), SkipTrue: uint8(n - i)})
	}
	prog = append(prog,
		bpf.RetConstant{Val: 0},
		bpf.RetConstant{Val: acceptLen},
	)
	return prog
}

// EtherTypeFilter assembles EtherTypeProgram for attaching to a socket or
// TAP device.
func EtherTypeFilter(types ...codec.EtherType) ([]bpf.RawInstruction, error) {
	if len(types) == 0 || len(types) > 250 {
		return nil, fmt.Errorf("ethertype filter needs 1-250 types, got %d", len(types))
	}
	raw, err := bpf.Assemble(EtherTypeProgram(types...))
	if err != nil {
		return nil, fmt.Errorf("failed to assemble BPF filter: %w", err)
	}
	return raw, nil
}

// Filter runs an EtherType program in userspace, for devices that cannot
// filter in the kernel.
type Filter struct {
	vm *bpf.VM
}

// NewFilter builds a userspace filter accepting types.
func NewFilter(types ...codec.EtherType) (*Filter, error) {
	if len(types) == 0 || len(types) > 250 {
		return nil, fmt.Errorf("ethertype filter needs 1-250 types, got %d", len(types))
	}
	vm, err := bpf.NewVM(EtherTypeProgram(types...))
	if err != nil {
		return nil, fmt.Errorf("failed to load BPF filter: %w", err)
	}
	return &Filter{vm: vm}, nil
}

// Match reports whether frame passes the filter.
func (f *Filter) Match(frame []byte) bool {
	n, err := f.vm.Run(frame)
	return err == nil && n > 0
}

// StackEtherTypes are the EtherTypes the stack handles.
var StackEtherTypes = []codec.EtherType{codec.EtherTypeARP, codec.EtherTypeIPv4}
