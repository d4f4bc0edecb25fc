package link

import (
	"golang.org/x/net/bpf"

	"firestige.xyz/arpfuzzer/internal/core"
)

// arpOnlyFilter accepts frames whose EtherType is ARP and whose length covers a full ARP frame.
func arpOnlyFilter() []bpf.Instruction {
	return []bpf.Instruction{
		bpf.LoadExtension{Num: bpf.ExtLen},
		bpf.JumpIf{Cond: bpf.JumpGreaterOrEqual, Val: core.FrameLen, SkipFalse: 3},
		bpf.LoadAbsolute{Off: uint32(core.FieldFrameType.Offset()), Size: 2},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: uint32(core.EtherTypeARP), SkipFalse: 1},
		bpf.RetConstant{Val: MaxFrameSize},
		bpf.RetConstant{Val: 0},
	}
}

func assembleARPOnly() ([]bpf.RawInstruction, error) {
	return bpf.Assemble(arpOnlyFilter())
}
