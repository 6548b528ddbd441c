package featscan

import (
	"fmt"
	"iter"

	"golang.org/x/arch/x86/x86asm"
)

// X86Decoder decodes 32-bit or 64-bit x86 machine code.
//
// Legacy and SSE encodings are decoded by x86asm. VEX and EVEX encodings,
// which x86asm does not support, are decoded by this package and mapped back
// onto x86asm opcodes where a legacy counterpart exists. A few newer legacy
// encodings x86asm lacks are matched from their bytes, see extOps.
type X86Decoder struct {
	mode int
}

// NewX86Decoder returns a decoder for the given bitness, either 32 or 64.
func NewX86Decoder(bitness int) (*X86Decoder, error) {
	if bitness != 32 && bitness != 64 {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedBitness, bitness)
	}
	return &X86Decoder{mode: bitness}, nil
}

// Bitness returns the operating mode the decoder was created for.
func (d *X86Decoder) Bitness() int {
	return d.mode
}

// Decode yields the instructions in code in linear sweep order. Undecodable
// bytes yield an invalid instruction of length 1 and decoding resumes at the
// following byte.
func (d *X86Decoder) Decode(code []byte) iter.Seq[Instruction] {
	return func(yield func(Instruction) bool) {
		offset := 0
		for offset < len(code) {
			inst := d.decodeOne(code[offset:])
			if !yield(inst) {
				return
			}
			offset += inst.Len
		}
	}
}

func (d *X86Decoder) decodeOne(code []byte) Instruction {
	if inst, ok := decodeENDBR(code); ok {
		return inst
	}
	if inst, ok := d.decodeExtension(code); ok {
		return inst
	}
	if inst, ok := d.decodeVEX(code); ok {
		return inst
	}

	inst, err := x86asm.Decode(code, d.mode)
	if err != nil || inst.Len == 0 || inst.Op == 0 {
		return invalidInstruction
	}
	return fromX86asm(&inst)
}

// decodeENDBR recognizes the CET landing pads, which x86asm decodes as a
// reserved NOP.
func decodeENDBR(code []byte) (Instruction, bool) {
	if len(code) < 4 || code[0] != 0xF3 || code[1] != 0x0F || code[2] != 0x1E {
		return Instruction{}, false
	}
	inst := Instruction{Len: 4, Features: singleFeature[FeatureCETIBT]}
	switch code[3] {
	case 0xFA:
		inst.Mnemonic = mnemonicENDBR64ID
	case 0xFB:
		inst.Mnemonic = mnemonicENDBR32ID
	default:
		return Instruction{}, false
	}
	return inst, true
}

func fromX86asm(inst *x86asm.Inst) Instruction {
	out := Instruction{
		Len:      inst.Len,
		Mnemonic: mnemonicOf(inst.Op),
		Features: featuresOf(inst),
	}
	for i, arg := range inst.Args {
		if arg == nil {
			break
		}
		if r, ok := arg.(x86asm.Reg); ok {
			out.Registers[i] = fromX86asmReg(r)
		}
	}
	return out
}
