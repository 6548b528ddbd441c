package featscan

import "iter"

// Instruction is a single decoded instruction as seen by a Task.
//
// Features and Registers describe what the instruction needs from the CPU;
// the slice behind Features is shared between instructions and must not be
// modified.
type Instruction struct {
	Len       int
	Mnemonic  Mnemonic
	Features  []Feature
	Registers [4]Register
}

// Valid reports whether the bytes decoded to a recognized instruction.
// Invalid instructions stand for one undecodable byte.
func (i Instruction) Valid() bool {
	return i.Mnemonic != MnemonicInvalid
}

// Decoder turns a code buffer into a lazy sequence of instructions. It never
// fails on undecodable bytes: they are yielded as invalid instructions and
// decoding resumes at the next byte.
type Decoder interface {
	Decode(code []byte) iter.Seq[Instruction]
}

var invalidInstruction = Instruction{Len: 1}
