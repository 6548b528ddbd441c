package featscan

import "golang.org/x/arch/x86/x86asm"

type operandKind uint8

const (
	operandNone operandKind = iota
	operandXMM
	operandGPR
)

// extOp is a legacy-map instruction x86asm does not know about, or decodes
// as a different instruction.
type extOp struct {
	name    string
	feature Feature
	prefix  byte // mandatory prefix, or 0
	escape  byte // 0x38, 0x3A, or 0 for the plain 0F map
	opcode  byte
	// digit is the ModRM.reg opcode extension, or -1 when reg is an operand.
	digit   int8
	regOnly bool
	memOnly bool
	imm     int
	kind    operandKind
	// xmm0 marks an implicit XMM0 third operand.
	xmm0 bool
}

var extOps = []extOp{
	{name: "SHA1NEXTE", feature: FeatureSHA, escape: 0x38, opcode: 0xC8, digit: -1, kind: operandXMM},
	{name: "SHA1MSG1", feature: FeatureSHA, escape: 0x38, opcode: 0xC9, digit: -1, kind: operandXMM},
	{name: "SHA1MSG2", feature: FeatureSHA, escape: 0x38, opcode: 0xCA, digit: -1, kind: operandXMM},
	{name: "SHA256RNDS2", feature: FeatureSHA, escape: 0x38, opcode: 0xCB, digit: -1, kind: operandXMM, xmm0: true},
	{name: "SHA256MSG1", feature: FeatureSHA, escape: 0x38, opcode: 0xCC, digit: -1, kind: operandXMM},
	{name: "SHA256MSG2", feature: FeatureSHA, escape: 0x38, opcode: 0xCD, digit: -1, kind: operandXMM},
	{name: "SHA1RNDS4", feature: FeatureSHA, escape: 0x3A, opcode: 0xCC, digit: -1, imm: 1, kind: operandXMM},
	{name: "ADCX", feature: FeatureADX, prefix: 0x66, escape: 0x38, opcode: 0xF6, digit: -1, kind: operandGPR},
	{name: "ADOX", feature: FeatureADX, prefix: 0xF3, escape: 0x38, opcode: 0xF6, digit: -1, kind: operandGPR},
	{name: "RDSEED", feature: FeatureRDSEED, opcode: 0xC7, digit: 7, regOnly: true, kind: operandGPR},
	// x86asm reports this one as CLFLUSH.
	{name: "CLFLUSHOPT", feature: FeatureCLFLUSHOPT, prefix: 0x66, opcode: 0xAE, digit: 7, memOnly: true},
}

type extKey struct {
	prefix, escape, opcode byte
	digit                  int8
}

type extEntry struct {
	*extOp
	mnemonic Mnemonic
}

var extIndex = buildExtIndex()

func buildExtIndex() map[extKey]extEntry {
	index := make(map[extKey]extEntry, len(extOps))
	for i := range extOps {
		op := &extOps[i]
		key := extKey{prefix: op.prefix, escape: op.escape, opcode: op.opcode, digit: op.digit}
		index[key] = extEntry{extOp: op, mnemonic: mustMnemonic(op.name)}
	}
	return index
}

// decodeExtension recognizes the instructions in extOps. Anything else,
// including truncated encodings, is left to the other decoders.
func (d *X86Decoder) decodeExtension(code []byte) (Instruction, bool) {
	i := 0
	var prefix, rex byte
	if i < len(code) && (code[i] == 0x66 || code[i] == 0xF3) {
		prefix = code[i]
		i++
	}
	if d.mode == 64 && i < len(code) && code[i]&0xF0 == 0x40 {
		rex = code[i]
		i++
	}
	if i+1 >= len(code) || code[i] != 0x0F {
		return Instruction{}, false
	}
	i++
	var escape byte
	if code[i] == 0x38 || code[i] == 0x3A {
		escape = code[i]
		i++
	}
	if i+1 >= len(code) {
		return Instruction{}, false
	}
	opcode := code[i]
	i++
	modrm := code[i]
	mod, reg, rm := modrm>>6, (modrm>>3)&7, modrm&7

	e, ok := extIndex[extKey{prefix: prefix, escape: escape, opcode: opcode, digit: -1}]
	if !ok {
		e, ok = extIndex[extKey{prefix: prefix, escape: escape, opcode: opcode, digit: int8(reg)}]
	}
	if !ok || (e.regOnly && mod != 3) || (e.memOnly && mod == 3) {
		return Instruction{}, false
	}

	n := modrmLength(code[i:], d.mode)
	if n == 0 || i+n+e.imm > len(code) {
		return Instruction{}, false
	}
	inst := Instruction{
		Len:      i + n + e.imm,
		Mnemonic: e.mnemonic,
		Features: singleFeature[e.feature],
	}

	regIndex := func(low, rexBit byte) x86asm.Reg {
		idx := x86asm.Reg(low)
		if rex&rexBit != 0 {
			idx += 8
		}
		return idx
	}
	operand := func(idx x86asm.Reg) Register {
		if e.kind == operandXMM {
			return Register(x86asm.X0 + idx)
		}
		if rex&0x08 != 0 {
			return Register(x86asm.RAX + idx)
		}
		return Register(x86asm.EAX + idx)
	}

	slot := 0
	if e.digit < 0 {
		inst.Registers[slot] = operand(regIndex(reg, 0x04))
		slot++
	}
	if mod == 3 && e.kind != operandNone {
		inst.Registers[slot] = operand(regIndex(rm, 0x01))
		slot++
	}
	if e.xmm0 {
		inst.Registers[slot] = Register(x86asm.X0)
	}
	return inst, true
}
