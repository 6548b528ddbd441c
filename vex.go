package featscan

import "golang.org/x/arch/x86/x86asm"

// Mnemonics that x86asm does not know about.
const (
	mnemonicVZEROALL = "VZEROALL"
	mnemonicENDBR64  = "ENDBR64"
	mnemonicENDBR32  = "ENDBR32"
)

// Opcode maps selected by the m-mmmm field of a VEX or EVEX prefix.
const (
	map0F   = 1
	map0F38 = 2
	map0F3A = 3
)

// Implied mandatory prefixes selected by the pp field.
const (
	ppNone = iota
	pp66
	ppF3
	ppF2
)

// vexOp describes a VEX-encoded instruction with no legacy SSE counterpart.
type vexOp struct {
	m, pp  uint8
	opcode byte
	// grouped entries are selected by the ModRM.reg opcode extension ext.
	grouped bool
	ext     uint8
	name    string
	nameW1  string
	feature Feature
	// avx2 upgrades the 256-bit form to AVX2.
	avx2 bool
	gpr  bool
	vvvv bool
	// is4 marks a register encoded in the immediate's high nibble.
	is4 bool
}

var vexOnlyOps = []vexOp{
	{m: map0F38, pp: pp66, opcode: 0x0C, name: "VPERMILPS", feature: FeatureAVX, vvvv: true},
	{m: map0F38, pp: pp66, opcode: 0x0D, name: "VPERMILPD", feature: FeatureAVX, vvvv: true},
	{m: map0F38, pp: pp66, opcode: 0x0E, name: "VTESTPS", feature: FeatureAVX},
	{m: map0F38, pp: pp66, opcode: 0x0F, name: "VTESTPD", feature: FeatureAVX},
	{m: map0F38, pp: pp66, opcode: 0x13, name: "VCVTPH2PS", feature: FeatureF16C},
	{m: map0F38, pp: pp66, opcode: 0x16, name: "VPERMPS", feature: FeatureAVX2, vvvv: true},
	{m: map0F38, pp: pp66, opcode: 0x18, name: "VBROADCASTSS", feature: FeatureAVX},
	{m: map0F38, pp: pp66, opcode: 0x19, name: "VBROADCASTSD", feature: FeatureAVX},
	{m: map0F38, pp: pp66, opcode: 0x1A, name: "VBROADCASTF128", feature: FeatureAVX},
	{m: map0F38, pp: pp66, opcode: 0x2C, name: "VMASKMOVPS", feature: FeatureAVX, vvvv: true},
	{m: map0F38, pp: pp66, opcode: 0x2D, name: "VMASKMOVPD", feature: FeatureAVX, vvvv: true},
	{m: map0F38, pp: pp66, opcode: 0x2E, name: "VMASKMOVPS", feature: FeatureAVX, vvvv: true},
	{m: map0F38, pp: pp66, opcode: 0x2F, name: "VMASKMOVPD", feature: FeatureAVX, vvvv: true},
	{m: map0F38, pp: pp66, opcode: 0x36, name: "VPERMD", feature: FeatureAVX2, vvvv: true},
	{m: map0F38, pp: pp66, opcode: 0x45, name: "VPSRLVD", nameW1: "VPSRLVQ", feature: FeatureAVX2, vvvv: true},
	{m: map0F38, pp: pp66, opcode: 0x46, name: "VPSRAVD", feature: FeatureAVX2, vvvv: true},
	{m: map0F38, pp: pp66, opcode: 0x47, name: "VPSLLVD", nameW1: "VPSLLVQ", feature: FeatureAVX2, vvvv: true},
	{m: map0F38, pp: pp66, opcode: 0x58, name: "VPBROADCASTD", feature: FeatureAVX2},
	{m: map0F38, pp: pp66, opcode: 0x59, name: "VPBROADCASTQ", feature: FeatureAVX2},
	{m: map0F38, pp: pp66, opcode: 0x5A, name: "VBROADCASTI128", feature: FeatureAVX2},
	{m: map0F38, pp: pp66, opcode: 0x78, name: "VPBROADCASTB", feature: FeatureAVX2},
	{m: map0F38, pp: pp66, opcode: 0x79, name: "VPBROADCASTW", feature: FeatureAVX2},
	{m: map0F38, pp: pp66, opcode: 0x8C, name: "VPMASKMOVD", nameW1: "VPMASKMOVQ", feature: FeatureAVX2, vvvv: true},
	{m: map0F38, pp: pp66, opcode: 0x8E, name: "VPMASKMOVD", nameW1: "VPMASKMOVQ", feature: FeatureAVX2, vvvv: true},
	{m: map0F38, pp: pp66, opcode: 0x90, name: "VPGATHERDD", nameW1: "VPGATHERDQ", feature: FeatureAVX2, vvvv: true},
	{m: map0F38, pp: pp66, opcode: 0x91, name: "VPGATHERQD", nameW1: "VPGATHERQQ", feature: FeatureAVX2, vvvv: true},
	{m: map0F38, pp: pp66, opcode: 0x92, name: "VGATHERDPS", nameW1: "VGATHERDPD", feature: FeatureAVX2, vvvv: true},
	{m: map0F38, pp: pp66, opcode: 0x93, name: "VGATHERQPS", nameW1: "VGATHERQPD", feature: FeatureAVX2, vvvv: true},

	{m: map0F38, pp: ppNone, opcode: 0xF2, name: "ANDN", feature: FeatureBMI1, gpr: true, vvvv: true},
	{m: map0F38, pp: ppNone, opcode: 0xF3, grouped: true, ext: 1, name: "BLSR", feature: FeatureBMI1, gpr: true, vvvv: true},
	{m: map0F38, pp: ppNone, opcode: 0xF3, grouped: true, ext: 2, name: "BLSMSK", feature: FeatureBMI1, gpr: true, vvvv: true},
	{m: map0F38, pp: ppNone, opcode: 0xF3, grouped: true, ext: 3, name: "BLSI", feature: FeatureBMI1, gpr: true, vvvv: true},
	{m: map0F38, pp: ppNone, opcode: 0xF5, name: "BZHI", feature: FeatureBMI2, gpr: true, vvvv: true},
	{m: map0F38, pp: ppF3, opcode: 0xF5, name: "PEXT", feature: FeatureBMI2, gpr: true, vvvv: true},
	{m: map0F38, pp: ppF2, opcode: 0xF5, name: "PDEP", feature: FeatureBMI2, gpr: true, vvvv: true},
	{m: map0F38, pp: ppF2, opcode: 0xF6, name: "MULX", feature: FeatureBMI2, gpr: true, vvvv: true},
	{m: map0F38, pp: ppNone, opcode: 0xF7, name: "BEXTR", feature: FeatureBMI1, gpr: true, vvvv: true},
	{m: map0F38, pp: pp66, opcode: 0xF7, name: "SHLX", feature: FeatureBMI2, gpr: true, vvvv: true},
	{m: map0F38, pp: ppF3, opcode: 0xF7, name: "SARX", feature: FeatureBMI2, gpr: true, vvvv: true},
	{m: map0F38, pp: ppF2, opcode: 0xF7, name: "SHRX", feature: FeatureBMI2, gpr: true, vvvv: true},

	{m: map0F3A, pp: pp66, opcode: 0x00, name: "VPERMQ", feature: FeatureAVX2},
	{m: map0F3A, pp: pp66, opcode: 0x01, name: "VPERMPD", feature: FeatureAVX2},
	{m: map0F3A, pp: pp66, opcode: 0x02, name: "VPBLENDD", feature: FeatureAVX2, vvvv: true},
	{m: map0F3A, pp: pp66, opcode: 0x04, name: "VPERMILPS", feature: FeatureAVX},
	{m: map0F3A, pp: pp66, opcode: 0x05, name: "VPERMILPD", feature: FeatureAVX},
	{m: map0F3A, pp: pp66, opcode: 0x06, name: "VPERM2F128", feature: FeatureAVX, vvvv: true},
	{m: map0F3A, pp: pp66, opcode: 0x18, name: "VINSERTF128", feature: FeatureAVX, vvvv: true},
	{m: map0F3A, pp: pp66, opcode: 0x19, name: "VEXTRACTF128", feature: FeatureAVX},
	{m: map0F3A, pp: pp66, opcode: 0x1D, name: "VCVTPS2PH", feature: FeatureF16C},
	{m: map0F3A, pp: pp66, opcode: 0x38, name: "VINSERTI128", feature: FeatureAVX2, vvvv: true},
	{m: map0F3A, pp: pp66, opcode: 0x39, name: "VEXTRACTI128", feature: FeatureAVX2},
	{m: map0F3A, pp: pp66, opcode: 0x46, name: "VPERM2I128", feature: FeatureAVX2, vvvv: true},
	{m: map0F3A, pp: pp66, opcode: 0x4A, name: "VBLENDVPS", feature: FeatureAVX, vvvv: true, is4: true},
	{m: map0F3A, pp: pp66, opcode: 0x4B, name: "VBLENDVPD", feature: FeatureAVX, vvvv: true, is4: true},
	{m: map0F3A, pp: pp66, opcode: 0x4C, name: "VPBLENDVB", feature: FeatureAVX, avx2: true, vvvv: true, is4: true},
	{m: map0F3A, pp: ppF2, opcode: 0xF0, name: "RORX", feature: FeatureBMI2, gpr: true},
}

// fmaOp is one fused multiply-add opcode of map 0F38; W selects the double
// precision form.
type fmaOp struct {
	opcode byte
	name   string
	nameW1 string
}

var fmaOps = buildFMAOps()

func buildFMAOps() []fmaOp {
	forms := [...]struct {
		base   string
		packed bool
	}{
		{"VFMADDSUB", true}, {"VFMSUBADD", true},
		{"VFMADD", true}, {"VFMADD", false},
		{"VFMSUB", true}, {"VFMSUB", false},
		{"VFNMADD", true}, {"VFNMADD", false},
		{"VFNMSUB", true}, {"VFNMSUB", false},
	}
	var ops []fmaOp
	for i, order := range [...]string{"132", "213", "231"} {
		for j, f := range forms {
			single, double := "SS", "SD"
			if f.packed {
				single, double = "PS", "PD"
			}
			ops = append(ops, fmaOp{
				opcode: byte(0x96 + 0x10*i + j),
				name:   f.base + order + single,
				nameW1: f.base + order + double,
			})
		}
	}
	return ops
}

type vexKey struct {
	m, pp, opcode uint8
	grouped       bool
	ext           uint8
}

// vexEntry is a vexOp with its mnemonics resolved.
type vexEntry struct {
	*vexOp
	mnemonic   Mnemonic
	mnemonicW1 Mnemonic
}

var (
	vexIndex = buildVEXIndex()
	fmaIndex = buildFMAIndex()

	mnemonicVZEROUPPERID = mnemonicOf(x86asm.VZEROUPPER)
	mnemonicVZEROALLID   = mustMnemonic(mnemonicVZEROALL)
	mnemonicENDBR64ID    = mustMnemonic(mnemonicENDBR64)
	mnemonicENDBR32ID    = mustMnemonic(mnemonicENDBR32)
)

func buildVEXIndex() map[vexKey]vexEntry {
	index := make(map[vexKey]vexEntry, len(vexOnlyOps))
	for i := range vexOnlyOps {
		op := &vexOnlyOps[i]
		e := vexEntry{vexOp: op, mnemonic: mustMnemonic(op.name)}
		e.mnemonicW1 = e.mnemonic
		if op.nameW1 != "" {
			e.mnemonicW1 = mustMnemonic(op.nameW1)
		}
		index[vexKey{m: op.m, pp: op.pp, opcode: op.opcode, grouped: op.grouped, ext: op.ext}] = e
	}
	return index
}

func buildFMAIndex() map[byte][2]Mnemonic {
	index := make(map[byte][2]Mnemonic, len(fmaOps))
	for _, op := range fmaOps {
		index[op.opcode] = [2]Mnemonic{mustMnemonic(op.name), mustMnemonic(op.nameW1)}
	}
	return index
}

// vexPrefix is a decoded VEX or EVEX prefix. The register extension bits are
// stored un-inverted.
type vexPrefix struct {
	evex    bool
	size    int
	m, pp   uint8
	w       bool
	r, x, b bool
	vvvv    uint8
	bits    int
}

// parseVEX decodes the VEX or EVEX prefix at the start of code.
func parseVEX(code []byte, mode int) (vexPrefix, bool) {
	var p vexPrefix
	switch code[0] {
	case 0xC5:
		if len(code) < 2 {
			return p, false
		}
		b1 := code[1]
		p.size = 2
		p.m = map0F
		p.r = b1&0x80 == 0
		p.vvvv = (^b1 >> 3) & 0x0F
		p.bits = 128 << ((b1 >> 2) & 1)
		p.pp = b1 & 0x03
	case 0xC4:
		if len(code) < 3 {
			return p, false
		}
		b1, b2 := code[1], code[2]
		p.size = 3
		p.r = b1&0x80 == 0
		p.x = b1&0x40 == 0
		p.b = b1&0x20 == 0
		p.m = b1 & 0x1F
		p.w = b2&0x80 != 0
		p.vvvv = (^b2 >> 3) & 0x0F
		p.bits = 128 << ((b2 >> 2) & 1)
		p.pp = b2 & 0x03
	case 0x62:
		if len(code) < 4 {
			return p, false
		}
		p0, p1, p2 := code[1], code[2], code[3]
		if p0&0x08 != 0 || p1&0x04 == 0 {
			return p, false
		}
		ll := (p2 >> 5) & 0x03
		if ll == 3 {
			return p, false
		}
		p.evex = true
		p.size = 4
		p.r = p0&0x80 == 0
		p.x = p0&0x40 == 0
		p.b = p0&0x20 == 0
		p.m = p0 & 0x07
		p.w = p1&0x80 != 0
		p.vvvv = (^p1 >> 3) & 0x0F
		p.pp = p1 & 0x03
		p.bits = 128 << ll
	default:
		return p, false
	}
	if p.m < map0F || p.m > map0F3A {
		return p, false
	}
	if mode == 32 {
		p.r, p.x, p.b = false, false, false
		p.vvvv &= 0x07
	}
	return p, true
}

// decodeVEX decodes a VEX or EVEX encoded instruction at the start of code.
// The boolean result is false when code does not start with such an
// encoding, in which case the legacy decoder takes over.
func (d *X86Decoder) decodeVEX(code []byte) (Instruction, bool) {
	pos, addrSize := 0, d.mode
prefixes:
	for pos < len(code) && pos < maxVEXPrefixes {
		switch code[pos] {
		case 0x26, 0x2E, 0x36, 0x3E, 0x64, 0x65:
		case 0x67:
			addrSize = d.mode / 2
		default:
			break prefixes
		}
		pos++
	}
	if pos >= len(code) {
		return Instruction{}, false
	}
	switch code[pos] {
	case 0xC4, 0xC5, 0x62:
	default:
		return Instruction{}, false
	}
	// Outside 64-bit mode these bytes are LES, LDS and BOUND unless the
	// next byte would be a register-form ModRM.
	if d.mode == 32 && (pos+1 >= len(code) || code[pos+1]&0xC0 != 0xC0) {
		return Instruction{}, false
	}

	p, ok := parseVEX(code[pos:], d.mode)
	if !ok {
		return invalidInstruction, true
	}
	body := code[pos+p.size:]
	if len(body) == 0 {
		return invalidInstruction, true
	}

	if !p.evex && p.m == map0F && body[0] == 0x77 {
		inst := Instruction{
			Len:      pos + p.size + 1,
			Mnemonic: mnemonicVZEROUPPERID,
			Features: singleFeature[FeatureAVX],
		}
		if p.bits == 256 {
			inst.Mnemonic = mnemonicVZEROALLID
		}
		return inst, true
	}

	n := modrmLength(body[1:], addrSize)
	if n == 0 {
		return invalidInstruction, true
	}
	end := 1 + n + immediateLength(p.m, body[0])
	if end > len(body) {
		return invalidInstruction, true
	}
	body = body[:end]

	inst := Instruction{Len: pos + p.size + end}
	if !d.decodeVEXOnly(&inst, p, body) && !d.decodeVEXLegacy(&inst, p, code[:pos], body) {
		return invalidInstruction, true
	}
	return inst, true
}

// maxVEXPrefixes bounds the segment and address-size prefixes accepted in
// front of a VEX or EVEX prefix.
const maxVEXPrefixes = 4

// decodeVEXOnly resolves opcodes that only exist in VEX or EVEX form.
func (d *X86Decoder) decodeVEXOnly(inst *Instruction, p vexPrefix, body []byte) bool {
	opcode, modrm := body[0], body[1]

	if p.m == map0F38 && p.pp == pp66 {
		if ms, ok := fmaIndex[opcode]; ok {
			inst.Mnemonic = ms[0]
			if p.w {
				inst.Mnemonic = ms[1]
			}
			inst.Features = singleFeature[FeatureFMA]
			if p.evex {
				inst.Features = evexFeatures(p.bits)
			}
			d.vexRegisters(inst, p, body, false, true, false, false)
			return true
		}
	}
	if p.evex {
		return false
	}

	key := vexKey{m: p.m, pp: p.pp, opcode: opcode}
	e, ok := vexIndex[key]
	if !ok {
		key.grouped, key.ext = true, (modrm>>3)&0x07
		if e, ok = vexIndex[key]; !ok {
			return false
		}
	}

	inst.Mnemonic = e.mnemonic
	if p.w {
		inst.Mnemonic = e.mnemonicW1
	}
	inst.Features = singleFeature[e.feature]
	if e.avx2 && p.bits == 256 {
		inst.Features = singleFeature[FeatureAVX2]
	}
	d.vexRegisters(inst, p, body, e.gpr, e.vvvv, e.grouped, e.is4)
	return true
}

// vexRegisters fills the operand registers of a VEX-only instruction from
// its ModRM, vvvv and is4 fields.
func (d *X86Decoder) vexRegisters(inst *Instruction, p vexPrefix, body []byte, gpr, vvvv, grouped, is4 bool) {
	modrm := body[1]
	reg := (modrm >> 3) & 0x07
	rm := modrm & 0x07
	if p.r {
		reg |= 0x08
	}
	if p.b {
		rm |= 0x08
	}

	register := func(index uint8) Register {
		if gpr {
			if p.w && d.mode == 64 {
				return Register(x86asm.RAX + x86asm.Reg(index))
			}
			return Register(x86asm.EAX + x86asm.Reg(index))
		}
		return widenVector(Register(x86asm.X0+x86asm.Reg(index)), p.bits)
	}

	slot := 0
	add := func(r Register) {
		if slot < len(inst.Registers) {
			inst.Registers[slot] = r
			slot++
		}
	}
	if !grouped {
		add(register(reg))
	}
	if vvvv {
		add(register(p.vvvv))
	}
	if modrm>>6 == 3 {
		add(register(rm))
	}
	if is4 {
		index := body[len(body)-1] >> 4
		if d.mode == 32 {
			index &= 0x07
		}
		add(register(index))
	}
}

// decodeVEXLegacy resolves a VEX or EVEX instruction through the legacy SSE
// encoding of the same opcode: the prefix is rewritten as the mandatory
// prefix, a REX prefix and the escape bytes, and the result is decoded by
// x86asm.
func (d *X86Decoder) decodeVEXLegacy(inst *Instruction, p vexPrefix, prefixes, body []byte) bool {
	var buf [24]byte
	b := append(buf[:0], prefixes...)
	switch p.pp {
	case pp66:
		b = append(b, 0x66)
	case ppF3:
		b = append(b, 0xF3)
	case ppF2:
		b = append(b, 0xF2)
	}
	if d.mode == 64 {
		rex := byte(0x40)
		if p.w {
			rex |= 0x08
		}
		if p.r {
			rex |= 0x04
		}
		if p.x {
			rex |= 0x02
		}
		if p.b {
			rex |= 0x01
		}
		if rex != 0x40 {
			b = append(b, rex)
		}
	}
	b = append(b, 0x0F)
	switch p.m {
	case map0F38:
		b = append(b, 0x38)
	case map0F3A:
		b = append(b, 0x3A)
	}
	b = append(b, body...)

	legacy, err := x86asm.Decode(b, d.mode)
	if err != nil || legacy.Len != len(b) {
		return false
	}
	m, ok := mnemonics.vex[legacy.Op]
	if !ok {
		return false
	}

	var regs [4]Register
	n := 0
	for _, arg := range legacy.Args {
		if arg == nil {
			break
		}
		r, ok := arg.(x86asm.Reg)
		if !ok {
			continue
		}
		// MMX forms have no VEX encoding.
		if r >= x86asm.M0 && r <= x86asm.M7 {
			return false
		}
		if n < len(regs) {
			regs[n] = widenVector(fromX86asmReg(r), p.bits)
			n++
		}
	}
	if takesVVVV(&legacy) {
		// vvvv is the first source operand, right after the destination.
		copy(regs[2:], regs[1:3])
		regs[1] = widenVector(Register(x86asm.X0+x86asm.Reg(p.vvvv)), p.bits)
	}

	inst.Mnemonic = m
	inst.Registers = regs
	if p.evex {
		inst.Features = evexFeatures(p.bits)
	} else {
		inst.Features = vexFeatures(legacy.Op, p.bits)
	}
	return true
}

// modrmLength returns the number of bytes used by the ModRM byte at the start
// of b and the SIB and displacement bytes following it, or 0 when b is too
// short.
func modrmLength(b []byte, addrSize int) int {
	if len(b) == 0 {
		return 0
	}
	mod, rm := b[0]>>6, b[0]&0x07
	n := 1
	if addrSize == 16 {
		switch {
		case mod == 0 && rm == 6:
			n += 2
		case mod == 1:
			n++
		case mod == 2:
			n += 2
		}
	} else {
		if mod != 3 && rm == 4 {
			if len(b) < 2 {
				return 0
			}
			n++
			if mod == 0 && b[1]&0x07 == 5 {
				n += 4
			}
		}
		switch {
		case mod == 0 && rm == 5:
			n += 4
		case mod == 1:
			n++
		case mod == 2:
			n += 4
		}
	}
	if n > len(b) {
		return 0
	}
	return n
}

// immediateLength returns the size of the immediate that follows the ModRM
// bytes of a VEX or EVEX instruction.
func immediateLength(m uint8, opcode byte) int {
	switch {
	case m == map0F3A:
		return 1
	case m == map0F && (opcode >= 0x70 && opcode <= 0x73 || opcode >= 0xC4 && opcode <= 0xC6 || opcode == 0xC2):
		return 1
	}
	return 0
}
