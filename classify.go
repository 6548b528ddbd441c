package featscan

import "golang.org/x/arch/x86/x86asm"

// opClass describes the extensions a legacy-encoded opcode requires.
type opClass struct {
	features []Feature
	// mmx replaces features when no operand is an XMM register.
	mmx []Feature
	// vex marks opcodes with a VEX/EVEX counterpart named "V" + opcode.
	vex bool
	// nds tells when the V-form takes a source register in VEX.vvvv.
	nds ndsKind
}

type ndsKind uint8

const (
	ndsNever ndsKind = iota
	ndsAlways
	// ndsLoad is for MOVHPS and friends: only the load form has a vvvv
	// source.
	ndsLoad
	// ndsRegs is for MOVSS and MOVSD: only the register-to-register form
	// has a vvvv source.
	ndsRegs
)

// singleFeature holds one shared single-element slice per feature.
var singleFeature = func() [FeatureCount][]Feature {
	var fs [FeatureCount][]Feature
	for i := range fs {
		fs[i] = []Feature{Feature(i)}
	}
	return fs
}()

var (
	featuresCMOVFPU  = []Feature{FeatureCMOV, FeatureFPU}
	featuresAESAVX   = []Feature{FeatureAES, FeatureAVX}
	featuresCLMULAVX = []Feature{FeaturePCLMULQDQ, FeatureAVX}
	featuresAVX512   = []Feature{FeatureAVX512F}
	featuresAVX512VL = []Feature{FeatureAVX512F, FeatureAVX512VL}
)

var opClasses = buildOpClasses()

func buildOpClasses() []opClass {
	classes := make([]opClass, x86asmOpCount())
	set := func(c opClass, ops ...x86asm.Op) {
		for _, op := range ops {
			classes[op] = c
		}
	}
	only := func(f Feature) opClass { return opClass{features: singleFeature[f]} }
	simd := func(f Feature) opClass { return opClass{features: singleFeature[f], vex: true, nds: ndsAlways} }
	shared := func(xmm, mmx Feature) opClass {
		return opClass{features: singleFeature[xmm], mmx: singleFeature[mmx], vex: true, nds: ndsAlways}
	}

	// x87.
	set(only(FeatureFPU),
		x86asm.F2XM1, x86asm.FABS, x86asm.FADD, x86asm.FADDP, x86asm.FBLD,
		x86asm.FBSTP, x86asm.FCHS, x86asm.FCOM, x86asm.FCOMP, x86asm.FCOMPP,
		x86asm.FDECSTP, x86asm.FDIV, x86asm.FDIVP, x86asm.FDIVR, x86asm.FDIVRP,
		x86asm.FFREE, x86asm.FFREEP, x86asm.FIADD, x86asm.FICOM, x86asm.FICOMP,
		x86asm.FIDIV, x86asm.FIDIVR, x86asm.FILD, x86asm.FIMUL, x86asm.FINCSTP,
		x86asm.FIST, x86asm.FISTP, x86asm.FISUB, x86asm.FISUBR, x86asm.FLD,
		x86asm.FLD1, x86asm.FLDCW, x86asm.FLDENV, x86asm.FLDL2E, x86asm.FLDL2T,
		x86asm.FLDLG2, x86asm.FLDLN2, x86asm.FLDPI, x86asm.FLDZ, x86asm.FMUL,
		x86asm.FMULP, x86asm.FNCLEX, x86asm.FNINIT, x86asm.FNOP, x86asm.FNSAVE,
		x86asm.FNSTCW, x86asm.FNSTENV, x86asm.FNSTSW, x86asm.FPATAN, x86asm.FPREM,
		x86asm.FPTAN, x86asm.FRNDINT, x86asm.FRSTOR, x86asm.FSCALE, x86asm.FSQRT,
		x86asm.FST, x86asm.FSTP, x86asm.FSUB, x86asm.FSUBP, x86asm.FSUBR,
		x86asm.FSUBRP, x86asm.FTST, x86asm.FXAM, x86asm.FXCH, x86asm.FXTRACT,
		x86asm.FYL2X, x86asm.FYL2XP1)
	set(only(FeatureFPU387),
		x86asm.FCOS, x86asm.FSIN, x86asm.FSINCOS, x86asm.FPREM1,
		x86asm.FUCOM, x86asm.FUCOMP, x86asm.FUCOMPP)
	set(opClass{features: featuresCMOVFPU},
		x86asm.FCMOVB, x86asm.FCMOVBE, x86asm.FCMOVE, x86asm.FCMOVNB,
		x86asm.FCMOVNBE, x86asm.FCMOVNE, x86asm.FCMOVNU, x86asm.FCMOVU,
		x86asm.FCOMI, x86asm.FCOMIP, x86asm.FUCOMI, x86asm.FUCOMIP)

	// Pentium-era and system extensions.
	set(only(FeatureCMOV),
		x86asm.CMOVA, x86asm.CMOVAE, x86asm.CMOVB, x86asm.CMOVBE, x86asm.CMOVE,
		x86asm.CMOVG, x86asm.CMOVGE, x86asm.CMOVL, x86asm.CMOVLE, x86asm.CMOVNE,
		x86asm.CMOVNO, x86asm.CMOVNP, x86asm.CMOVNS, x86asm.CMOVO, x86asm.CMOVP,
		x86asm.CMOVS)
	set(only(FeatureCPUID), x86asm.CPUID)
	set(only(FeatureTSC), x86asm.RDTSC)
	set(only(FeatureMSR), x86asm.RDMSR, x86asm.WRMSR)
	set(only(FeatureCX8), x86asm.CMPXCHG8B)
	set(only(FeatureCMPXCHG16B), x86asm.CMPXCHG16B)
	set(only(FeatureSMM), x86asm.RSM)
	set(only(FeatureRDPMC), x86asm.RDPMC)
	set(only(FeatureSEP), x86asm.SYSENTER, x86asm.SYSEXIT)
	set(only(FeatureSYSCALL), x86asm.SYSCALL, x86asm.SYSRET)
	set(only(FeatureX64),
		x86asm.SWAPGS, x86asm.MOVSXD, x86asm.CDQE, x86asm.CQO, x86asm.CMPSQ,
		x86asm.LODSQ, x86asm.MOVSQ, x86asm.SCASQ, x86asm.STOSQ, x86asm.IRETQ,
		x86asm.POPFQ, x86asm.PUSHFQ, x86asm.JRCXZ)

	// MMX instructions extended to XMM registers by SSE2.
	set(shared(FeatureSSE2, FeatureMMX),
		x86asm.MOVD, x86asm.MOVQ,
		x86asm.PACKSSDW, x86asm.PACKSSWB, x86asm.PACKUSWB,
		x86asm.PADDB, x86asm.PADDD, x86asm.PADDSB, x86asm.PADDSW,
		x86asm.PADDUSB, x86asm.PADDUSW, x86asm.PADDW,
		x86asm.PAND, x86asm.PANDN, x86asm.POR, x86asm.PXOR,
		x86asm.PCMPEQB, x86asm.PCMPEQD, x86asm.PCMPEQW,
		x86asm.PCMPGTB, x86asm.PCMPGTD, x86asm.PCMPGTW,
		x86asm.PMADDWD, x86asm.PMULHW, x86asm.PMULLW,
		x86asm.PSLLD, x86asm.PSLLQ, x86asm.PSLLW, x86asm.PSRAD, x86asm.PSRAW,
		x86asm.PSRLD, x86asm.PSRLQ, x86asm.PSRLW,
		x86asm.PSUBB, x86asm.PSUBD, x86asm.PSUBSB, x86asm.PSUBSW,
		x86asm.PSUBUSB, x86asm.PSUBUSW, x86asm.PSUBW,
		x86asm.PUNPCKHBW, x86asm.PUNPCKHDQ, x86asm.PUNPCKHWD,
		x86asm.PUNPCKLBW, x86asm.PUNPCKLDQ, x86asm.PUNPCKLWD)
	set(only(FeatureMMX), x86asm.EMMS)

	// MMX-register instructions introduced by SSE.
	set(shared(FeatureSSE2, FeatureSSE),
		x86asm.PAVGB, x86asm.PAVGW, x86asm.PEXTRW, x86asm.PINSRW,
		x86asm.PMAXSW, x86asm.PMAXUB, x86asm.PMINSW, x86asm.PMINUB,
		x86asm.PMOVMSKB, x86asm.PMULHUW, x86asm.PSADBW)
	set(only(FeatureSSE),
		x86asm.MASKMOVQ, x86asm.MOVNTQ, x86asm.PSHUFW,
		x86asm.CVTPI2PS, x86asm.CVTPS2PI, x86asm.CVTTPS2PI,
		x86asm.SFENCE, x86asm.PREFETCHNTA, x86asm.PREFETCHT0,
		x86asm.PREFETCHT1, x86asm.PREFETCHT2)
	set(simd(FeatureSSE),
		x86asm.ADDPS, x86asm.ADDSS, x86asm.ANDNPS, x86asm.ANDPS, x86asm.CMPPS,
		x86asm.CMPSS, x86asm.COMISS, x86asm.CVTSI2SS, x86asm.CVTSS2SI,
		x86asm.CVTTSS2SI, x86asm.DIVPS, x86asm.DIVSS, x86asm.LDMXCSR,
		x86asm.MAXPS, x86asm.MAXSS, x86asm.MINPS, x86asm.MINSS, x86asm.MOVAPS,
		x86asm.MOVHLPS, x86asm.MOVHPS, x86asm.MOVLHPS, x86asm.MOVLPS,
		x86asm.MOVMSKPS, x86asm.MOVNTPS, x86asm.MOVSS, x86asm.MOVUPS,
		x86asm.MULPS, x86asm.MULSS, x86asm.ORPS, x86asm.RCPPS, x86asm.RCPSS,
		x86asm.RSQRTPS, x86asm.RSQRTSS, x86asm.SHUFPS, x86asm.SQRTPS,
		x86asm.SQRTSS, x86asm.STMXCSR, x86asm.SUBPS, x86asm.SUBSS,
		x86asm.UCOMISS, x86asm.UNPCKHPS, x86asm.UNPCKLPS, x86asm.XORPS)

	// SSE2.
	set(only(FeatureSSE2),
		x86asm.PADDQ, x86asm.PSUBQ, x86asm.PMULUDQ,
		x86asm.CVTPD2PI, x86asm.CVTPI2PD, x86asm.CVTTPD2PI,
		x86asm.MOVDQ2Q, x86asm.MOVQ2DQ, x86asm.MOVNTI,
		x86asm.LFENCE, x86asm.MFENCE)
	// PADDQ, PSUBQ and PMULUDQ have VEX forms for their XMM encodings.
	for _, op := range []x86asm.Op{x86asm.PADDQ, x86asm.PSUBQ, x86asm.PMULUDQ} {
		classes[op].vex = true
		classes[op].nds = ndsAlways
	}
	set(simd(FeatureSSE2),
		x86asm.ADDPD, x86asm.ADDSD, x86asm.ANDNPD, x86asm.ANDPD, x86asm.CMPPD,
		x86asm.CMPSD_XMM, x86asm.COMISD, x86asm.CVTDQ2PD, x86asm.CVTDQ2PS,
		x86asm.CVTPD2DQ, x86asm.CVTPD2PS, x86asm.CVTPS2DQ, x86asm.CVTPS2PD,
		x86asm.CVTSD2SI, x86asm.CVTSD2SS, x86asm.CVTSI2SD, x86asm.CVTSS2SD,
		x86asm.CVTTPD2DQ, x86asm.CVTTPS2DQ, x86asm.CVTTSD2SI, x86asm.DIVPD,
		x86asm.DIVSD, x86asm.MASKMOVDQU, x86asm.MAXPD, x86asm.MAXSD,
		x86asm.MINPD, x86asm.MINSD, x86asm.MOVAPD, x86asm.MOVDQA,
		x86asm.MOVDQU, x86asm.MOVHPD, x86asm.MOVLPD, x86asm.MOVMSKPD,
		x86asm.MOVNTDQ, x86asm.MOVNTPD, x86asm.MOVSD_XMM, x86asm.MOVUPD,
		x86asm.MULPD, x86asm.MULSD, x86asm.ORPD, x86asm.PSHUFD, x86asm.PSHUFHW,
		x86asm.PSHUFLW, x86asm.PSLLDQ, x86asm.PSRLDQ, x86asm.PUNPCKHQDQ,
		x86asm.PUNPCKLQDQ, x86asm.SHUFPD, x86asm.SQRTPD, x86asm.SQRTSD,
		x86asm.SUBPD, x86asm.SUBSD, x86asm.UCOMISD, x86asm.UNPCKHPD,
		x86asm.UNPCKLPD, x86asm.XORPD)
	set(only(FeatureCLFSH), x86asm.CLFLUSH)
	set(only(FeaturePAUSE), x86asm.PAUSE)

	// SSE3.
	set(only(FeatureSSE3), x86asm.FISTTP)
	set(simd(FeatureSSE3),
		x86asm.ADDSUBPD, x86asm.ADDSUBPS, x86asm.HADDPD, x86asm.HADDPS,
		x86asm.HSUBPD, x86asm.HSUBPS, x86asm.LDDQU, x86asm.MOVDDUP,
		x86asm.MOVSHDUP, x86asm.MOVSLDUP)
	set(only(FeatureMONITOR), x86asm.MONITOR, x86asm.MWAIT)

	// SSSE3, with both MMX and XMM forms.
	set(simd(FeatureSSSE3),
		x86asm.PABSB, x86asm.PABSD, x86asm.PABSW, x86asm.PALIGNR,
		x86asm.PHADDD, x86asm.PHADDSW, x86asm.PHADDW, x86asm.PHSUBD,
		x86asm.PHSUBSW, x86asm.PHSUBW, x86asm.PMADDUBSW, x86asm.PMULHRSW,
		x86asm.PSHUFB, x86asm.PSIGNB, x86asm.PSIGND, x86asm.PSIGNW)

	// SSE4.1 and SSE4.2.
	set(simd(FeatureSSE4_1),
		x86asm.BLENDPD, x86asm.BLENDPS, x86asm.BLENDVPD, x86asm.BLENDVPS,
		x86asm.DPPD, x86asm.DPPS, x86asm.EXTRACTPS, x86asm.INSERTPS,
		x86asm.MOVNTDQA, x86asm.MPSADBW, x86asm.PACKUSDW, x86asm.PBLENDVB,
		x86asm.PBLENDW, x86asm.PCMPEQQ, x86asm.PEXTRB, x86asm.PEXTRD,
		x86asm.PEXTRQ, x86asm.PHMINPOSUW, x86asm.PINSRB, x86asm.PINSRD,
		x86asm.PINSRQ, x86asm.PMAXSB, x86asm.PMAXSD, x86asm.PMAXUD,
		x86asm.PMAXUW, x86asm.PMINSB, x86asm.PMINSD, x86asm.PMINUD,
		x86asm.PMINUW, x86asm.PMOVSXBD, x86asm.PMOVSXBQ, x86asm.PMOVSXBW,
		x86asm.PMOVSXDQ, x86asm.PMOVSXWD, x86asm.PMOVSXWQ, x86asm.PMOVZXBD,
		x86asm.PMOVZXBQ, x86asm.PMOVZXBW, x86asm.PMOVZXDQ, x86asm.PMOVZXWD,
		x86asm.PMOVZXWQ, x86asm.PMULDQ, x86asm.PMULLD, x86asm.PTEST,
		x86asm.ROUNDPD, x86asm.ROUNDPS, x86asm.ROUNDSD, x86asm.ROUNDSS)
	set(simd(FeatureSSE4_2),
		x86asm.PCMPESTRI, x86asm.PCMPESTRM, x86asm.PCMPGTQ, x86asm.PCMPISTRI,
		x86asm.PCMPISTRM)
	set(only(FeatureSSE4_2), x86asm.CRC32)
	set(only(FeatureSSE4A), x86asm.MOVNTSD, x86asm.MOVNTSS)

	// Bit manipulation and miscellaneous extensions.
	set(only(FeaturePOPCNT), x86asm.POPCNT)
	set(only(FeatureLZCNT), x86asm.LZCNT)
	set(only(FeatureBMI1), x86asm.TZCNT)
	set(only(FeatureMOVBE), x86asm.MOVBE)
	set(simd(FeatureAES),
		x86asm.AESDEC, x86asm.AESDECLAST, x86asm.AESENC, x86asm.AESENCLAST,
		x86asm.AESIMC, x86asm.AESKEYGENASSIST)
	set(simd(FeaturePCLMULQDQ), x86asm.PCLMULQDQ)
	set(only(FeatureRDRAND), x86asm.RDRAND)
	set(only(FeatureFSGSBASE),
		x86asm.RDFSBASE, x86asm.RDGSBASE, x86asm.WRFSBASE, x86asm.WRGSBASE)
	set(only(FeatureRDTSCP), x86asm.RDTSCP)
	set(only(FeatureINVPCID), x86asm.INVPCID)
	set(only(FeatureFXSR),
		x86asm.FXSAVE, x86asm.FXSAVE64, x86asm.FXRSTOR, x86asm.FXRSTOR64)
	set(only(FeatureXSAVE),
		x86asm.XSAVE, x86asm.XSAVE64, x86asm.XRSTOR, x86asm.XRSTOR64,
		x86asm.XGETBV, x86asm.XSETBV)
	set(only(FeatureXSAVEOPT), x86asm.XSAVEOPT, x86asm.XSAVEOPT64)
	set(only(FeatureXSAVEC), x86asm.XSAVEC, x86asm.XSAVEC64)
	set(only(FeatureXSAVES),
		x86asm.XSAVES, x86asm.XSAVES64, x86asm.XRSTORS, x86asm.XRSTORS64)
	set(only(FeatureRTM), x86asm.XBEGIN, x86asm.XEND, x86asm.XABORT, x86asm.XTEST)
	set(only(FeaturePREFETCHW), x86asm.PREFETCHW)
	set(only(FeatureAVX),
		x86asm.VMOVDQA, x86asm.VMOVDQU, x86asm.VMOVNTDQ, x86asm.VMOVNTDQA,
		x86asm.VZEROUPPER)

	// Two-operand V-forms: VEX.vvvv is unused.
	for _, op := range []x86asm.Op{
		x86asm.MOVD, x86asm.MOVQ, x86asm.PEXTRW, x86asm.PMOVMSKB,
		x86asm.COMISS, x86asm.UCOMISS, x86asm.CVTSS2SI, x86asm.CVTTSS2SI,
		x86asm.LDMXCSR, x86asm.STMXCSR, x86asm.MOVAPS, x86asm.MOVUPS,
		x86asm.MOVMSKPS, x86asm.MOVNTPS, x86asm.RCPPS, x86asm.RSQRTPS,
		x86asm.SQRTPS,
		x86asm.COMISD, x86asm.UCOMISD, x86asm.CVTDQ2PD, x86asm.CVTDQ2PS,
		x86asm.CVTPD2DQ, x86asm.CVTPD2PS, x86asm.CVTPS2DQ, x86asm.CVTPS2PD,
		x86asm.CVTSD2SI, x86asm.CVTTPD2DQ, x86asm.CVTTPS2DQ, x86asm.CVTTSD2SI,
		x86asm.MASKMOVDQU, x86asm.MOVAPD, x86asm.MOVDQA, x86asm.MOVDQU,
		x86asm.MOVMSKPD, x86asm.MOVNTDQ, x86asm.MOVNTPD, x86asm.MOVUPD,
		x86asm.PSHUFD, x86asm.PSHUFHW, x86asm.PSHUFLW, x86asm.SQRTPD,
		x86asm.LDDQU, x86asm.MOVDDUP, x86asm.MOVSHDUP, x86asm.MOVSLDUP,
		x86asm.PABSB, x86asm.PABSD, x86asm.PABSW,
		x86asm.EXTRACTPS, x86asm.MOVNTDQA, x86asm.PEXTRB, x86asm.PEXTRD,
		x86asm.PEXTRQ, x86asm.PHMINPOSUW, x86asm.PMOVSXBD, x86asm.PMOVSXBQ,
		x86asm.PMOVSXBW, x86asm.PMOVSXDQ, x86asm.PMOVSXWD, x86asm.PMOVSXWQ,
		x86asm.PMOVZXBD, x86asm.PMOVZXBQ, x86asm.PMOVZXBW, x86asm.PMOVZXDQ,
		x86asm.PMOVZXWD, x86asm.PMOVZXWQ, x86asm.PTEST, x86asm.ROUNDPD,
		x86asm.ROUNDPS,
		x86asm.PCMPESTRI, x86asm.PCMPESTRM, x86asm.PCMPISTRI, x86asm.PCMPISTRM,
		x86asm.AESIMC, x86asm.AESKEYGENASSIST,
	} {
		classes[op].nds = ndsNever
	}
	for _, op := range []x86asm.Op{x86asm.MOVHPS, x86asm.MOVLPS, x86asm.MOVHPD, x86asm.MOVLPD} {
		classes[op].nds = ndsLoad
	}
	for _, op := range []x86asm.Op{x86asm.MOVSS, x86asm.MOVSD_XMM} {
		classes[op].nds = ndsRegs
	}
	// The implicit-XMM0 blends are encoded elsewhere in VEX space, with an
	// explicit fourth operand.
	for _, op := range []x86asm.Op{x86asm.PBLENDVB, x86asm.BLENDVPS, x86asm.BLENDVPD} {
		classes[op].vex = false
		classes[op].nds = ndsNever
	}

	return classes
}

// takesVVVV reports whether the V-form of the legacy instruction inst reads a
// source register from VEX.vvvv.
func takesVVVV(inst *x86asm.Inst) bool {
	_, dstReg := inst.Args[0].(x86asm.Reg)
	_, srcReg := inst.Args[1].(x86asm.Reg)
	switch opClasses[inst.Op].nds {
	case ndsAlways:
		return true
	case ndsLoad:
		return dstReg
	case ndsRegs:
		return dstReg && srcReg
	}
	return false
}

// featuresOf returns the extensions a legacy-encoded instruction requires.
// Baseline integer instructions require none.
func featuresOf(inst *x86asm.Inst) []Feature {
	if int(inst.Op) >= len(opClasses) {
		return nil
	}
	c := &opClasses[inst.Op]
	if c.mmx != nil && !hasXMMOperand(inst) {
		return c.mmx
	}
	return c.features
}

func hasXMMOperand(inst *x86asm.Inst) bool {
	for _, arg := range inst.Args {
		if arg == nil {
			break
		}
		if r, ok := arg.(x86asm.Reg); ok && isXMM(r) {
			return true
		}
	}
	return false
}

// vexFeatures returns the extensions required by the VEX form of a legacy
// SIMD opcode at the given vector length.
func vexFeatures(op x86asm.Op, bits int) []Feature {
	switch opClasses[op].features[0] {
	case FeatureAES:
		return featuresAESAVX
	case FeaturePCLMULQDQ:
		return featuresCLMULAVX
	}
	if bits == 256 && isIntegerSIMD(op) {
		return singleFeature[FeatureAVX2]
	}
	return singleFeature[FeatureAVX]
}

// evexFeatures returns the extensions required by an EVEX encoding at the
// given vector length.
func evexFeatures(bits int) []Feature {
	if bits < 512 {
		return featuresAVX512VL
	}
	return featuresAVX512
}

// isIntegerSIMD reports whether the 256-bit form of op belongs to AVX2
// rather than AVX.
func isIntegerSIMD(op x86asm.Op) bool {
	switch op {
	case x86asm.PTEST:
		return false
	case x86asm.MOVNTDQA, x86asm.MPSADBW:
		return true
	}
	name := op.String()
	return len(name) > 1 && name[0] == 'P'
}
