package featscan

import "fmt"

// Feature identifies a CPU instruction-set extension an instruction may
// require. Feature values are dense and declared in a fixed order, which is
// also the order reports fall back to when counts tie.
type Feature uint8

// Recognized x86 instruction-set extensions.
const (
	FeatureFPU Feature = iota
	FeatureFPU387
	FeatureCMOV
	FeatureCPUID
	FeatureTSC
	FeatureMSR
	FeatureCX8
	FeatureCMPXCHG16B
	FeatureSMM
	FeatureRDPMC
	FeatureSEP
	FeatureSYSCALL
	FeatureX64
	FeatureMMX
	FeatureSSE
	FeatureSSE2
	FeatureSSE3
	FeatureSSSE3
	FeatureSSE4_1
	FeatureSSE4_2
	FeatureSSE4A
	FeaturePOPCNT
	FeatureLZCNT
	FeatureBMI1
	FeatureBMI2
	FeatureADX
	FeatureMOVBE
	FeatureAES
	FeaturePCLMULQDQ
	FeatureSHA
	FeatureRDRAND
	FeatureRDSEED
	FeatureFSGSBASE
	FeatureRDTSCP
	FeatureINVPCID
	FeatureFXSR
	FeatureXSAVE
	FeatureXSAVEOPT
	FeatureXSAVEC
	FeatureXSAVES
	FeatureRTM
	FeatureMONITOR
	FeatureCLFSH
	FeatureCLFLUSHOPT
	FeaturePREFETCHW
	FeaturePAUSE
	FeatureCETIBT
	FeatureAVX
	FeatureAVX2
	FeatureFMA
	FeatureF16C
	FeatureAVX512F
	FeatureAVX512VL

	// FeatureCount is the cardinality of the feature label space.
	FeatureCount int = iota
)

var featureNames = [FeatureCount]string{
	FeatureFPU:        "FPU",
	FeatureFPU387:     "FPU387",
	FeatureCMOV:       "CMOV",
	FeatureCPUID:      "CPUID",
	FeatureTSC:        "TSC",
	FeatureMSR:        "MSR",
	FeatureCX8:        "CX8",
	FeatureCMPXCHG16B: "CMPXCHG16B",
	FeatureSMM:        "SMM",
	FeatureRDPMC:      "RDPMC",
	FeatureSEP:        "SEP",
	FeatureSYSCALL:    "SYSCALL",
	FeatureX64:        "X64",
	FeatureMMX:        "MMX",
	FeatureSSE:        "SSE",
	FeatureSSE2:       "SSE2",
	FeatureSSE3:       "SSE3",
	FeatureSSSE3:      "SSSE3",
	FeatureSSE4_1:     "SSE4_1",
	FeatureSSE4_2:     "SSE4_2",
	FeatureSSE4A:      "SSE4A",
	FeaturePOPCNT:     "POPCNT",
	FeatureLZCNT:      "LZCNT",
	FeatureBMI1:       "BMI1",
	FeatureBMI2:       "BMI2",
	FeatureADX:        "ADX",
	FeatureMOVBE:      "MOVBE",
	FeatureAES:        "AES",
	FeaturePCLMULQDQ:  "PCLMULQDQ",
	FeatureSHA:        "SHA",
	FeatureRDRAND:     "RDRAND",
	FeatureRDSEED:     "RDSEED",
	FeatureFSGSBASE:   "FSGSBASE",
	FeatureRDTSCP:     "RDTSCP",
	FeatureINVPCID:    "INVPCID",
	FeatureFXSR:       "FXSR",
	FeatureXSAVE:      "XSAVE",
	FeatureXSAVEOPT:   "XSAVEOPT",
	FeatureXSAVEC:     "XSAVEC",
	FeatureXSAVES:     "XSAVES",
	FeatureRTM:        "RTM",
	FeatureMONITOR:    "MONITOR",
	FeatureCLFSH:      "CLFSH",
	FeatureCLFLUSHOPT: "CLFLUSHOPT",
	FeaturePREFETCHW:  "PREFETCHW",
	FeaturePAUSE:      "PAUSE",
	FeatureCETIBT:     "CET_IBT",
	FeatureAVX:        "AVX",
	FeatureAVX2:       "AVX2",
	FeatureFMA:        "FMA",
	FeatureF16C:       "F16C",
	FeatureAVX512F:    "AVX512F",
	FeatureAVX512VL:   "AVX512VL",
}

func (f Feature) String() string {
	if int(f) >= FeatureCount {
		return fmt.Sprintf("Feature(%d)", f)
	}
	return featureNames[f]
}
