package featscan_test

import (
	"slices"
	"testing"

	"github.com/davecgh/go-spew/spew"

	"github.com/maxgio92/featscan"
)

func mnemonic(t *testing.T, name string) featscan.Mnemonic {
	t.Helper()
	m, ok := featscan.LookupMnemonic(name)
	if !ok {
		t.Fatalf("unknown mnemonic %q", name)
	}
	return m
}

// classified decodes 64-bit code into instructions.
func classified(t *testing.T, code []byte) []featscan.Instruction {
	t.Helper()
	dec, err := featscan.NewX86Decoder(64)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var out []featscan.Instruction
	for inst := range dec.Decode(code) {
		out = append(out, inst)
	}
	return out
}

func names(counters []featscan.Counter) []string {
	var out []string
	for _, c := range counters {
		out = append(out, c.Name())
	}
	return out
}

func TestCountTask(t *testing.T) {
	multi := featscan.Instruction{
		Len:      6,
		Mnemonic: mnemonic(t, "VADDPS"),
		Features: []featscan.Feature{featscan.FeatureAVX512F, featscan.FeatureAVX512VL},
	}
	cpuid := featscan.Instruction{
		Len:      2,
		Mnemonic: mnemonic(t, "CPUID"),
		Features: []featscan.Feature{featscan.FeatureCPUID},
	}
	// CPUID only as a secondary feature.
	trailing := featscan.Instruction{
		Len:      3,
		Mnemonic: mnemonic(t, "ADDPS"),
		Features: []featscan.Feature{featscan.FeatureSSE, featscan.FeatureCPUID},
	}
	nop := featscan.Instruction{Len: 1, Mnemonic: mnemonic(t, "NOP")}
	invalid := featscan.Instruction{Len: 1, Features: []featscan.Feature{featscan.FeatureSSE}}

	tests := []struct {
		name      string
		attr      featscan.Attribution
		insts     []featscan.Instruction
		want      []featscan.Counter
		wantCPUID bool
	}{
		{
			name: "Empty",
			attr: featscan.Coverage,
		},
		{
			name:  "Featureless",
			attr:  featscan.Coverage,
			insts: []featscan.Instruction{nop, nop},
		},
		{
			name:  "InvalidIgnored",
			attr:  featscan.Coverage,
			insts: []featscan.Instruction{invalid},
		},
		{
			name:  "Coverage",
			attr:  featscan.Coverage,
			insts: []featscan.Instruction{multi, cpuid, multi},
			want: []featscan.Counter{
				{Space: featscan.SpaceFeature, ID: int(featscan.FeatureCPUID), Count: 1},
				{Space: featscan.SpaceFeature, ID: int(featscan.FeatureAVX512F), Count: 2},
				{Space: featscan.SpaceFeature, ID: int(featscan.FeatureAVX512VL), Count: 2},
			},
			wantCPUID: true,
		},
		{
			name:  "Primary",
			attr:  featscan.Primary,
			insts: []featscan.Instruction{multi, cpuid, multi},
			want: []featscan.Counter{
				{Space: featscan.SpaceFeature, ID: int(featscan.FeatureCPUID), Count: 1},
				{Space: featscan.SpaceFeature, ID: int(featscan.FeatureAVX512F), Count: 2},
			},
			wantCPUID: true,
		},
		{
			name:  "PrimaryUncreditedCPUID",
			attr:  featscan.Primary,
			insts: []featscan.Instruction{trailing},
			want: []featscan.Counter{
				{Space: featscan.SpaceFeature, ID: int(featscan.FeatureSSE), Count: 1},
			},
		},
		{
			name:  "CoverageSecondaryCPUID",
			attr:  featscan.Coverage,
			insts: []featscan.Instruction{trailing},
			want: []featscan.Counter{
				{Space: featscan.SpaceFeature, ID: int(featscan.FeatureCPUID), Count: 1},
				{Space: featscan.SpaceFeature, ID: int(featscan.FeatureSSE), Count: 1},
			},
			wantCPUID: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := featscan.NewCountTask(tt.attr)
			for _, inst := range tt.insts {
				task.Add(inst)
			}
			if task.HasCPUID() != tt.wantCPUID {
				t.Errorf("expected HasCPUID %v, got %v", tt.wantCPUID, task.HasCPUID())
			}
			got := task.Result()
			if !slices.Equal(got, tt.want) {
				t.Errorf("unexpected result:\n%s", spew.Sdump(got))
			}
			if featscan.HasCPUID(got) != tt.wantCPUID {
				t.Errorf("expected HasCPUID(result) %v", tt.wantCPUID)
			}
		})
	}
}

func TestCountTask_Finalized(t *testing.T) {
	mustPanic := func(t *testing.T, f func()) {
		t.Helper()
		defer func() {
			if recover() == nil {
				t.Error("expected a panic")
			}
		}()
		f()
	}

	t.Run("ResultTwice", func(t *testing.T) {
		task := featscan.NewCountTask(featscan.Coverage)
		task.Result()
		mustPanic(t, func() { task.Result() })
	})
	t.Run("AddAfterResult", func(t *testing.T) {
		task := featscan.NewCountTask(featscan.Coverage)
		task.Result()
		mustPanic(t, func() { task.Add(featscan.Instruction{Len: 1}) })
	})
	t.Run("DetailResultTwice", func(t *testing.T) {
		task := featscan.NewDetailTask(featscan.Coverage)
		task.Result()
		mustPanic(t, func() { task.Result() })
	})
	t.Run("DetailAddAfterResult", func(t *testing.T) {
		task := featscan.NewDetailTask(featscan.Coverage)
		task.Result()
		mustPanic(t, func() { task.Add(featscan.Instruction{Len: 1}) })
	})
}

func TestDetailTask(t *testing.T) {
	code := []byte{
		0x0f, 0xa2, // cpuid
		0xc5, 0xf4, 0x58, 0xc2, // vaddps ymm0, ymm1, ymm2
		0xc5, 0xf8, 0x58, 0xc1, // vaddps xmm0, xmm0, xmm1
		0xc5, 0xf5, 0xfe, 0xc2, // vpaddd ymm0, ymm1, ymm2
		0xc4, 0xe2, 0x79, 0xdc, 0xc1, // vaesenc xmm0, xmm0, xmm1
		0x90,       // nop
		0xe8, 0x00, // truncated call
	}

	for _, attr := range []featscan.Attribution{featscan.Coverage, featscan.Primary} {
		t.Run(attr.String(), func(t *testing.T) {
			task := featscan.NewDetailTask(attr)
			count := featscan.NewCountTask(attr)
			for _, inst := range classified(t, code) {
				task.Add(inst)
				count.Add(inst)
			}
			if !task.HasCPUID() {
				t.Error("expected HasCPUID")
			}

			details, registers := task.Result()
			features := count.Result()
			if len(details) != len(features) {
				t.Fatalf("expected %d details, got:\n%s", len(features), spew.Sdump(details))
			}
			for i, d := range details {
				if d.Counter != features[i] {
					t.Errorf("detail %s: expected %+v, got %+v", d.Name(), features[i], d.Counter)
				}
				if sum := featscan.Total(d.Mnemonics); sum != d.Count {
					t.Errorf("detail %s: mnemonic counts sum to %d, want %d", d.Name(), sum, d.Count)
				}
			}

			wantRegisters := []string{"XMM0", "XMM1", "YMM0", "YMM1", "YMM2"}
			if got := names(registers); !slices.Equal(got, wantRegisters) {
				t.Errorf("expected registers %v, got %v", wantRegisters, got)
			}
			for _, r := range registers {
				if r.Count == 0 {
					t.Errorf("zero counter for register %s", r.Name())
				}
			}
		})
	}
}

func TestDetailTask_Attribution(t *testing.T) {
	code := []byte{0xc4, 0xe2, 0x79, 0xdc, 0xc1} // vaesenc xmm0, xmm0, xmm1

	tests := []struct {
		attr featscan.Attribution
		want []string
	}{
		{attr: featscan.Coverage, want: []string{"AES", "AVX"}},
		{attr: featscan.Primary, want: []string{"AES"}},
	}

	for _, tt := range tests {
		t.Run(tt.attr.String(), func(t *testing.T) {
			task := featscan.NewDetailTask(tt.attr)
			for _, inst := range classified(t, code) {
				task.Add(inst)
			}
			details, _ := task.Result()
			var got []string
			for _, d := range details {
				got = append(got, d.Name())
				if m := names(d.Mnemonics); !slices.Equal(m, []string{"VAESENC"}) {
					t.Errorf("feature %s: expected mnemonics [VAESENC], got %v", d.Name(), m)
				}
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("expected features %v, got %v", tt.want, got)
			}
		})
	}
}

func TestDetailTask_HasCPUID(t *testing.T) {
	inst := featscan.Instruction{
		Len:      3,
		Mnemonic: mnemonic(t, "ADDPS"),
		Features: []featscan.Feature{featscan.FeatureSSE, featscan.FeatureCPUID},
	}

	for _, attr := range []featscan.Attribution{featscan.Coverage, featscan.Primary} {
		t.Run(attr.String(), func(t *testing.T) {
			task := featscan.NewDetailTask(attr)
			task.Add(inst)
			has := task.HasCPUID()
			details, _ := task.Result()
			var counters []featscan.Counter
			for _, d := range details {
				counters = append(counters, d.Counter)
			}
			if has != featscan.HasCPUID(counters) {
				t.Errorf("HasCPUID %v disagrees with the result:\n%s", has, spew.Sdump(counters))
			}
			if has != (attr == featscan.Coverage) {
				t.Errorf("expected HasCPUID %v, got %v", attr == featscan.Coverage, has)
			}
		})
	}
}
