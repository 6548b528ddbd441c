package featscan

import "fmt"

// Task accumulates decoded instructions into counters.
type Task interface {
	Add(inst Instruction)
}

// Attribution selects which of an instruction's features are credited.
type Attribution int

const (
	// Coverage credits every feature an instruction requires.
	Coverage Attribution = iota
	// Primary credits only the first feature an instruction requires.
	Primary
)

func (a Attribution) String() string {
	switch a {
	case Coverage:
		return "coverage"
	case Primary:
		return "primary"
	}
	return fmt.Sprintf("Attribution(%d)", int(a))
}

// credited returns the features inst credits under a. Invalid and
// featureless instructions credit nothing.
func (a Attribution) credited(inst Instruction) []Feature {
	if !inst.Valid() || len(inst.Features) == 0 {
		return nil
	}
	if a == Primary {
		return inst.Features[:1]
	}
	return inst.Features
}

// CountTask counts instructions per feature.
type CountTask struct {
	attr      Attribution
	features  [FeatureCount]uint64
	finalized bool
}

// NewCountTask returns an empty CountTask crediting features under attr.
func NewCountTask(attr Attribution) *CountTask {
	return &CountTask{attr: attr}
}

// Add credits the features of inst. It panics once Result has been called.
func (t *CountTask) Add(inst Instruction) {
	if t.finalized {
		panic("featscan: Add on a finalized CountTask")
	}
	for _, f := range t.attr.credited(inst) {
		t.features[f]++
	}
}

// HasCPUID reports whether the CPUID counter is non-zero, so it agrees with
// HasCPUID on the result under either attribution.
func (t *CountTask) HasCPUID() bool {
	return t.features[FeatureCPUID] > 0
}

// Result finalizes the task and returns the non-zero feature counters in
// feature id order.
func (t *CountTask) Result() []Counter {
	if t.finalized {
		panic("featscan: CountTask finalized twice")
	}
	t.finalized = true
	return collect(SpaceFeature, t.features[:])
}

// DetailTask counts instructions per feature and per mnemonic within each
// feature, and operand registers across all valid instructions.
type DetailTask struct {
	attr     Attribution
	features [FeatureCount]uint64
	// mnemonics is allocated per feature on first use.
	mnemonics [FeatureCount][]uint64
	registers [RegisterCount]uint64
	finalized bool
}

// NewDetailTask returns an empty DetailTask crediting features under attr.
func NewDetailTask(attr Attribution) *DetailTask {
	return &DetailTask{attr: attr}
}

// Add credits the features, mnemonic and registers of a valid inst. It
// panics once Result has been called.
func (t *DetailTask) Add(inst Instruction) {
	if t.finalized {
		panic("featscan: Add on a finalized DetailTask")
	}
	if !inst.Valid() {
		return
	}
	for _, f := range t.attr.credited(inst) {
		t.features[f]++
		if t.mnemonics[f] == nil {
			t.mnemonics[f] = make([]uint64, MnemonicCount())
		}
		t.mnemonics[f][inst.Mnemonic]++
	}
	for _, r := range inst.Registers {
		if r != RegisterNone {
			t.registers[r]++
		}
	}
}

// HasCPUID reports whether the CPUID counter is non-zero.
func (t *DetailTask) HasCPUID() bool {
	return t.features[FeatureCPUID] > 0
}

// Result finalizes the task. It returns the non-zero feature details, each
// with its non-zero mnemonic counters, and the non-zero register counters,
// all in id order.
func (t *DetailTask) Result() ([]Detail, []Counter) {
	if t.finalized {
		panic("featscan: DetailTask finalized twice")
	}
	t.finalized = true

	var details []Detail
	for id, n := range t.features {
		if n == 0 {
			continue
		}
		details = append(details, Detail{
			Counter:   Counter{Space: SpaceFeature, ID: id, Count: n},
			Mnemonics: collect(SpaceMnemonic, t.mnemonics[id]),
		})
	}
	return details, collect(SpaceRegister, t.registers[:])
}
