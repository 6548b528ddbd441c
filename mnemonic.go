package featscan

import (
	"fmt"
	"strings"

	"golang.org/x/arch/x86/x86asm"
)

// Mnemonic identifies an instruction mnemonic.
//
// Ids below the x86asm opcode count equal the x86asm.Op value; the
// VEX/EVEX-only mnemonics and those x86asm lacks follow in registration
// order.
type Mnemonic uint16

// MnemonicInvalid is the mnemonic of undecodable bytes.
const MnemonicInvalid Mnemonic = 0

// x86asmOpCount returns one past the last opcode known to x86asm.
func x86asmOpCount() int {
	n := 1
	for !strings.HasPrefix(x86asm.Op(n).String(), "Op(") {
		n++
	}
	return n
}

type mnemonicTable struct {
	names  []string
	byName map[string]Mnemonic
	// vex maps a legacy SIMD opcode to its "V"-prefixed counterpart.
	vex map[x86asm.Op]Mnemonic
}

var mnemonics = buildMnemonicTable()

func buildMnemonicTable() *mnemonicTable {
	t := &mnemonicTable{
		byName: make(map[string]Mnemonic),
		vex:    make(map[x86asm.Op]Mnemonic),
	}
	t.names = append(t.names, "INVALID")

	ops := len(opClasses)
	for op := x86asm.Op(1); int(op) < ops; op++ {
		name := legacyName(op)
		if _, ok := t.byName[name]; !ok {
			t.byName[name] = Mnemonic(len(t.names))
		}
		t.names = append(t.names, name)
	}
	for op := x86asm.Op(1); int(op) < ops; op++ {
		if opClasses[op].vex {
			t.vex[op] = t.register("V" + legacyName(op))
		}
	}
	t.register(mnemonicVZEROALL)
	for _, e := range vexOnlyOps {
		t.register(e.name)
		if e.nameW1 != "" {
			t.register(e.nameW1)
		}
	}
	for _, e := range fmaOps {
		t.register(e.name)
		t.register(e.nameW1)
	}
	t.register(mnemonicENDBR64)
	t.register(mnemonicENDBR32)
	for _, e := range extOps {
		t.register(e.name)
	}
	return t
}

// legacyName is the display name of an x86asm opcode. x86asm suffixes the
// SSE forms of MOVSD and CMPSD to tell them apart from the string
// instructions; reports use the architectural name for both.
func legacyName(op x86asm.Op) string {
	return strings.TrimSuffix(op.String(), "_XMM")
}

func (t *mnemonicTable) register(name string) Mnemonic {
	if m, ok := t.byName[name]; ok {
		return m
	}
	m := Mnemonic(len(t.names))
	t.names = append(t.names, name)
	t.byName[name] = m
	return m
}

// MnemonicCount is the cardinality of the mnemonic label space.
func MnemonicCount() int {
	return len(mnemonics.names)
}

// LookupMnemonic returns the mnemonic with the given name.
func LookupMnemonic(name string) (Mnemonic, bool) {
	m, ok := mnemonics.byName[name]
	return m, ok
}

func (m Mnemonic) String() string {
	if int(m) >= len(mnemonics.names) {
		return fmt.Sprintf("Mnemonic(%d)", m)
	}
	return mnemonics.names[m]
}

func mnemonicOf(op x86asm.Op) Mnemonic {
	if int(op) >= len(opClasses) {
		return MnemonicInvalid
	}
	return Mnemonic(op)
}

func mustMnemonic(name string) Mnemonic {
	m, ok := mnemonics.byName[name]
	if !ok {
		panic("featscan: unregistered mnemonic " + name)
	}
	return m
}
