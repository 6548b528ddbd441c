package featscan

import (
	"fmt"
	"strings"

	"golang.org/x/arch/x86/x86asm"
)

// Register identifies an architectural register. The zero value is the
// "no register" sentinel and is never counted.
//
// Ids 1 through the last x86asm register mirror x86asm.Reg one to one; the
// 256-bit and 512-bit vector registers, which x86asm does not model, follow.
type Register uint8

// RegisterNone marks an operand slot that does not hold a register.
const RegisterNone Register = 0

// Vector registers beyond the x86asm register set.
const (
	RegisterYMM0 = Register(x86asm.TR7) + 1
	RegisterZMM0 = RegisterYMM0 + vectorRegs

	// RegisterCount is the cardinality of the register label space.
	RegisterCount = int(RegisterZMM0) + vectorRegs
)

const vectorRegs = 16

var registerNames = buildRegisterNames()

func buildRegisterNames() []string {
	names := make([]string, RegisterCount)
	names[RegisterNone] = "none"
	for r := x86asm.AL; r <= x86asm.TR7; r++ {
		names[r] = intelRegisterName(r)
	}
	for i := range vectorRegs {
		names[int(RegisterYMM0)+i] = fmt.Sprintf("YMM%d", i)
		names[int(RegisterZMM0)+i] = fmt.Sprintf("ZMM%d", i)
	}
	return names
}

// intelRegisterName translates the x86asm register spelling to the one used
// in Intel manuals (XMM0 rather than X0, SIL rather than SIB).
func intelRegisterName(r x86asm.Reg) string {
	switch {
	case r >= x86asm.X0 && r <= x86asm.X15:
		return fmt.Sprintf("XMM%d", r-x86asm.X0)
	case r >= x86asm.M0 && r <= x86asm.M7:
		return fmt.Sprintf("MM%d", r-x86asm.M0)
	case r >= x86asm.F0 && r <= x86asm.F7:
		return fmt.Sprintf("ST%d", r-x86asm.F0)
	case r >= x86asm.SPB && r <= x86asm.DIB:
		return strings.TrimSuffix(r.String(), "B") + "L"
	case r >= x86asm.R8L && r <= x86asm.R15L:
		return strings.TrimSuffix(r.String(), "L") + "D"
	}
	return r.String()
}

func (r Register) String() string {
	if int(r) >= RegisterCount {
		return fmt.Sprintf("Register(%d)", r)
	}
	return registerNames[r]
}

// fromX86asmReg converts an x86asm register to its label id.
func fromX86asmReg(r x86asm.Reg) Register {
	if r > x86asm.TR7 {
		return RegisterNone
	}
	return Register(r)
}

// widenVector maps an XMM register to the YMM or ZMM register sharing its
// index for the given vector length in bits. Other registers are unchanged.
func widenVector(r Register, bits int) Register {
	x0 := Register(x86asm.X0)
	if r < x0 || r > Register(x86asm.X15) {
		return r
	}
	switch bits {
	case 256:
		return RegisterYMM0 + (r - x0)
	case 512:
		return RegisterZMM0 + (r - x0)
	}
	return r
}

// isXMM reports whether r is one of the 128-bit SSE registers.
func isXMM(r x86asm.Reg) bool {
	return r >= x86asm.X0 && r <= x86asm.X15
}
