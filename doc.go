// Package featscan reports which CPU instruction-set extensions an x86
// executable uses, through static disassembly of its text sections.
//
// # Binaries
//
// [ParseBinary] recognizes ELF, PE and Mach-O (including fat) containers and
// locates the sections holding machine code. Only x86 targets are decoded:
// x86-64, x32 and i386.
//
// # Decoding
//
// [X86Decoder] decodes legacy, SSE, VEX and EVEX encodings and labels each
// [Instruction] with its [Mnemonic], the [Feature] sets it requires and its
// operand registers. Undecodable bytes become one-byte invalid instructions
// and decoding resumes at the next byte.
//
// # Counting
//
// A [Task] accumulates instructions. [CountTask] counts instructions per
// feature and [DetailTask] further breaks the counts down by mnemonic and
// counts operand registers. Under [Coverage] attribution an instruction is
// credited to every feature it requires, so counters overlap; under
// [Primary] only the first feature is credited.
//
// Use [Classify] on raw code, or [Analyze] to run the whole pipeline on a
// file and write a report.
package featscan
