package featscan

import (
	"bytes"
	"debug/elf"
	"debug/macho"
	"debug/pe"
	"encoding/binary"
	"fmt"
	"io"
)

// Format is the container format of a binary.
type Format string

const (
	FormatELF   Format = "ELF"
	FormatPE    Format = "PE"
	FormatMachO Format = "Mach-O"
)

// Arch is the architecture a binary was built for. Non-x86 machines keep the
// name the container format gives them.
type Arch string

// Supported x86 architectures.
const (
	ArchX86_64    Arch = "x86_64"
	ArchX86_64X32 Arch = "x86_64_x32"
	ArchI386      Arch = "i386"
)

// Segment is a run of executable bytes in the file.
type Segment struct {
	Name   string
	Offset uint64
	Size   uint64
}

// Binary is the part of an executable's headers featscan needs: its
// container format, its architecture and its text sections in file order.
type Binary struct {
	Format   Format
	Arch     Arch
	Segments []Segment
}

// Bitness returns the x86 operating mode the code was built for.
func (b *Binary) Bitness() (int, error) {
	switch b.Arch {
	case ArchX86_64:
		return 64, nil
	case ArchX86_64X32, ArchI386:
		return 32, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrUnsupportedArch, b.Arch)
}

// Mach-O section attributes marking sections that hold instructions.
const (
	machoAttrPureInstructions = 0x80000000
	machoAttrSomeInstructions = 0x00000400
)

var (
	magicELF = []byte{0x7f, 'E', 'L', 'F'}
	magicMZ  = []byte{'M', 'Z'}
	magicPE  = []byte{'P', 'E', 0, 0}
)

// ParseBinary detects the container format of r by its magic bytes and
// reads the architecture and the text sections from its headers.
func ParseBinary(r io.ReaderAt) (*Binary, error) {
	switch {
	case hasMagic(r, 0, magicELF):
		return parseELF(r)
	case isPE(r):
		return parsePE(r)
	}

	var b [4]byte
	if _, err := r.ReadAt(b[:], 0); err == nil {
		switch binary.BigEndian.Uint32(b[:]) {
		case macho.MagicFat:
			return parseFatMachO(r)
		case macho.Magic32, macho.Magic64:
			return parseMachO(r, 0)
		}
		switch binary.LittleEndian.Uint32(b[:]) {
		case macho.Magic32, macho.Magic64:
			return parseMachO(r, 0)
		}
	}
	return nil, ErrUnsupportedFormat
}

func hasMagic(r io.ReaderAt, off int64, m []byte) bool {
	buf := make([]byte, len(m))
	if _, err := r.ReadAt(buf, off); err != nil {
		return false
	}
	return bytes.Equal(buf, m)
}

func isPE(r io.ReaderAt) bool {
	if !hasMagic(r, 0, magicMZ) {
		return false
	}
	var off [4]byte
	if _, err := r.ReadAt(off[:], 0x3c); err != nil {
		return false
	}
	return hasMagic(r, int64(binary.LittleEndian.Uint32(off[:])), magicPE)
}

func parseELF(r io.ReaderAt) (*Binary, error) {
	f, err := elf.NewFile(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ELF file: %w", err)
	}
	defer f.Close()

	b := &Binary{Format: FormatELF, Arch: Arch(f.Machine.String())}
	switch {
	case f.Machine == elf.EM_X86_64 && f.Class == elf.ELFCLASS64:
		b.Arch = ArchX86_64
	case f.Machine == elf.EM_X86_64 && f.Class == elf.ELFCLASS32:
		b.Arch = ArchX86_64X32
	case f.Machine == elf.EM_386:
		b.Arch = ArchI386
	}

	for _, s := range f.Sections {
		if s.Type != elf.SHT_PROGBITS || s.Flags&elf.SHF_EXECINSTR == 0 || s.Size == 0 {
			continue
		}
		b.Segments = append(b.Segments, Segment{Name: s.Name, Offset: s.Offset, Size: s.Size})
	}
	return b, nil
}

func parsePE(r io.ReaderAt) (*Binary, error) {
	f, err := pe.NewFile(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse PE file: %w", err)
	}
	defer f.Close()

	b := &Binary{Format: FormatPE, Arch: Arch(fmt.Sprintf("machine 0x%x", f.Machine))}
	switch f.Machine {
	case pe.IMAGE_FILE_MACHINE_AMD64:
		b.Arch = ArchX86_64
	case pe.IMAGE_FILE_MACHINE_I386:
		b.Arch = ArchI386
	}

	for _, s := range f.Sections {
		if s.Characteristics&pe.IMAGE_SCN_CNT_CODE == 0 {
			continue
		}
		// Raw data is padded to the file alignment.
		size := s.Size
		if 0 < s.VirtualSize && s.VirtualSize < size {
			size = s.VirtualSize
		}
		if size == 0 {
			continue
		}
		b.Segments = append(b.Segments, Segment{Name: s.Name, Offset: uint64(s.Offset), Size: uint64(size)})
	}
	return b, nil
}

// parseFatMachO reads the first x86 image of a universal binary, or the
// first image when none is x86.
func parseFatMachO(r io.ReaderAt) (*Binary, error) {
	f, err := macho.NewFatFile(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse universal Mach-O file: %w", err)
	}
	defer f.Close()

	if len(f.Arches) == 0 {
		return nil, fmt.Errorf("failed to parse universal Mach-O file: no images")
	}
	arch := f.Arches[0]
	for _, a := range f.Arches {
		if a.Cpu == macho.CpuAmd64 || a.Cpu == macho.Cpu386 {
			arch = a
			break
		}
	}
	return parseMachO(io.NewSectionReader(r, int64(arch.Offset), int64(arch.Size)), uint64(arch.Offset))
}

// parseMachO reads a thin Mach-O image. base is the image's offset in the
// file and is added to the section offsets.
func parseMachO(r io.ReaderAt, base uint64) (*Binary, error) {
	f, err := macho.NewFile(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Mach-O file: %w", err)
	}
	defer f.Close()

	b := &Binary{Format: FormatMachO, Arch: Arch(f.Cpu.String())}
	switch f.Cpu {
	case macho.CpuAmd64:
		b.Arch = ArchX86_64
	case macho.Cpu386:
		b.Arch = ArchI386
	}

	for _, s := range f.Sections {
		if s.Flags&(machoAttrPureInstructions|machoAttrSomeInstructions) == 0 || s.Size == 0 {
			continue
		}
		b.Segments = append(b.Segments, Segment{Name: s.Name, Offset: base + uint64(s.Offset), Size: s.Size})
	}
	return b, nil
}
