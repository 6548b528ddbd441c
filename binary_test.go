package featscan_test

import (
	"bytes"
	"debug/elf"
	"debug/macho"
	"debug/pe"
	"encoding/binary"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/maxgio92/featscan"
)

type testSection struct {
	name  string
	typ   elf.SectionType
	flags elf.SectionFlag
	data  []byte
}

func textSection(code []byte) testSection {
	return testSection{name: ".text", typ: elf.SHT_PROGBITS, flags: elf.SHF_ALLOC | elf.SHF_EXECINSTR, data: code}
}

func dataSection(data []byte) testSection {
	return testSection{name: ".data", typ: elf.SHT_PROGBITS, flags: elf.SHF_ALLOC | elf.SHF_WRITE, data: data}
}

// buildELF lays out a little-endian ELF file with the given sections
// followed by the section name table and the section headers. It has no
// program headers.
func buildELF(class elf.Class, machine elf.Machine, sections ...testSection) []byte {
	is64 := class == elf.ELFCLASS64
	ehsize, shentsize := 52, 40
	if is64 {
		ehsize, shentsize = 64, 64
	}

	shstrtab := []byte{0}
	nameOff := make([]uint32, len(sections)+1)
	for i, s := range sections {
		nameOff[i] = uint32(len(shstrtab))
		shstrtab = append(shstrtab, s.name...)
		shstrtab = append(shstrtab, 0)
	}
	nameOff[len(sections)] = uint32(len(shstrtab))
	shstrtab = append(shstrtab, ".shstrtab\x00"...)

	buf := make([]byte, ehsize)
	offsets := make([]uint64, len(sections)+1)
	for i, s := range sections {
		offsets[i] = uint64(len(buf))
		buf = append(buf, s.data...)
	}
	offsets[len(sections)] = uint64(len(buf))
	buf = append(buf, shstrtab...)
	for len(buf)%8 != 0 {
		buf = append(buf, 0)
	}
	shoff := uint64(len(buf))
	shnum := len(sections) + 2

	le := binary.LittleEndian
	copy(buf[0:4], []byte{0x7f, 'E', 'L', 'F'})
	buf[4] = byte(class)
	buf[5] = byte(elf.ELFDATA2LSB)
	buf[6] = byte(elf.EV_CURRENT)
	le.PutUint16(buf[16:18], uint16(elf.ET_EXEC))
	le.PutUint16(buf[18:20], uint16(machine))
	le.PutUint32(buf[20:24], uint32(elf.EV_CURRENT))
	if is64 {
		le.PutUint64(buf[40:48], shoff)
		le.PutUint16(buf[52:54], uint16(ehsize))
		le.PutUint16(buf[58:60], uint16(shentsize))
		le.PutUint16(buf[60:62], uint16(shnum))
		le.PutUint16(buf[62:64], uint16(shnum-1))
	} else {
		le.PutUint32(buf[32:36], uint32(shoff))
		le.PutUint16(buf[40:42], uint16(ehsize))
		le.PutUint16(buf[46:48], uint16(shentsize))
		le.PutUint16(buf[48:50], uint16(shnum))
		le.PutUint16(buf[50:52], uint16(shnum-1))
	}

	header := func(name uint32, typ elf.SectionType, flags elf.SectionFlag, off, size uint64) {
		sh := make([]byte, shentsize)
		le.PutUint32(sh[0:4], name)
		le.PutUint32(sh[4:8], uint32(typ))
		if is64 {
			le.PutUint64(sh[8:16], uint64(flags))
			le.PutUint64(sh[24:32], off)
			le.PutUint64(sh[32:40], size)
			le.PutUint64(sh[48:56], 1)
		} else {
			le.PutUint32(sh[8:12], uint32(flags))
			le.PutUint32(sh[16:20], uint32(off))
			le.PutUint32(sh[20:24], uint32(size))
			le.PutUint32(sh[32:36], 1)
		}
		buf = append(buf, sh...)
	}
	header(0, elf.SHT_NULL, 0, 0, 0)
	for i, s := range sections {
		header(nameOff[i], s.typ, s.flags, offsets[i], uint64(len(s.data)))
	}
	header(nameOff[len(sections)], elf.SHT_STRTAB, 0, offsets[len(sections)], uint64(len(shstrtab)))
	return buf
}

// buildPE lays out a PE image without an optional header whose single code
// section holds code, padded to 0x200 bytes of raw data.
func buildPE(machine uint16, code []byte) []byte {
	const (
		peOffset   = 0x80
		dataOffset = 0x200
		rawSize    = 0x200
	)
	buf := make([]byte, dataOffset+rawSize)
	le := binary.LittleEndian

	copy(buf[0:2], "MZ")
	le.PutUint32(buf[0x3c:0x40], peOffset)
	copy(buf[peOffset:], []byte{'P', 'E', 0, 0})

	fh := buf[peOffset+4:]
	le.PutUint16(fh[0:2], machine)
	le.PutUint16(fh[2:4], 1) // NumberOfSections

	sh := fh[20:]
	copy(sh[0:8], ".text")
	le.PutUint32(sh[8:12], uint32(len(code))) // VirtualSize
	le.PutUint32(sh[12:16], 0x1000)           // VirtualAddress
	le.PutUint32(sh[16:20], rawSize)          // SizeOfRawData
	le.PutUint32(sh[20:24], dataOffset)       // PointerToRawData
	le.PutUint32(sh[36:40], pe.IMAGE_SCN_CNT_CODE|pe.IMAGE_SCN_MEM_EXECUTE|pe.IMAGE_SCN_MEM_READ)

	copy(buf[dataOffset:], code)
	return buf
}

// buildMachO lays out a 64-bit Mach-O executable with one __TEXT segment
// holding a single __text section.
func buildMachO(cpu macho.Cpu, code []byte) []byte {
	const (
		headerSize  = 32
		segmentSize = 72
		sectionSize = 80
		dataOffset  = 0x100
	)
	buf := make([]byte, dataOffset+len(code))
	le := binary.LittleEndian

	le.PutUint32(buf[0:4], macho.Magic64)
	le.PutUint32(buf[4:8], uint32(cpu))
	le.PutUint32(buf[12:16], uint32(macho.TypeExec))
	le.PutUint32(buf[16:20], 1) // ncmds
	le.PutUint32(buf[20:24], segmentSize+sectionSize)

	seg := buf[headerSize:]
	le.PutUint32(seg[0:4], uint32(macho.LoadCmdSegment64))
	le.PutUint32(seg[4:8], segmentSize+sectionSize)
	copy(seg[8:24], "__TEXT")
	le.PutUint64(seg[24:32], 0x100000000)      // vmaddr
	le.PutUint64(seg[32:40], 0x1000)           // vmsize
	le.PutUint64(seg[40:48], 0)                // fileoff
	le.PutUint64(seg[48:56], uint64(len(buf))) // filesize
	le.PutUint32(seg[56:60], 5)                // maxprot
	le.PutUint32(seg[60:64], 5)                // initprot
	le.PutUint32(seg[64:68], 1)                // nsects

	sect := seg[segmentSize:]
	copy(sect[0:16], "__text")
	copy(sect[16:32], "__TEXT")
	le.PutUint64(sect[32:40], 0x100000000+dataOffset)
	le.PutUint64(sect[40:48], uint64(len(code)))
	le.PutUint32(sect[48:52], dataOffset)
	le.PutUint32(sect[64:68], 0x80000400) // pure and some instructions

	copy(buf[dataOffset:], code)
	return buf
}

var _ = Describe("ParseBinary", func() {
	code := []byte{0x0f, 0xa2, 0x90, 0x90}

	Context("with an ELF file", func() {
		It("should report a 64-bit x86 binary and its text sections", func() {
			data := buildELF(elf.ELFCLASS64, elf.EM_X86_64,
				dataSection([]byte{1, 2, 3, 4}),
				textSection(code),
			)
			bin, err := featscan.ParseBinary(bytes.NewReader(data))
			Expect(err).NotTo(HaveOccurred())
			Expect(bin.Format).To(Equal(featscan.FormatELF))
			Expect(bin.Arch).To(Equal(featscan.ArchX86_64))
			Expect(bin.Segments).To(HaveLen(1))
			Expect(bin.Segments[0].Name).To(Equal(".text"))
			Expect(bin.Segments[0].Size).To(Equal(uint64(len(code))))
			Expect(data[bin.Segments[0].Offset:][:len(code)]).To(Equal(code))

			bitness, err := bin.Bitness()
			Expect(err).NotTo(HaveOccurred())
			Expect(bitness).To(Equal(64))
		})

		It("should map 32-bit x86 classes to 32-bit code", func() {
			for _, tc := range []struct {
				class   elf.Class
				machine elf.Machine
				arch    featscan.Arch
			}{
				{elf.ELFCLASS32, elf.EM_386, featscan.ArchI386},
				{elf.ELFCLASS32, elf.EM_X86_64, featscan.ArchX86_64X32},
			} {
				bin, err := featscan.ParseBinary(bytes.NewReader(buildELF(tc.class, tc.machine, textSection(code))))
				Expect(err).NotTo(HaveOccurred())
				Expect(bin.Arch).To(Equal(tc.arch))

				bitness, err := bin.Bitness()
				Expect(err).NotTo(HaveOccurred())
				Expect(bitness).To(Equal(32))
			}
		})

		It("should keep the machine name of other architectures and reject them", func() {
			bin, err := featscan.ParseBinary(bytes.NewReader(buildELF(elf.ELFCLASS32, elf.EM_ARM, textSection(code))))
			Expect(err).NotTo(HaveOccurred())
			Expect(bin.Arch).To(Equal(featscan.Arch("EM_ARM")))

			_, err = bin.Bitness()
			Expect(errors.Is(err, featscan.ErrUnsupportedArch)).To(BeTrue())
		})

		It("should skip empty and non-executable sections", func() {
			bin, err := featscan.ParseBinary(bytes.NewReader(buildELF(elf.ELFCLASS64, elf.EM_X86_64,
				textSection(nil),
				dataSection(code),
			)))
			Expect(err).NotTo(HaveOccurred())
			Expect(bin.Segments).To(BeEmpty())
		})
	})

	Context("with a PE file", func() {
		It("should report the code section trimmed to its virtual size", func() {
			data := buildPE(pe.IMAGE_FILE_MACHINE_AMD64, code)
			bin, err := featscan.ParseBinary(bytes.NewReader(data))
			Expect(err).NotTo(HaveOccurred())
			Expect(bin.Format).To(Equal(featscan.FormatPE))
			Expect(bin.Arch).To(Equal(featscan.ArchX86_64))
			Expect(bin.Segments).To(Equal([]featscan.Segment{
				{Name: ".text", Offset: 0x200, Size: uint64(len(code))},
			}))
		})

		It("should report i386 images", func() {
			bin, err := featscan.ParseBinary(bytes.NewReader(buildPE(pe.IMAGE_FILE_MACHINE_I386, code)))
			Expect(err).NotTo(HaveOccurred())
			Expect(bin.Arch).To(Equal(featscan.ArchI386))
		})
	})

	Context("with a Mach-O file", func() {
		It("should report sections holding instructions", func() {
			bin, err := featscan.ParseBinary(bytes.NewReader(buildMachO(macho.CpuAmd64, code)))
			Expect(err).NotTo(HaveOccurred())
			Expect(bin.Format).To(Equal(featscan.FormatMachO))
			Expect(bin.Arch).To(Equal(featscan.ArchX86_64))
			Expect(bin.Segments).To(Equal([]featscan.Segment{
				{Name: "__text", Offset: 0x100, Size: uint64(len(code))},
			}))
		})

		It("should keep the CPU name of other architectures", func() {
			bin, err := featscan.ParseBinary(bytes.NewReader(buildMachO(macho.CpuArm64, code)))
			Expect(err).NotTo(HaveOccurred())
			Expect(bin.Arch).To(Equal(featscan.Arch("CpuArm64")))
		})
	})

	Context("with an unknown file", func() {
		It("should return ErrUnsupportedFormat", func() {
			for _, data := range [][]byte{nil, []byte("not a binary"), {0x7f, 'E', 'L'}} {
				_, err := featscan.ParseBinary(bytes.NewReader(data))
				Expect(errors.Is(err, featscan.ErrUnsupportedFormat)).To(BeTrue(), "data %q", data)
			}
		})

		It("should wrap parse errors of truncated ELF files", func() {
			data := buildELF(elf.ELFCLASS64, elf.EM_X86_64, textSection(code))
			_, err := featscan.ParseBinary(bytes.NewReader(data[:32]))
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("failed to parse ELF file"))
		})
	})
})
