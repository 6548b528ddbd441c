package featscan

import "errors"

var (
	// ErrNotAFile is returned when the analysis target is not a regular file.
	ErrNotAFile = errors.New("should target a file")

	// ErrUnsupportedArch is returned for binaries built for anything but x86.
	ErrUnsupportedArch = errors.New("unsupported architecture")

	// ErrNoText is returned when a binary has no executable sections.
	ErrNoText = errors.New("no 'text' sections found in the file")

	// ErrUnsupportedFormat is returned for files that are neither ELF, PE
	// nor Mach-O.
	ErrUnsupportedFormat = errors.New("unsupported binary format")

	// ErrUnsupportedBitness is returned when a decoder is requested for an
	// operating mode other than 32 or 64 bits.
	ErrUnsupportedBitness = errors.New("unsupported bitness")
)
