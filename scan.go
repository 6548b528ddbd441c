package featscan

import (
	"fmt"
	"io"
	"os"
)

// Mode selects what an analysis reports.
type Mode int

const (
	// ModeDetect lists the used features.
	ModeDetect Mode = iota
	// ModeStats counts instructions per feature.
	ModeStats
	// ModeDetails counts instructions per feature and mnemonic, and
	// operand registers.
	ModeDetails
)

func (m Mode) String() string {
	switch m {
	case ModeDetect:
		return "detect"
	case ModeStats:
		return "stats"
	case ModeDetails:
		return "details"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// Options configures an analysis run.
type Options struct {
	Mode        Mode
	Attribution Attribution
	Verbosity   Verbosity
	Color       bool
}

// ReadSeekerAt is a binary source that can be both parsed and streamed.
type ReadSeekerAt interface {
	io.ReadSeeker
	io.ReaderAt
}

// DecodeSegments reads each segment from r in order, decodes it with dec and
// feeds every decoded instruction, valid or not, to task. Decoding never
// crosses segment boundaries.
func DecodeSegments(r io.ReadSeeker, dec Decoder, segments []Segment, task Task) error {
	end, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return fmt.Errorf("failed to determine the file size: %w", err)
	}
	size := uint64(end)

	var buf []byte
	for _, s := range segments {
		// Headers are untrusted: never allocate past the end of the file.
		if s.Offset > size || s.Size > size-s.Offset {
			return fmt.Errorf("failed to read section %q: %w", s.Name, io.ErrUnexpectedEOF)
		}
		if _, err := r.Seek(int64(s.Offset), io.SeekStart); err != nil {
			return fmt.Errorf("failed to seek to section %q: %w", s.Name, err)
		}
		if uint64(cap(buf)) < s.Size {
			buf = make([]byte, s.Size)
		}
		buf = buf[:s.Size]
		if _, err := io.ReadFull(r, buf); err != nil {
			return fmt.Errorf("failed to read section %q: %w", s.Name, err)
		}
		for inst := range dec.Decode(buf) {
			task.Add(inst)
		}
	}
	return nil
}

// Classify decodes raw x86 machine code of the given bitness and feeds every
// instruction to task. It performs no I/O and works with any binary format.
func Classify(code []byte, bitness int, task Task) error {
	dec, err := NewX86Decoder(bitness)
	if err != nil {
		return err
	}
	for inst := range dec.Decode(code) {
		task.Add(inst)
	}
	return nil
}

// Analyze opens the binary at path, decodes its text sections and writes the
// report selected by opts to w.
func Analyze(path string, opts Options, w io.Writer) error {
	rep := NewReporter(w, opts.Verbosity, opts.Color)
	rep.FilePath(path)

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}
	if !fi.Mode().IsRegular() {
		return fmt.Errorf("%w: %s", ErrNotAFile, path)
	}
	return analyze(f, opts, rep)
}

// AnalyzeReader is Analyze over an already open binary.
func AnalyzeReader(r ReadSeekerAt, opts Options, w io.Writer) error {
	return analyze(r, opts, NewReporter(w, opts.Verbosity, opts.Color))
}

func analyze(r ReadSeekerAt, opts Options, rep *Reporter) error {
	bin, err := ParseBinary(r)
	if err != nil {
		return err
	}
	rep.Binary(bin)

	bitness, err := bin.Bitness()
	if err != nil {
		return err
	}
	if len(bin.Segments) == 0 {
		return ErrNoText
	}
	rep.Segments(bin.Segments)

	dec, err := NewX86Decoder(bitness)
	if err != nil {
		return err
	}

	switch opts.Mode {
	case ModeStats:
		task := NewCountTask(opts.Attribution)
		if err := DecodeSegments(r, dec, bin.Segments, task); err != nil {
			return err
		}
		features := task.Result()
		SortCounters(features)
		rep.CPUIDWarning(task.HasCPUID())
		rep.Stats(features)
	case ModeDetails:
		task := NewDetailTask(opts.Attribution)
		if err := DecodeSegments(r, dec, bin.Segments, task); err != nil {
			return err
		}
		details, registers := task.Result()
		SortDetails(details)
		SortCounters(registers)
		rep.CPUIDWarning(task.HasCPUID())
		rep.Details(details, registers)
	default:
		task := NewCountTask(opts.Attribution)
		if err := DecodeSegments(r, dec, bin.Segments, task); err != nil {
			return err
		}
		rep.CPUIDWarning(task.HasCPUID())
		rep.Detect(task.Result())
	}
	return rep.Err()
}
