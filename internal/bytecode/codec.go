package bytecode

import (
	"fmt"
	"io"
	"math"
	"slices"

	"github.com/icza/bitio"
)

// Container layout (.ionbc), bit-packed, most significant bit first:
//
//	magic      32  "IONB"
//	version     8
//	function    1
//	name       16 + bytes
//	nargs      16
//	nlocals    16
//	code       32 + bytes
//	consts     16 × (kind 3, payload)
//	atoms      16 × (32 + bytes)
//	notes      32 × (pc 32, type 4, count 4, count × offset 32)
//
// The stream is zero-padded to a byte boundary on close.

const (
	containerMagic   = 0x494f4e42
	containerVersion = 1
	maxNoteOffsets   = 1<<4 - 1
	maxChunk         = 1 << 24
)

// WriteScript encodes s into w.
func WriteScript(w io.Writer, s *Script) error {
	bw := bitio.NewWriter(w)

	bw.TryWriteBits(containerMagic, 32)
	bw.TryWriteByte(containerVersion)
	bw.TryWriteBool(s.Function)
	writeString(bw, s.Name, 16)
	bw.TryWriteBits(uint64(s.NArgs), 16)
	bw.TryWriteBits(uint64(s.NLocals), 16)
	bw.TryWriteBits(uint64(len(s.Code)), 32)
	bw.TryWrite(s.Code)

	bw.TryWriteBits(uint64(len(s.Consts)), 16)
	for _, c := range s.Consts {
		bw.TryWriteBits(uint64(c.Kind()), 3)
		switch c.Kind() {
		case KindBoolean:
			bw.TryWriteBool(c.Bool())
		case KindInt32:
			bw.TryWriteBits(uint64(uint32(c.Int32())), 32)
		case KindDouble:
			bw.TryWriteBits(math.Float64bits(c.Double()), 64)
		case KindString:
			writeString(bw, c.Str(), 32)
		}
	}

	bw.TryWriteBits(uint64(len(s.Atoms)), 16)
	for _, a := range s.Atoms {
		writeString(bw, a, 32)
	}

	pcs := make([]int, 0, len(s.Notes))
	for pc := range s.Notes {
		pcs = append(pcs, pc)
	}
	slices.Sort(pcs)
	bw.TryWriteBits(uint64(len(pcs)), 32)
	for _, pc := range pcs {
		n := s.Notes[pc]
		if len(n.Offsets) > maxNoteOffsets {
			return fmt.Errorf("source note at pc %d has too many offsets", pc)
		}
		bw.TryWriteBits(uint64(pc), 32)
		bw.TryWriteBits(uint64(n.Type), 4)
		bw.TryWriteBits(uint64(len(n.Offsets)), 4)
		for _, off := range n.Offsets {
			bw.TryWriteBits(uint64(uint32(int32(off))), 32)
		}
	}

	if bw.TryError != nil {
		return fmt.Errorf("failed to write script %q: %w", s.Name, bw.TryError)
	}
	return bw.Close()
}

// ReadScript decodes a script previously written by WriteScript.
func ReadScript(r io.Reader) (*Script, error) {
	br := bitio.NewReader(r)

	if magic := br.TryReadBits(32); br.TryError == nil && magic != containerMagic {
		return nil, fmt.Errorf("not a script container (magic %#x)", magic)
	}
	if version := br.TryReadByte(); br.TryError == nil && version != containerVersion {
		return nil, fmt.Errorf("unsupported container version %d", version)
	}

	s := &Script{Notes: make(map[int]SrcNote)}
	s.Function = br.TryReadBool()
	s.Name = readString(br, 16)
	s.NArgs = int(br.TryReadBits(16))
	s.NLocals = int(br.TryReadBits(16))
	s.Code = readBytes(br, int(br.TryReadBits(32)))

	nconsts := int(br.TryReadBits(16))
	for i := 0; i < nconsts && br.TryError == nil; i++ {
		switch kind := ValueKind(br.TryReadBits(3)); kind {
		case KindUndefined:
			s.Consts = append(s.Consts, Undefined())
		case KindNull:
			s.Consts = append(s.Consts, Null())
		case KindBoolean:
			s.Consts = append(s.Consts, Boolean(br.TryReadBool()))
		case KindInt32:
			s.Consts = append(s.Consts, Int32(int32(uint32(br.TryReadBits(32)))))
		case KindDouble:
			s.Consts = append(s.Consts, Double(math.Float64frombits(br.TryReadBits(64))))
		case KindString:
			s.Consts = append(s.Consts, String(readString(br, 32)))
		default:
			return nil, fmt.Errorf("constant %d has unknown kind %d", i, kind)
		}
	}

	natoms := int(br.TryReadBits(16))
	for i := 0; i < natoms && br.TryError == nil; i++ {
		s.Atoms = append(s.Atoms, readString(br, 32))
	}

	nnotes := int(br.TryReadBits(32))
	for i := 0; i < nnotes && br.TryError == nil; i++ {
		pc := int(br.TryReadBits(32))
		note := SrcNote{Type: NoteType(br.TryReadBits(4))}
		count := int(br.TryReadBits(4))
		for j := 0; j < count; j++ {
			note.Offsets = append(note.Offsets, int(int32(uint32(br.TryReadBits(32)))))
		}
		if note.Type >= noteLimit {
			return nil, fmt.Errorf("source note at pc %d has unknown type %d", pc, note.Type)
		}
		s.Notes[pc] = note
	}

	if br.TryError != nil {
		return nil, fmt.Errorf("failed to read script: %w", br.TryError)
	}
	return s, nil
}

func writeString(bw *bitio.Writer, s string, lenBits uint8) {
	bw.TryWriteBits(uint64(len(s)), lenBits)
	bw.TryWrite([]byte(s))
}

func readString(br *bitio.Reader, lenBits uint8) string {
	return string(readBytes(br, int(br.TryReadBits(lenBits))))
}

func readBytes(br *bitio.Reader, n int) []byte {
	if br.TryError != nil {
		return nil
	}
	if n > maxChunk {
		br.TryError = fmt.Errorf("chunk of %d bytes exceeds container limit", n)
		return nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(br, buf); err != nil {
		br.TryError = err
		return nil
	}
	return buf
}
