package snr

import (
	"bytes"
	"fmt"
)

var magic = []byte("SNR ")

// HeaderSize is the fixed size of the header region; code starts right
// after it unless the header says otherwise.
const HeaderSize = 0x80

// Header is the scenario file header. The numbered fields are engine
// metadata carried through as-is; the bytes between the fixed fields and
// CodeOffset are zero.
type Header struct {
	Size              uint32
	DialogueLineCount uint32
	Unk2              uint32
	Unk3              uint32
	Unk4              uint32
	Unk5              uint32
	Unk6              uint32
	CodeOffset        uint32
}

// NewHeader returns a header for a fresh file with code at the default
// offset. Size is filled in by layout.
func NewHeader() Header {
	return Header{CodeOffset: HeaderSize}
}

func (h Header) Encode(w *Writer) {
	w.Raw(magic)
	w.U32(h.Size)
	w.U32(h.DialogueLineCount)
	w.U32(h.Unk2)
	w.U32(h.Unk3)
	w.U32(h.Unk4)
	w.U32(h.Unk5)
	w.U32(h.Unk6)
	w.U32(h.CodeOffset)
	for w.Len()%HeaderSize != 0 {
		w.U8(0)
	}
}

func DecodeHeader(r *Reader) (Header, error) {
	var h Header
	m := r.Raw(4)
	if r.Err() != nil {
		return h, r.Err()
	}
	if !bytes.Equal(m, magic) {
		return h, fmt.Errorf("bad magic %q, want %q", m, magic)
	}
	h.Size = r.U32()
	h.DialogueLineCount = r.U32()
	h.Unk2 = r.U32()
	h.Unk3 = r.U32()
	h.Unk4 = r.U32()
	h.Unk5 = r.U32()
	h.Unk6 = r.U32()
	h.CodeOffset = r.U32()
	if r.Err() != nil {
		return h, r.Err()
	}
	if h.CodeOffset < HeaderSize {
		return h, fmt.Errorf("code offset 0x%x overlaps the header", h.CodeOffset)
	}
	return h, nil
}
