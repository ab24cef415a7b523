package snr

import "fmt"

// Engine commands share the instruction stream with VM instructions but are
// handed to the game engine instead of being executed by the VM itself.

// Exit stops the VM when Arg1 is zero; a nonzero Arg1 makes it a no-op.
type Exit struct {
	Arg1 uint8
	Arg2 NumberSpec
}

func (c *Exit) Encode(w *Writer) error {
	w.U8(0x00)
	w.U8(c.Arg1)
	return c.Arg2.encode(w)
}

// SGet reads a persistent storage slot into Dest.
type SGet struct {
	Dest Register
	Slot NumberSpec
}

func (c *SGet) Encode(w *Writer) error {
	w.U8(0x81)
	w.U16(uint16(c.Dest))
	return c.Slot.encode(w)
}

// SSet writes a value to a persistent storage slot.
type SSet struct {
	Slot  NumberSpec
	Value NumberSpec
}

func (c *SSet) Encode(w *Writer) error {
	w.U8(0x82)
	if err := c.Slot.encode(w); err != nil {
		return err
	}
	return c.Value.encode(w)
}

// Wait delays execution for Amount ticks. When Interruptable, the advance
// button skips the wait.
type Wait struct {
	Interruptable bool
	Amount        NumberSpec
}

func (c *Wait) Encode(w *Writer) error {
	w.U8(0x83)
	w.U8(encodeBool(c.Interruptable))
	return c.Amount.encode(w)
}

// MsgInit sets the messagebox style and text layout.
type MsgInit struct {
	Style NumberSpec
}

func (c *MsgInit) Encode(w *Writer) error {
	w.U8(0x85)
	return c.Style.encode(w)
}

// MsgSet shows a message. MsgID marks seen messages in the backlog and is
// 24-bit on the wire. When NoWait, execution continues while the message
// plays; MsgWait can then synchronize with it.
type MsgSet struct {
	MsgID  uint32
	NoWait bool
	Text   string
}

func (c *MsgSet) Encode(w *Writer) error {
	if c.MsgID > 0xffffff {
		return fmt.Errorf("message id out of 24-bit range: %d", c.MsgID)
	}
	w.U8(0x86)
	w.U8(uint8(c.MsgID))
	w.U8(uint8(c.MsgID >> 8))
	w.U8(uint8(c.MsgID >> 16))
	w.U8(encodeBool(c.NoWait))
	return encodeString(w, c.Text)
}

// MsgWait waits for the message to reach a signal; -1 waits for the whole
// message.
type MsgWait struct {
	SignalNum NumberSpec
}

func (c *MsgWait) Encode(w *Writer) error {
	w.U8(0x87)
	return c.SignalNum.encode(w)
}

// MsgSignal signals the message's synchronization point.
type MsgSignal struct{}

func (c *MsgSignal) Encode(w *Writer) error {
	w.U8(0x88)
	return nil
}

// MsgClose closes the messagebox, optionally waiting for the close
// animation.
type MsgClose struct {
	Wait bool
}

func (c *MsgClose) Encode(w *Writer) error {
	w.U8(0x8a)
	w.U8(encodeBool(c.Wait))
	return nil
}

// BgmPlay starts a background music track.
type BgmPlay struct {
	DataID     NumberSpec
	FadeInTime NumberSpec
	NoRepeat   NumberSpec
	Volume     NumberSpec
}

func (c *BgmPlay) Encode(w *Writer) error {
	w.U8(0x90)
	for _, n := range []NumberSpec{c.DataID, c.FadeInTime, c.NoRepeat, c.Volume} {
		if err := n.encode(w); err != nil {
			return err
		}
	}
	return nil
}

// BgmStop stops the current track.
type BgmStop struct {
	FadeOutTime NumberSpec
}

func (c *BgmStop) Encode(w *Writer) error {
	w.U8(0x91)
	return c.FadeOutTime.encode(w)
}

// BgmVol changes the current track's volume.
type BgmVol struct {
	Volume     NumberSpec
	FadeInTime NumberSpec
}

func (c *BgmVol) Encode(w *Writer) error {
	w.U8(0x92)
	if err := c.Volume.encode(w); err != nil {
		return err
	}
	return c.FadeInTime.encode(w)
}

// SaveInfo sets the save description at the given level (0 scenario name,
// 1 chapter name).
type SaveInfo struct {
	Level NumberSpec
	Info  string
}

func (c *SaveInfo) Encode(w *Writer) error {
	w.U8(0xa0)
	if err := c.Level.encode(w); err != nil {
		return err
	}
	return encodeString(w, c.Info)
}

// AutoSave saves to the autosave slot.
type AutoSave struct{}

func (c *AutoSave) Encode(w *Writer) error {
	w.U8(0xa1)
	return nil
}

func encodeBool(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// Strings are encoded as a u16 byte length including a NUL terminator,
// followed by the UTF-8 bytes and the NUL.
func encodeString(w *Writer, s string) error {
	if len(s)+1 > 0xffff {
		return fmt.Errorf("string too long: %d bytes", len(s))
	}
	w.U16(uint16(len(s) + 1))
	w.Raw([]byte(s))
	w.U8(0)
	return nil
}

func decodeString(r *Reader) string {
	n := int(r.U16())
	if n == 0 {
		r.fail("string length missing its terminator")
		return ""
	}
	b := r.Raw(n)
	if r.Err() != nil {
		return ""
	}
	if b[n-1] != 0 {
		r.fail("string is not NUL-terminated")
		return ""
	}
	return string(b[:n-1])
}

func decodeCommand(r *Reader, opcode uint8) (Instruction, error) {
	var instr Instruction
	switch opcode {
	case 0x00:
		c := &Exit{Arg1: r.U8()}
		c.Arg2 = decodeNumberSpec(r)
		instr = c
	case 0x81:
		c := &SGet{Dest: Register(r.U16())}
		c.Slot = decodeNumberSpec(r)
		instr = c
	case 0x82:
		c := &SSet{Slot: decodeNumberSpec(r)}
		c.Value = decodeNumberSpec(r)
		instr = c
	case 0x83:
		c := &Wait{Interruptable: r.U8() != 0}
		c.Amount = decodeNumberSpec(r)
		instr = c
	case 0x85:
		instr = &MsgInit{Style: decodeNumberSpec(r)}
	case 0x86:
		c := &MsgSet{}
		b0, b1, b2 := uint32(r.U8()), uint32(r.U8()), uint32(r.U8())
		c.MsgID = b0 | b1<<8 | b2<<16
		c.NoWait = r.U8() != 0
		c.Text = decodeString(r)
		instr = c
	case 0x87:
		instr = &MsgWait{SignalNum: decodeNumberSpec(r)}
	case 0x88:
		instr = &MsgSignal{}
	case 0x8a:
		instr = &MsgClose{Wait: r.U8() != 0}
	case 0x90:
		c := &BgmPlay{}
		c.DataID = decodeNumberSpec(r)
		c.FadeInTime = decodeNumberSpec(r)
		c.NoRepeat = decodeNumberSpec(r)
		c.Volume = decodeNumberSpec(r)
		instr = c
	case 0x91:
		instr = &BgmStop{FadeOutTime: decodeNumberSpec(r)}
	case 0x92:
		c := &BgmVol{Volume: decodeNumberSpec(r)}
		c.FadeInTime = decodeNumberSpec(r)
		instr = c
	case 0xa0:
		c := &SaveInfo{Level: decodeNumberSpec(r)}
		c.Info = decodeString(r)
		instr = c
	case 0xa1:
		instr = &AutoSave{}
	default:
		return nil, fmt.Errorf("offset 0x%x: unknown opcode 0x%02x", r.Pos()-1, opcode)
	}
	return instr, r.Err()
}
