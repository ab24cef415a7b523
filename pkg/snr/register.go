// Package snr implements the binary scenario format consumed by the VM:
// registers, variable-width number operands, RPN expressions, instructions
// and the file header. Encoding and decoding are exact inverses so a decoded
// file re-encodes byte for byte.
package snr

import (
	"fmt"
	"strconv"
	"strings"
)

// Register addresses one VM memory cell. The raw u16 encodes regular
// registers $v0..$v4095 as 0x0000..0x0fff and argument registers
// $a0..$a4095 as 0x1000..0x1fff.
type Register uint16

const (
	MaxRegisterIndex = 0xfff
	argumentBit      = 0x1000

	// NumArgRegisters is the calling convention limit: a call passes at
	// most 16 arguments, bound to $a0..$a15.
	NumArgRegisters = 16
)

func RegularRegister(index int) (Register, error) {
	if index < 0 || index > MaxRegisterIndex {
		return 0, fmt.Errorf("regular register index out of range: %d", index)
	}
	return Register(index), nil
}

func ArgumentRegister(index int) (Register, error) {
	if index < 0 || index > MaxRegisterIndex {
		return 0, fmt.Errorf("argument register index out of range: %d", index)
	}
	return Register(argumentBit | index), nil
}

func (r Register) IsArgument() bool { return r&argumentBit != 0 }

func (r Register) Index() int { return int(r &^ argumentBit) }

func (r Register) String() string {
	if r.IsArgument() {
		return "$a" + strconv.Itoa(r.Index())
	}
	return "$v" + strconv.Itoa(r.Index())
}

// ParseRegister parses the assembly spelling, e.g. "$v0" or "$a15".
func ParseRegister(s string) (Register, error) {
	if !strings.HasPrefix(s, "$") || len(s) < 3 {
		return 0, fmt.Errorf("malformed register %q", s)
	}
	index, err := strconv.Atoi(s[2:])
	if err != nil || index < 0 || index > MaxRegisterIndex {
		return 0, fmt.Errorf("register index out of range in %q", s)
	}
	switch s[1] {
	case 'v':
		return RegularRegister(index)
	case 'a':
		return ArgumentRegister(index)
	}
	return 0, fmt.Errorf("unknown register bank in %q", s)
}
