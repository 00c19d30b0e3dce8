package mapper

import (
	"fmt"
	"strconv"
	"strings"
)

// Pointer is a 24 bit SNES long address in bank:address form.
type Pointer uint32

// NewPointer returns the pointer for the given bank and address.
func NewPointer(bank uint8, addr uint16) Pointer {
	return Pointer(uint32(bank)<<16 | uint32(addr))
}

// Bank returns the bank byte of the pointer.
func (p Pointer) Bank() uint8 {
	return uint8(p >> 16)
}

// Address returns the 16 bit address inside the bank.
func (p Pointer) Address() uint16 {
	return uint16(p)
}

// String returns the pointer in $BB:AAAA notation.
func (p Pointer) String() string {
	return fmt.Sprintf("$%02X:%04X", p.Bank(), p.Address())
}

// ParsePointer parses a pointer in one of the forms "$C0:1234", "C0:1234",
// "$C01234" or "0xC01234".
func ParsePointer(s string) (Pointer, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "$")
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")

	if bankPart, addrPart, ok := strings.Cut(s, ":"); ok {
		bank, err := strconv.ParseUint(bankPart, 16, 8)
		if err != nil {
			return 0, fmt.Errorf("parsing bank '%s': %w", bankPart, err)
		}
		addr, err := strconv.ParseUint(addrPart, 16, 16)
		if err != nil {
			return 0, fmt.Errorf("parsing address '%s': %w", addrPart, err)
		}
		return NewPointer(uint8(bank), uint16(addr)), nil
	}

	value, err := strconv.ParseUint(s, 16, 24)
	if err != nil {
		return 0, fmt.Errorf("parsing pointer '%s': %w", s, err)
	}
	return Pointer(value), nil
}

// SplitOffset splits a raw 24 bit value into bank and address the same way
// sprite pointers are stored in the location cache.
func SplitOffset(offset int) (uint8, uint16) {
	return uint8(offset >> 16), uint16(offset)
}
