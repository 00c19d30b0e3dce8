package rom

import (
	"encoding/binary"
	"fmt"
)

// CalculateChecksum sums the ROM data following the copier header as 16 bit
// little endian words. A trailing odd byte is added as is.
func CalculateChecksum(data []byte, smcOffset int) (checksum, complement uint16) {
	var sum uint32
	payload := data[smcOffset:]
	for i := 0; i < len(payload); i += 2 {
		word := uint32(payload[i])
		if i+1 < len(payload) {
			word |= uint32(payload[i+1]) << 8
		}
		sum = (sum + word) & 0xFFFF
	}
	checksum = uint16(sum)
	return checksum, checksum ^ 0xFFFF
}

// UpdateChecksum recalculates the checksum of the image and writes it with
// its complement into the detected header. It returns the new checksum.
func (i *Image) UpdateChecksum() (uint16, error) {
	header, err := i.Header()
	if err != nil {
		return 0, fmt.Errorf("reading header: %w", err)
	}
	base := header.HeaderOffset

	checksum, complement := CalculateChecksum(i.data, header.SMCOffset)
	binary.LittleEndian.PutUint16(i.data[base+checksumComplementOffset:], complement)
	binary.LittleEndian.PutUint16(i.data[base+checksumOffset:], checksum)
	i.invalidate()
	return checksum, nil
}
