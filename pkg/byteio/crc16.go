/*
NAME
  crc16.go - CRC-16/XMODEM, used by HCA headers and frames.

AUTHOR
  Trek Hopton <trek@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package byteio

// crc16Table is the CRC-16/XMODEM table for polynomial 0x1021 (no input or
// output reflection, initial value 0), built once at package init.
var crc16Table = crc16MakeTable(0x1021)

func crc16MakeTable(poly uint16) *[256]uint16 {
	var t [256]uint16
	for i := range t {
		crc := uint16(i) << 8
		for j := 0; j < 8; j++ {
			if crc&0x8000 != 0 {
				crc = (crc << 1) ^ poly
			} else {
				crc <<= 1
			}
		}
		t[i] = crc
	}
	return &t
}

// CRC16 computes the CRC-16/XMODEM checksum over b.
func CRC16(b []byte) uint16 {
	var crc uint16
	for _, v := range b {
		crc = (crc << 8) ^ crc16Table[byte(crc>>8)^v]
	}
	return crc
}
