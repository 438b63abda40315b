package services

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// PixPayee identifies who receives PIX payments.
type PixPayee struct {
	Key  string
	Name string
	City string
}

// BuildPixCode renders a static "copia e cola" BR Code for amount. The
// payload is EMV TLV terminated by a CRC16/CCITT-FALSE checksum.
func BuildPixCode(payee PixPayee, amount float64, txid string) string {
	var b strings.Builder
	b.WriteString(tlv("00", "01"))
	b.WriteString(tlv("26", tlv("00", "br.gov.bcb.pix")+tlv("01", payee.Key)))
	b.WriteString(tlv("52", "0000"))
	b.WriteString(tlv("53", "986"))
	if amount > 0 {
		b.WriteString(tlv("54", fmt.Sprintf("%.2f", amount)))
	}
	b.WriteString(tlv("58", "BR"))
	b.WriteString(tlv("59", truncate(payee.Name, 25)))
	b.WriteString(tlv("60", truncate(payee.City, 15)))
	b.WriteString(tlv("62", tlv("05", truncate(txid, 25))))
	b.WriteString("6304")
	return b.String() + fmt.Sprintf("%04X", crc16(b.String()))
}

func tlv(id, value string) string {
	return fmt.Sprintf("%s%02d%s", id, len(value), value)
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func crc16(s string) uint16 {
	crc := uint16(0xFFFF)
	for i := 0; i < len(s); i++ {
		crc ^= uint16(s[i]) << 8
		for bit := 0; bit < 8; bit++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
