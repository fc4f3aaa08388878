package nbt

import (
	"fmt"
	"unicode/utf16"

	"github.com/reallyoldfogie/mcpr-studio/wire"
)

// NBT strings use Java's modified UTF-8: U+0000 is written as C0 80 and
// supplementary characters as two three-byte surrogates.

func decodeMUTF8(b []byte) (string, error) {
	ascii := true
	for _, c := range b {
		if c == 0 || c >= 0x80 {
			ascii = false
			break
		}
	}
	if ascii {
		return string(b), nil
	}

	units := make([]uint16, 0, len(b))
	for i := 0; i < len(b); {
		c := b[i]
		switch {
		case c < 0x80 && c != 0:
			units = append(units, uint16(c))
			i++
		case c&0xE0 == 0xC0:
			if i+1 >= len(b) || b[i+1]&0xC0 != 0x80 {
				return "", fmt.Errorf("%w: bad modified UTF-8 at byte %d", wire.ErrInvalidEncoding, i)
			}
			units = append(units, uint16(c&0x1F)<<6|uint16(b[i+1]&0x3F))
			i += 2
		case c&0xF0 == 0xE0:
			if i+2 >= len(b) || b[i+1]&0xC0 != 0x80 || b[i+2]&0xC0 != 0x80 {
				return "", fmt.Errorf("%w: bad modified UTF-8 at byte %d", wire.ErrInvalidEncoding, i)
			}
			units = append(units, uint16(c&0x0F)<<12|uint16(b[i+1]&0x3F)<<6|uint16(b[i+2]&0x3F))
			i += 3
		default:
			return "", fmt.Errorf("%w: bad modified UTF-8 lead byte 0x%02x", wire.ErrInvalidEncoding, c)
		}
	}
	for i := 0; i < len(units); i++ {
		u := units[i]
		switch {
		case u >= 0xD800 && u < 0xDC00:
			if i+1 >= len(units) || units[i+1] < 0xDC00 || units[i+1] > 0xDFFF {
				return "", fmt.Errorf("%w: unpaired surrogate in string", wire.ErrInvalidEncoding)
			}
			i++
		case u >= 0xDC00 && u <= 0xDFFF:
			return "", fmt.Errorf("%w: unpaired surrogate in string", wire.ErrInvalidEncoding)
		}
	}
	return string(utf16.Decode(units)), nil
}

func appendMUTF8(dst []byte, s string) []byte {
	for _, r := range s {
		switch {
		case r != 0 && r < 0x80:
			dst = append(dst, byte(r))
		case r < 0x800:
			dst = append(dst, 0xC0|byte(r>>6), 0x80|byte(r&0x3F))
		case r < 0x10000:
			dst = append(dst, 0xE0|byte(r>>12), 0x80|byte(r>>6&0x3F), 0x80|byte(r&0x3F))
		default:
			hi, lo := utf16.EncodeRune(r)
			for _, u := range []rune{hi, lo} {
				dst = append(dst, 0xE0|byte(u>>12), 0x80|byte(u>>6&0x3F), 0x80|byte(u&0x3F))
			}
		}
	}
	return dst
}

func mutf8Len(s string) int {
	n := 0
	for _, r := range s {
		switch {
		case r != 0 && r < 0x80:
			n++
		case r < 0x800:
			n += 2
		case r < 0x10000:
			n += 3
		default:
			n += 6
		}
	}
	return n
}
