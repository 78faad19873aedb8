package util

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"unicode"
)

func ToPrintableString(b []byte) string {
	sz := len(b)
	if sz == 0 {
		return ""
	}
	buf := make([]byte, sz)
	for i := 0; i < sz; i++ {
		if b[i] < 32 || b[i] > 126 {
			buf[i] = '.'
		} else {
			buf[i] = b[i]
		}
	}
	return string(buf)
}

// FromHexString accepts hex with optional 0x prefix, whitespace and ':' separators.
func FromHexString(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == ':' {
			return -1
		}
		return r
	}, s)
	return hex.DecodeString(s)
}

func HexDump(w io.Writer, data []byte) {

	fmt.Fprintf(w, "   %9X  ", 0)
	for i := 1; i < 16; i++ {
		fmt.Fprintf(w, "%X  ", i)
	}

	for i := 0; i < 16; i++ {
		fmt.Fprintf(w, "%X", i)
	}
	fmt.Fprint(w, "\n")

	szData := len(data)
	start := 0
	end := 16
	for start < szData {
		if end > szData {
			end = szData
		}
		fmt.Fprintf(w, "%09X ", start)
		for j := start; j < end; j++ {
			fmt.Fprintf(w, "%02X ", data[j])
		}
		for j := (end - 1) % 16; j < 15; j++ {
			fmt.Fprint(w, "   ")
		}

		fmt.Fprint(w, " ")
		for j := start; j < end; j++ {
			v := data[j]
			if v < 128 && unicode.IsPrint(rune(v)) {
				fmt.Fprintf(w, "%c", v)
			} else {
				fmt.Fprint(w, ".")
			}
		}
		fmt.Fprint(w, "\n")
		start += 16
		end += 16
	}
}
