// Package textenc normalizes command input to UTF-8. The shell runs
// either in UTF-8 mode (passthrough), 8-bit mode (latin-1 transformed
// to UTF-8), or autodetects from the locale environment.
package textenc

import (
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding/charmap"

	"confsh/internal/config"
)

// DetectUTF8 reports whether the locale environment selects a UTF-8
// codeset. Checked in the usual precedence order.
func DetectUTF8() bool {
	for _, key := range []string{"LC_ALL", "LC_CTYPE", "LANG"} {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		upper := strings.ToUpper(v)
		return strings.Contains(upper, "UTF-8") || strings.Contains(upper, "UTF8")
	}
	return false
}

// Resolve turns the configured encoding into a concrete one,
// consulting the locale for auto mode.
func Resolve(enc config.Encoding) config.Encoding {
	if enc != config.EncodingAuto {
		return enc
	}
	if DetectUTF8() {
		return config.EncodingUTF8
	}
	return config.Encoding8Bit
}

// Reader wraps r so downstream line handling always sees UTF-8.
func Reader(r io.Reader, enc config.Encoding) io.Reader {
	if Resolve(enc) == config.Encoding8Bit {
		return charmap.ISO8859_1.NewDecoder().Reader(r)
	}
	return r
}
