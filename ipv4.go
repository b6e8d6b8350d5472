package ddns

import (
	"net/netip"
	"strings"
)

// ValidIPv4 reports whether s is a dotted-quad IPv4 address with nothing before or after it.
func ValidIPv4(s string) bool {
	_, ok := ParseIPv4(s)
	return ok
}

// ParseIPv4 parses a strict dotted-quad address.
// Each octet is one to three decimal digits with a value of at most 255.
// Unlike netip.ParseAddr, leading zeros are accepted ("010" is 10) because some IP services pad octets.
func ParseIPv4(s string) (netip.Addr, bool) {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return netip.Addr{}, false
	}
	var octets [4]byte
	for i, p := range parts {
		if len(p) == 0 || len(p) > 3 {
			return netip.Addr{}, false
		}
		n := 0
		for _, c := range []byte(p) {
			if c < '0' || c > '9' {
				return netip.Addr{}, false
			}
			n = n*10 + int(c-'0')
		}
		if n > 255 {
			return netip.Addr{}, false
		}
		octets[i] = byte(n)
	}
	return netip.AddrFrom4(octets), true
}
