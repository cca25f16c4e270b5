// Package netutil derives coarse network-block identifiers from client
// addresses. Blocks are used for correlation only; the raw IP is stored
// alongside.
package netutil

import (
	"fmt"
	"net"
)

// DeriveNetBlock maps an address to its correlation block: /24 for IPv4,
// /48 for IPv6. Unparseable input yields an empty block rather than an
// error; correlation simply skips it.
func DeriveNetBlock(ip string) string {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return ""
	}

	if v4 := parsed.To4(); v4 != nil {
		masked := v4.Mask(net.CIDRMask(24, 32))
		return fmt.Sprintf("%s/24", masked)
	}

	masked := parsed.Mask(net.CIDRMask(48, 128))
	return fmt.Sprintf("%s/48", masked)
}
