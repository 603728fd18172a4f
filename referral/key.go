package referral

import (
	"net"
	"strconv"
	"strings"
)

// DomainKey derives the hierarchical key for a domain-form value
// (spec.md §4.4): strip the user portion of an email-style value if
// present, lowercase, and normalise the trailing dot.
func DomainKey(value string) string {
	if i := strings.LastIndex(value, "@"); i >= 0 {
		value = value[i+1:]
	}
	return strings.ToLower(strings.TrimSuffix(strings.TrimSpace(value), "."))
}

// NetworkKey derives the hierarchical key for an IPv4/IPv6
// prefix/length value (spec.md §4.4): unspecified length means
// maximum length, and bits beyond the mask are zeroed. The returned
// key carries the `networkPrefix` tag that routes it into the
// network subtree of Tree.
func NetworkKey(value string) (string, bool) {
	value = strings.TrimSpace(value)
	var ipStr string
	var bits = -1
	if i := strings.Index(value, "/"); i >= 0 {
		ipStr = value[:i]
		n, err := strconv.Atoi(value[i+1:])
		if err != nil {
			return "", false
		}
		bits = n
	} else {
		ipStr = value
	}
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return "", false
	}
	maxBits := 32
	if ip.To4() == nil {
		maxBits = 128
	} else {
		ip = ip.To4()
	}
	if bits < 0 {
		bits = maxBits
	}
	if bits > maxBits {
		return "", false
	}
	mask := net.CIDRMask(bits, maxBits)
	network := ip.Mask(mask)
	return networkPrefix + network.String() + "/" + strconv.Itoa(bits), true
}

// splitNetworkKey breaks a "network/bits" string into per-octet
// components covering the masked prefix, most-general (leftmost
// octet) first — the network analogue of reversed domain labels.
// Remaining partial-byte bits are folded into the last included
// octet since the tree's branching granularity is whole octets.
func splitNetworkKey(key string) []string {
	i := strings.LastIndex(key, "/")
	if i < 0 {
		return nil
	}
	ipStr, bitsStr := key[:i], key[i+1:]
	bits, err := strconv.Atoi(bitsStr)
	if err != nil {
		return nil
	}
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return nil
	}
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}
	octets := strings.Split(ip.String(), ".")
	if strings.Contains(ip.String(), ":") {
		octets = strings.Split(ip.String(), ":")
	}
	bytesPerLabel := 8 // bits per IPv4 octet or IPv6 hextet digit-group
	n := (bits + bytesPerLabel - 1) / bytesPerLabel
	if n > len(octets) {
		n = len(octets)
	}
	if n == 0 {
		return nil
	}
	return octets[:n]
}

func joinNetworkKey(labels []string) string {
	sep := "."
	if len(labels) > 0 && strings.Contains(labels[0], ":") {
		sep = ":"
	}
	bits := len(labels) * 8
	return strings.Join(labels, sep) + "/" + strconv.Itoa(bits)
}
