package tool

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// UDP4 unsupport multicast
func RejectUnsupportNetworkInterface(iface *net.Interface) bool {
	if iface.Flags&net.FlagUp == 0 {
		return true
	}
	if iface.Flags&net.FlagLoopback != 0 {
		return true
	}
	if iface.Flags&net.FlagPointToPoint != 0 {
		return true // utun / tun / vpn
	}
	if iface.Flags&net.FlagMulticast == 0 {
		return true
	}
	// reject no v4 ipaddress.
	ips, err := iface.Addrs()
	if err != nil {
		return true
	}
	for _, ip := range ips {
		if ipnet, ok := ip.(*net.IPNet); ok && ipnet.IP.To4() != nil && !ipnet.IP.IsLoopback() {
			return false
		}
	}
	return true
}

// MulticastInterfaces returns the interfaces SSDP sockets should bind to.
// selector is an interface name, or "*" / "" for every usable interface.
func MulticastInterfaces(selector string) ([]*net.Interface, error) {
	if selector != "" && selector != "*" {
		iface, err := net.InterfaceByName(selector)
		if err != nil {
			return nil, fmt.Errorf("failed to get network interface %s: %v", selector, err)
		}
		if RejectUnsupportNetworkInterface(iface) {
			return nil, fmt.Errorf("network interface %s is not supported", selector)
		}
		return []*net.Interface{iface}, nil
	}

	interfaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("failed to get network interfaces: %v", err)
	}
	var valid []*net.Interface
	for i := range interfaces {
		iface := &interfaces[i]
		// remove tun connections.
		if RejectUnsupportNetworkInterface(iface) {
			continue
		}
		valid = append(valid, iface)
	}
	if len(valid) == 0 {
		return nil, fmt.Errorf("no valid network interfaces found")
	}
	return valid, nil
}

// InterfaceIPv4 returns the first non-loopback IPv4 address of the interface.
func InterfaceIPv4(iface *net.Interface) (net.IP, bool) {
	addrs, err := iface.Addrs()
	if err != nil {
		return nil, false
	}
	for _, addr := range addrs {
		ipnet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		if ip := ipnet.IP.To4(); ip != nil && !ip.IsLoopback() {
			return ip, true
		}
	}
	return nil, false
}

// AdvertiseIPv4 picks the address renderers should fetch shared media from:
// the IPv4 of the selected interface, or of the first usable one.
func AdvertiseIPv4(selector string) (string, error) {
	interfaces, err := MulticastInterfaces(selector)
	if err != nil {
		return "", err
	}
	for _, iface := range interfaces {
		if ip, ok := InterfaceIPv4(iface); ok {
			return ip.String(), nil
		}
	}
	return "", fmt.Errorf("no usable local IPv4 addresses found")
}

func GetLocalIPv4Set() map[string]struct{} {
	result := make(map[string]struct{})

	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return result
	}

	for _, addr := range addrs {
		ipnet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}

		ip := ipnet.IP
		if ip == nil || ip.IsLoopback() {
			continue
		}

		ipv4 := ip.To4()
		if ipv4 == nil {
			continue
		}

		result[ipv4.String()] = struct{}{}
	}

	return result
}

// IsAddrNotAvailableError detects address-not-available errors across platforms.
func IsAddrNotAvailableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.EADDRNOTAVAIL) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "can't assign requested address") ||
		strings.Contains(msg, "cannot assign requested address") ||
		strings.Contains(msg, "address not available")
}
