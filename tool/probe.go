package tool

import (
	"time"

	probing "github.com/prometheus-community/pro-bing"
)

// QuickICMPProbe sends a single echo request and reports whether the host
// answered within the timeout. Used to double-check a renderer that went
// silent on SSDP before it is evicted; unprivileged mode so no raw socket
// capability is needed.
func QuickICMPProbe(host string, timeout time.Duration) bool {
	pinger, err := probing.NewPinger(host)
	if err != nil {
		DefaultLogger.Debugf("ICMP probe setup failed for %s: %v", host, err)
		return false
	}
	pinger.Count = 1
	pinger.Timeout = timeout
	pinger.SetPrivileged(false)
	if err := pinger.Run(); err != nil {
		DefaultLogger.Debugf("ICMP probe failed for %s: %v", host, err)
		return false
	}
	return pinger.Statistics().PacketsRecv > 0
}
