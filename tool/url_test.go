package tool

import "testing"

// TestHostOfURL tests bare-host extraction from the strings SSDP hands us
func TestHostOfURL(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"http://192.168.1.20:49152/description.xml", "192.168.1.20"},
		{"http://192.168.1.20/description.xml", "192.168.1.20"},
		{"http://tv.local:8080/desc?x=1", "tv.local"},
		{"192.168.1.7:9999", "192.168.1.7"},
		{"192.168.1.7", "192.168.1.7"},
		{"http://[fe80::1]:8080/desc.xml", "fe80::1"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := HostOfURL(tt.raw); got != tt.want {
			t.Errorf("HostOfURL(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

// TestBuildMediaShareURL tests the URL renderers stream shared files from
func TestBuildMediaShareURL(t *testing.T) {
	got := BuildMediaShareURL("192.168.1.5", 8738, "abc123")
	want := "http://192.168.1.5:8738/media/abc123"
	if got != want {
		t.Errorf("BuildMediaShareURL = %q, want %q", got, want)
	}
}

// TestBuildControlPageURL tests the address baked into the pairing QR code
func TestBuildControlPageURL(t *testing.T) {
	got := BuildControlPageURL("192.168.1.5", 8738)
	want := "http://192.168.1.5:8738/"
	if got != want {
		t.Errorf("BuildControlPageURL = %q, want %q", got, want)
	}
}
