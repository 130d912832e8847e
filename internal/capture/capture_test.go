package capture

import "testing"

func TestOpenOfflineMissingFileReturnsError(t *testing.T) {
	if _, err := OpenOffline("testdata/does-not-exist.pcap", ""); err == nil {
		t.Error("expected an error opening a nonexistent capture file")
	}
}

func TestOpenLiveMissingDeviceReturnsError(t *testing.T) {
	if _, err := OpenLive("pedump-test-nonexistent-device0", 65535, ""); err == nil {
		t.Error("expected an error opening a nonexistent live device")
	}
}
