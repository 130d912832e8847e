package anon

import "testing"

func TestMaskForcesFirstOctetToTen(t *testing.T) {
	k := Key(0xdeadbeef)
	ip := [4]byte{192, 168, 1, 42}

	out := k.Mask(ip)

	if out[0] != 10 {
		t.Errorf("expected first octet to be 10, got %d", out[0])
	}
}

func TestMaskIsDeterministicForFixedKey(t *testing.T) {
	k := Key(12345)
	ip := [4]byte{1, 2, 3, 4}

	a := k.Mask(ip)
	b := k.Mask(ip)

	if a != b {
		t.Errorf("Mask must be a pure function of (key, ip): got %v and %v", a, b)
	}
}

func TestMaskVariesWithKey(t *testing.T) {
	ip := [4]byte{8, 8, 8, 8}

	a := Key(1).Mask(ip)
	b := Key(2).Mask(ip)

	if a == b {
		t.Error("expected different keys to produce different masked addresses")
	}
}

func TestNewKeyVaries(t *testing.T) {
	seen := map[Key]bool{}
	for i := 0; i < 8; i++ {
		seen[NewKey()] = true
	}

	if len(seen) < 2 {
		t.Error("expected NewKey to produce varying values across calls")
	}
}
