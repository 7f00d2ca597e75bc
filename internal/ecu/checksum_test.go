package ecu

import "testing"

func TestChecksum(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want byte
	}{
		{"empty", nil, 0x00},
		{"row0 read header", []byte{0x20, 0x05, 0x00, 0x10}, 0xCB},
		{"row1 read header", []byte{0x20, 0x05, 0x10, 0x10}, 0xBB},
		{"reset header", []byte{0x21, 0x04, 0x01, 0x00}, 0xDA},
		{"single byte", []byte{0x01}, 0xFF},
		{"wraps mod 256", []byte{0xFF, 0xFF, 0xFF}, 0x03},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Checksum(tt.data); got != tt.want {
				t.Errorf("Checksum(% X) = 0x%02X, want 0x%02X", tt.data, got, tt.want)
			}
		})
	}
}

// A frame that includes its own correct checksum must sum back to zero.
func TestChecksumRoundTrip(t *testing.T) {
	frames := [][]byte{
		{0x20, 0x05, 0x00, 0x10},
		{0x20, 0x05, 0x40, 0x10},
		{0x21, 0x04, 0x01, 0x00},
		{0x00, 0x13, 0x01, 0x02, 0x03},
	}
	for _, f := range frames {
		full := append(append([]byte(nil), f...), Checksum(f))
		if got := Checksum(full); got != 0x00 {
			t.Errorf("Checksum(frame+own crc) = 0x%02X, want 0x00 (frame % X)", got, f)
		}
	}
}

func TestChecksumStable(t *testing.T) {
	data := []byte{0x20, 0x05, 0x10, 0x10, 0xAB, 0x00, 0xFF}
	first := Checksum(data)
	for i := 0; i < 100; i++ {
		if got := Checksum(data); got != first {
			t.Fatalf("Checksum not stable: 0x%02X then 0x%02X", first, got)
		}
	}
}
