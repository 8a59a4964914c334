package protocol

import (
	"crypto/sha256"
	"testing"
)

func TestFileMetadataEncodeDecodeRoundTrip(t *testing.T) {
	hash := sha256.Sum256([]byte("file contents"))
	m := FileMetadata{
		TypeTag:    1,
		Filename:   "report.pdf",
		FileSize:   123456,
		SHA256Hash: hash,
	}

	encoded := m.Encode()
	decoded, err := DecodeFileMetadata(encoded)
	if err != nil {
		t.Fatalf("DecodeFileMetadata: %v", err)
	}

	if decoded != m {
		t.Fatalf("decoded metadata %+v != original %+v", decoded, m)
	}
}

func TestFileMetadataDecodeRejectsTruncated(t *testing.T) {
	m := FileMetadata{TypeTag: 1, Filename: "x", FileSize: 1}
	encoded := m.Encode()

	if _, err := DecodeFileMetadata(encoded[:len(encoded)-1]); err == nil {
		t.Fatal("DecodeFileMetadata accepted truncated input")
	}
}

func TestMessageTypeString(t *testing.T) {
	cases := map[MessageType]string{
		MessageTypeData:      "DATA",
		MessageTypeFileMeta:  "FILE_META",
		MessageTypeFileChunk: "FILE_CHUNK",
		MessageTypeFileAck:   "FILE_ACK",
		MessageTypeVPNPacket: "VPN_PACKET",
		MessageTypeControl:   "CONTROL",
		MessageType(0xEE):    "UNKNOWN",
	}
	for mt, want := range cases {
		if got := mt.String(); got != want {
			t.Errorf("MessageType(%#x).String() = %q, want %q", uint8(mt), got, want)
		}
	}
}

func TestMessageTypeIsKnown(t *testing.T) {
	if !MessageTypeVPNPacket.IsKnown() {
		t.Error("VPN_PACKET should be known")
	}
	if MessageType(0xEE).IsKnown() {
		t.Error("0xEE should not be known")
	}
}
