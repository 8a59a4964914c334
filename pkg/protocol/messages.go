// Package protocol implements the CrypRQ record header, message types, and
// file-transfer metadata encoding. The handshake itself is carried out by
// pkg/tunnel and pkg/crypto; this package only defines the wire shapes that
// travel inside a record's ciphertext once a session is established.
package protocol

import (
	"encoding/binary"

	"github.com/cryprq/cryprq/internal/constants"
	qerrors "github.com/cryprq/cryprq/internal/errors"
)

// MessageType identifies the payload carried by a record, per SPEC_FULL.md §6.
type MessageType uint8

const (
	// MessageTypeData carries an opaque application payload.
	MessageTypeData MessageType = 0x01
	// MessageTypeFileMeta carries a FileMetadata payload opening a transfer.
	MessageTypeFileMeta MessageType = 0x02
	// MessageTypeFileChunk carries raw file-transfer chunk bytes.
	MessageTypeFileChunk MessageType = 0x03
	// MessageTypeFileAck carries a file-transfer acknowledgment.
	MessageTypeFileAck MessageType = 0x04
	// MessageTypeVPNPacket carries an IP packet for the virtual network device.
	MessageTypeVPNPacket MessageType = 0x05
	// MessageTypeControl carries tunnel control-plane bytes.
	MessageTypeControl MessageType = 0x10
)

// String returns a human-readable name for the message type.
func (mt MessageType) String() string {
	switch mt {
	case MessageTypeData:
		return "DATA"
	case MessageTypeFileMeta:
		return "FILE_META"
	case MessageTypeFileChunk:
		return "FILE_CHUNK"
	case MessageTypeFileAck:
		return "FILE_ACK"
	case MessageTypeVPNPacket:
		return "VPN_PACKET"
	case MessageTypeControl:
		return "CONTROL"
	default:
		return "UNKNOWN"
	}
}

// IsKnown reports whether mt is one of the message types defined above.
func (mt MessageType) IsKnown() bool {
	switch mt {
	case MessageTypeData, MessageTypeFileMeta, MessageTypeFileChunk, MessageTypeFileAck, MessageTypeVPNPacket, MessageTypeControl:
		return true
	default:
		return false
	}
}

// FileMetadata is the payload of a FILE_META record opening an incoming
// transfer, per SPEC_FULL.md §3:
//
//	type_tag(4) || filename_len(4) || filename || file_size(8) || sha256_hash(32)
type FileMetadata struct {
	TypeTag    uint32
	Filename   string
	FileSize   uint64
	SHA256Hash [constants.FileHashSize]byte
}

// Encode serializes the metadata to its wire form.
func (m FileMetadata) Encode() []byte {
	filenameBytes := []byte(m.Filename)
	buf := make([]byte, 4+4+len(filenameBytes)+8+constants.FileHashSize)

	binary.BigEndian.PutUint32(buf[0:4], m.TypeTag)
	binary.BigEndian.PutUint32(buf[4:8], uint32(len(filenameBytes)))
	copy(buf[8:8+len(filenameBytes)], filenameBytes)

	offset := 8 + len(filenameBytes)
	binary.BigEndian.PutUint64(buf[offset:offset+8], m.FileSize)
	offset += 8
	copy(buf[offset:offset+constants.FileHashSize], m.SHA256Hash[:])

	return buf
}

// DecodeFileMetadata parses a FileMetadata payload produced by Encode.
func DecodeFileMetadata(buf []byte) (FileMetadata, error) {
	if len(buf) < 8 {
		return FileMetadata{}, qerrors.ErrInvalidRecord
	}

	typeTag := binary.BigEndian.Uint32(buf[0:4])
	filenameLen := binary.BigEndian.Uint32(buf[4:8])

	want := 8 + int(filenameLen) + 8 + constants.FileHashSize
	if len(buf) != want {
		return FileMetadata{}, qerrors.ErrInvalidRecord
	}

	filename := string(buf[8 : 8+filenameLen])
	offset := 8 + int(filenameLen)
	fileSize := binary.BigEndian.Uint64(buf[offset : offset+8])
	offset += 8

	var hash [constants.FileHashSize]byte
	copy(hash[:], buf[offset:offset+constants.FileHashSize])

	return FileMetadata{
		TypeTag:    typeTag,
		Filename:   filename,
		FileSize:   fileSize,
		SHA256Hash: hash,
	}, nil
}
