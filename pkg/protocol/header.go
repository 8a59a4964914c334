// header.go implements the CrypRQ fixed 20-byte record header and the
// record-level encrypt/decrypt operations built on top of it.
//
// Wire Format (SPEC_FULL.md §3/§4.3), all multi-byte fields big-endian:
//
//	+---------+--------------+-------+-------+-----------+------------------+--------------------+
//	| version | message_type | flags | epoch | stream_id | sequence_number  | ciphertext_length  |
//	| 1B      | 1B           | 1B    | 1B    | 4B        | 8B               | 4B                 |
//	+---------+--------------+-------+-------+-----------+------------------+--------------------+
//
// followed by ciphertext_length bytes of AEAD output (ciphertext || 16-byte tag).
// The 20-byte header is used verbatim as AEAD associated data, so any bit
// flip in the header causes decryption to fail.
package protocol

import (
	"crypto/cipher"
	"encoding/binary"

	"github.com/cryprq/cryprq/internal/constants"
	qerrors "github.com/cryprq/cryprq/internal/errors"
	"github.com/cryprq/cryprq/pkg/crypto"
)

// HeaderSize is the fixed size of a record header in bytes.
const HeaderSize = constants.RecordHeaderSize

// Header is the fixed-size record header described above.
type Header struct {
	Version          uint8
	MessageType      MessageType
	Flags            uint8
	Epoch            uint8
	StreamID         uint32
	SequenceNumber   uint64
	CiphertextLength uint32
}

// Encode serializes the header into its 20-byte wire form.
func (h Header) Encode() []byte {
	buf := make([]byte, HeaderSize)
	buf[0] = h.Version
	buf[1] = uint8(h.MessageType)
	buf[2] = h.Flags
	buf[3] = h.Epoch
	binary.BigEndian.PutUint32(buf[4:8], h.StreamID)
	binary.BigEndian.PutUint64(buf[8:16], h.SequenceNumber)
	binary.BigEndian.PutUint32(buf[16:20], h.CiphertextLength)
	return buf
}

// DecodeHeader parses a 20-byte record header from buf. It does not
// validate the version; callers that require version enforcement should
// check Header.Version against constants.RecordVersion themselves, as
// Decode does below.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, qerrors.ErrInvalidRecord
	}
	return Header{
		Version:          buf[0],
		MessageType:      MessageType(buf[1]),
		Flags:            buf[2],
		Epoch:            buf[3],
		StreamID:         binary.BigEndian.Uint32(buf[4:8]),
		SequenceNumber:   binary.BigEndian.Uint64(buf[8:16]),
		CiphertextLength: binary.BigEndian.Uint32(buf[16:20]),
	}, nil
}

// Record is a decoded header paired with its (still encrypted) ciphertext.
type Record struct {
	Header     Header
	Ciphertext []byte
}

// Encode concatenates the record's header and ciphertext into wire bytes.
// CiphertextLength must already equal len(ciphertext); Encrypt sets this
// automatically.
func Encode(header Header, ciphertext []byte) ([]byte, error) {
	if int(header.CiphertextLength) != len(ciphertext) {
		return nil, qerrors.ErrInvalidRecord
	}
	out := make([]byte, 0, HeaderSize+len(ciphertext))
	out = append(out, header.Encode()...)
	out = append(out, ciphertext...)
	return out, nil
}

// Decode parses a full wire record: a 20-byte header followed by exactly
// CiphertextLength bytes of ciphertext. It validates the version byte and
// that the buffer is exactly the expected length — neither truncated nor
// carrying trailing garbage.
func Decode(buf []byte) (Record, error) {
	header, err := DecodeHeader(buf)
	if err != nil {
		return Record{}, err
	}
	if header.Version != constants.RecordVersion {
		return Record{}, qerrors.ErrUnsupportedVersion
	}
	want := HeaderSize + int(header.CiphertextLength)
	if len(buf) != want {
		return Record{}, qerrors.ErrInvalidRecord
	}
	return Record{Header: header, Ciphertext: buf[HeaderSize:want]}, nil
}

// Encrypt builds and encrypts a record per SPEC_FULL.md §4.3. The nonce is
// formed by XORing the big-endian sequence number into the low 8 bytes of
// staticIV; the 20-byte header (with ciphertext_length already populated) is
// used as AEAD associated data.
func Encrypt(aead cipher.AEAD, messageType MessageType, flags, epoch uint8, streamID uint32, sequence uint64, plaintext, staticIV []byte) ([]byte, error) {
	if len(plaintext) > constants.MaxPayloadSize {
		return nil, qerrors.ErrMessageTooLarge
	}

	header := Header{
		Version:          constants.RecordVersion,
		MessageType:      messageType,
		Flags:            flags,
		Epoch:            epoch,
		StreamID:         streamID,
		SequenceNumber:   sequence,
		CiphertextLength: uint32(len(plaintext) + aead.Overhead()),
	}
	headerBytes := header.Encode()

	nonce := crypto.NonceFromStaticIV(staticIV, sequence)
	ciphertext := aead.Seal(nil, nonce, plaintext, headerBytes)

	return Encode(header, ciphertext)
}

// Decrypt reverses Encrypt: it reconstructs the nonce from the record's
// sequence number and AEAD-decrypts with the record's own header bytes as
// associated data. Any mismatch of key, IV, header, ciphertext, or tag
// yields ErrDecryptFailed.
func Decrypt(aead cipher.AEAD, record Record, staticIV []byte) ([]byte, error) {
	nonce := crypto.NonceFromStaticIV(staticIV, record.Header.SequenceNumber)
	plaintext, err := aead.Open(nil, nonce, record.Ciphertext, record.Header.Encode())
	if err != nil {
		return nil, qerrors.ErrDecryptFailed
	}
	return plaintext, nil
}
