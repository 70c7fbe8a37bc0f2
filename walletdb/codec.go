package walletdb

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

// This file implements the byte-exact wire layouts named in §6 and §4.3.
// Variable-length fields use a single-byte length prefix ("varbytes"/
// "varstring") since every field they describe (an 82-byte HD key, short
// names, AES-CTR ivs/ciphertexts) comfortably fits under 256 bytes;
// larger ciphertexts fall back to a 4-byte length prefix, flagged by a
// leading 0xFF marker byte, matching the spec's "future algorithm slots
// are reserved" latitude in §4.3.

const varBytesExtendedMarker = 0xFF

func putVarBytes(buf *bytes.Buffer, b []byte) error {
	if len(b) < varBytesExtendedMarker {
		buf.WriteByte(byte(len(b)))
		buf.Write(b)
		return nil
	}
	buf.WriteByte(varBytesExtendedMarker)
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(b)))
	buf.Write(lenBuf[:])
	buf.Write(b)
	return nil
}

func readVarBytes(r io.Reader) ([]byte, error) {
	var lenByte [1]byte
	if _, err := io.ReadFull(r, lenByte[:]); err != nil {
		return nil, err
	}
	n := int(lenByte[0])
	if lenByte[0] == varBytesExtendedMarker {
		var lenBuf [4]byte
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			return nil, err
		}
		n = int(binary.LittleEndian.Uint32(lenBuf[:]))
	}
	out := make([]byte, n)
	if n == 0 {
		return out, nil
	}
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, err
	}
	return out, nil
}

func putVarString(buf *bytes.Buffer, s string) error {
	return putVarBytes(buf, []byte(s))
}

func readVarString(r io.Reader) (string, error) {
	b, err := readVarBytes(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func putBool(buf *bytes.Buffer, v bool) {
	if v {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
}

func readBool(r io.Reader) (bool, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return false, err
	}
	return b[0] != 0, nil
}

func putU32LE(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func readU32LE(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

// EncodeWalletRecord serializes rec per §6's wallet record layout.
func EncodeWalletRecord(rec *WalletRecord) ([]byte, error) {
	var buf bytes.Buffer
	putU32LE(&buf, rec.NetworkMagic)
	putU32LE(&buf, rec.WID)
	if err := putVarString(&buf, rec.ID); err != nil {
		return nil, err
	}
	putBool(&buf, rec.Initialized)
	putU32LE(&buf, rec.AccountDepth)
	buf.Write(rec.Token[:])
	putU32LE(&buf, rec.TokenDepth)
	if err := putVarBytes(&buf, rec.Master); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeWalletRecord is the inverse of EncodeWalletRecord.
func DecodeWalletRecord(data []byte) (*WalletRecord, error) {
	r := bytes.NewReader(data)
	rec := &WalletRecord{}

	var err error
	if rec.NetworkMagic, err = readU32LE(r); err != nil {
		return nil, err
	}
	if rec.WID, err = readU32LE(r); err != nil {
		return nil, err
	}
	if rec.ID, err = readVarString(r); err != nil {
		return nil, err
	}
	if rec.Initialized, err = readBool(r); err != nil {
		return nil, err
	}
	if rec.AccountDepth, err = readU32LE(r); err != nil {
		return nil, err
	}
	var token [32]byte
	if _, err := io.ReadFull(r, token[:]); err != nil {
		return nil, err
	}
	rec.Token = token
	if rec.TokenDepth, err = readU32LE(r); err != nil {
		return nil, err
	}
	if rec.Master, err = readVarBytes(r); err != nil {
		return nil, err
	}
	return rec, nil
}

// EncodeAccountRecord serializes rec per §6's account record layout.
func EncodeAccountRecord(rec *AccountRecord) ([]byte, error) {
	if len(rec.Keys) > 255 {
		return nil, errors.New("walletdb: account has more than 255 keys")
	}
	var buf bytes.Buffer
	putU32LE(&buf, rec.NetworkMagic)
	if err := putVarString(&buf, rec.Name); err != nil {
		return nil, err
	}
	putBool(&buf, rec.Initialized)
	buf.WriteByte(rec.Type)
	buf.WriteByte(rec.M)
	buf.WriteByte(rec.N)
	putBool(&buf, rec.Witness)
	putU32LE(&buf, rec.AccountIndex)
	putU32LE(&buf, rec.ReceiveDepth)
	putU32LE(&buf, rec.ChangeDepth)
	if len(rec.AccountKey) != 82 {
		return nil, errors.New("walletdb: account key must be 82 bytes")
	}
	buf.Write(rec.AccountKey)
	buf.WriteByte(byte(len(rec.Keys)))
	for _, k := range rec.Keys {
		if len(k) != 82 {
			return nil, errors.New("walletdb: cosigner key must be 82 bytes")
		}
		buf.Write(k)
	}
	return buf.Bytes(), nil
}

// DecodeAccountRecord is the inverse of EncodeAccountRecord.
func DecodeAccountRecord(data []byte) (*AccountRecord, error) {
	r := bytes.NewReader(data)
	rec := &AccountRecord{}

	var err error
	if rec.NetworkMagic, err = readU32LE(r); err != nil {
		return nil, err
	}
	if rec.Name, err = readVarString(r); err != nil {
		return nil, err
	}
	if rec.Initialized, err = readBool(r); err != nil {
		return nil, err
	}
	typeByte := make([]byte, 3)
	if _, err := io.ReadFull(r, typeByte); err != nil {
		return nil, err
	}
	rec.Type, rec.M, rec.N = typeByte[0], typeByte[1], typeByte[2]
	if rec.Witness, err = readBool(r); err != nil {
		return nil, err
	}
	if rec.AccountIndex, err = readU32LE(r); err != nil {
		return nil, err
	}
	if rec.ReceiveDepth, err = readU32LE(r); err != nil {
		return nil, err
	}
	if rec.ChangeDepth, err = readU32LE(r); err != nil {
		return nil, err
	}
	rec.AccountKey = make([]byte, 82)
	if _, err := io.ReadFull(r, rec.AccountKey); err != nil {
		return nil, err
	}
	var keyCount [1]byte
	if _, err := io.ReadFull(r, keyCount[:]); err != nil {
		return nil, err
	}
	rec.Keys = make([][]byte, keyCount[0])
	for i := range rec.Keys {
		rec.Keys[i] = make([]byte, 82)
		if _, err := io.ReadFull(r, rec.Keys[i]); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

// MasterKeyRecord is the decoded form of §4.3's persistence format.
type MasterKeyRecord struct {
	Encrypted  bool
	IV         []byte // present iff Encrypted
	Ciphertext []byte // present iff Encrypted
	Algo       uint8  // 0 = PBKDF2-HMAC-SHA256
	Iterations uint32
	R          uint32
	P          uint32
	ExtKey     []byte // present iff !Encrypted: 82-byte raw HD key (hdkey.ToRaw)
}

// EncodeMasterKeyRecord serializes per §4.3:
//
//	flag=1 (encrypted): [varbytes iv][varbytes ciphertext][u8 algo][u32 iterations][u32 r][u32 p]
//	flag=0 (clear):     [varbytes extended_private_key]
func EncodeMasterKeyRecord(rec *MasterKeyRecord) ([]byte, error) {
	var buf bytes.Buffer
	if rec.Encrypted {
		buf.WriteByte(1)
		if err := putVarBytes(&buf, rec.IV); err != nil {
			return nil, err
		}
		if err := putVarBytes(&buf, rec.Ciphertext); err != nil {
			return nil, err
		}
		buf.WriteByte(rec.Algo)
		putU32LE(&buf, rec.Iterations)
		putU32LE(&buf, rec.R)
		putU32LE(&buf, rec.P)
	} else {
		buf.WriteByte(0)
		if err := putVarBytes(&buf, rec.ExtKey); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// DecodeMasterKeyRecord is the inverse of EncodeMasterKeyRecord.
func DecodeMasterKeyRecord(data []byte) (*MasterKeyRecord, error) {
	if len(data) == 0 {
		return nil, errors.New("walletdb: empty master key record")
	}
	r := bytes.NewReader(data)
	var flag [1]byte
	if _, err := io.ReadFull(r, flag[:]); err != nil {
		return nil, err
	}
	rec := &MasterKeyRecord{Encrypted: flag[0] == 1}
	var err error
	if rec.Encrypted {
		if rec.IV, err = readVarBytes(r); err != nil {
			return nil, err
		}
		if rec.Ciphertext, err = readVarBytes(r); err != nil {
			return nil, err
		}
		var algo [1]byte
		if _, err := io.ReadFull(r, algo[:]); err != nil {
			return nil, err
		}
		rec.Algo = algo[0]
		if rec.Iterations, err = readU32LE(r); err != nil {
			return nil, err
		}
		if rec.R, err = readU32LE(r); err != nil {
			return nil, err
		}
		if rec.P, err = readU32LE(r); err != nil {
			return nil, err
		}
	} else {
		if rec.ExtKey, err = readVarBytes(r); err != nil {
			return nil, err
		}
	}
	return rec, nil
}
