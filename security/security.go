// Package security opens documents protected by the Standard security handler when
// the user password is empty, which is how owner-password-only files are distributed.
package security

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"crypto/rc4"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/wudi/pdfband/ir/raw"
)

var (
	// ErrPasswordRequired is returned when the empty user password does not open the document.
	ErrPasswordRequired = errors.New("document requires a password")
	// ErrUnsupported is returned for security handlers other than Standard V1-V5.
	ErrUnsupported = errors.New("unsupported encryption")
)

type cryptAlgo int

const (
	algoNone cryptAlgo = iota
	algoRC4
	algoAESV2
	algoAESV3
)

// Handler decrypts strings and streams of one document.
type Handler struct {
	key         []byte
	r           int
	encryptMeta bool
	stmAlgo     cryptAlgo
	strAlgo     cryptAlgo
	filters     map[string]cryptAlgo
}

// NewStandardHandler reads a Standard security handler dictionary and authenticates
// with the empty user password. fileID is the first element of the trailer /ID.
func NewStandardHandler(dict *raw.DictObj, fileID []byte) (*Handler, error) {
	if dict == nil {
		return nil, fmt.Errorf("%w: missing encryption dictionary", ErrUnsupported)
	}
	if f := nameVal(dict, "Filter"); f != "" && f != "Standard" {
		return nil, fmt.Errorf("%w: filter %s", ErrUnsupported, f)
	}
	v := intVal(dict, "V", 0)
	r := intVal(dict, "R", 2)
	if v > 5 || v == 3 || r < 2 || r > 6 {
		return nil, fmt.Errorf("%w: V=%d R=%d", ErrUnsupported, v, r)
	}
	h := &Handler{r: r, encryptMeta: true, filters: make(map[string]cryptAlgo)}
	if b, ok := dict.Lookup("EncryptMetadata").(raw.BoolObj); ok {
		h.encryptMeta = b.Value()
	}

	h.stmAlgo, h.strAlgo = algoRC4, algoRC4
	if v >= 4 {
		if err := h.readCryptFilters(dict); err != nil {
			return nil, err
		}
		h.stmAlgo = h.filterAlgo(nameVal(dict, "StmF"))
		h.strAlgo = h.filterAlgo(nameVal(dict, "StrF"))
	}

	owner, user := stringVal(dict, "O"), stringVal(dict, "U")
	if r >= 5 {
		key, err := userKeyAES256(user, stringVal(dict, "UE"), r)
		if err != nil {
			return nil, err
		}
		h.key = key
		return h, nil
	}

	keyLen := 5
	if v >= 2 {
		keyLen = intVal(dict, "Length", 40) / 8
	}
	if v == 4 {
		keyLen = 16
	}
	if keyLen < 5 || keyLen > 16 {
		return nil, fmt.Errorf("%w: key length %d", ErrUnsupported, keyLen*8)
	}
	h.key = fileKey(nil, owner, int32(intVal(dict, "P", 0)), fileID, keyLen, r, h.encryptMeta)
	if !checkUser(h.key, user, fileID, r) {
		return nil, ErrPasswordRequired
	}
	return h, nil
}

func (h *Handler) readCryptFilters(dict *raw.DictObj) error {
	cf, _ := dict.Lookup("CF").(*raw.DictObj)
	if cf == nil {
		return nil
	}
	for name, obj := range cf.KV {
		entry, ok := obj.(*raw.DictObj)
		if !ok {
			continue
		}
		switch m := nameVal(entry, "CFM"); m {
		case "", "None":
			h.filters[name] = algoNone
		case "V2":
			h.filters[name] = algoRC4
		case "AESV2":
			h.filters[name] = algoAESV2
		case "AESV3":
			h.filters[name] = algoAESV3
		default:
			return fmt.Errorf("%w: crypt filter method %s", ErrUnsupported, m)
		}
	}
	return nil
}

// filterAlgo maps a crypt filter name to its method. Identity and undefined names
// leave data as is.
func (h *Handler) filterAlgo(name string) cryptAlgo {
	if name == "" || name == "Identity" {
		return algoNone
	}
	return h.filters[name]
}

// DecryptObject returns obj with every string and stream payload decrypted using the
// key of the indirect object ref. Streams with a /Crypt filter use the named filter.
// Metadata streams stay untouched when /EncryptMetadata is false.
func (h *Handler) DecryptObject(ref raw.ObjectRef, obj raw.Object) (raw.Object, error) {
	switch v := obj.(type) {
	case raw.StringObj:
		data, err := h.decrypt(h.strAlgo, ref, v.Bytes)
		return raw.Str(data), err
	case raw.HexStringObj:
		data, err := h.decrypt(h.strAlgo, ref, v.Bytes)
		return raw.HexStr(data), err
	case *raw.ArrayObj:
		out := raw.NewArray()
		for _, item := range v.Items {
			dec, err := h.DecryptObject(ref, item)
			if err != nil {
				return nil, err
			}
			out.Append(dec)
		}
		return out, nil
	case *raw.DictObj:
		out := raw.Dict()
		for k, item := range v.KV {
			dec, err := h.DecryptObject(ref, item)
			if err != nil {
				return nil, err
			}
			out.KV[k] = dec
		}
		return out, nil
	case *raw.StreamObj:
		dict := raw.Dict()
		if v.Dict != nil {
			decDict, err := h.DecryptObject(ref, v.Dict)
			if err != nil {
				return nil, err
			}
			dict = decDict.(*raw.DictObj)
		}
		data, err := h.decrypt(h.streamAlgo(v.Dict), ref, v.Data)
		if err != nil {
			return nil, err
		}
		return raw.NewStream(dict, data), nil
	default:
		return obj, nil
	}
}

func (h *Handler) streamAlgo(dict *raw.DictObj) cryptAlgo {
	if t, _ := dict.Lookup("Type").(raw.NameObj); t.Val == "Metadata" && !h.encryptMeta {
		return algoNone
	}
	filters := []raw.Object{dict.Lookup("Filter")}
	params := []raw.Object{dict.Lookup("DecodeParms")}
	if arr, ok := filters[0].(*raw.ArrayObj); ok {
		filters = arr.Items
		params = nil
		if parr, ok := dict.Lookup("DecodeParms").(*raw.ArrayObj); ok {
			params = parr.Items
		}
	}
	for i, f := range filters {
		if n, ok := f.(raw.NameObj); !ok || n.Val != "Crypt" {
			continue
		}
		name := "Identity"
		if i < len(params) {
			if p, ok := params[i].(*raw.DictObj); ok {
				if n := nameVal(p, "Name"); n != "" {
					name = n
				}
			}
		}
		return h.filterAlgo(name)
	}
	return h.stmAlgo
}

func (h *Handler) decrypt(algo cryptAlgo, ref raw.ObjectRef, data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}
	switch algo {
	case algoRC4:
		return rc4Crypt(objectKey(h.key, ref, false), data)
	case algoAESV2:
		return aesDecrypt(objectKey(h.key, ref, true), data)
	case algoAESV3:
		return aesDecrypt(h.key, data)
	}
	return data, nil
}

var passwordPadding = []byte{
	0x28, 0xBF, 0x4E, 0x5E, 0x4E, 0x75, 0x8A, 0x41,
	0x64, 0x00, 0x4E, 0x56, 0xFF, 0xFA, 0x01, 0x08,
	0x2E, 0x2E, 0x00, 0xB6, 0xD0, 0x68, 0x3E, 0x80,
	0x2F, 0x0C, 0xA9, 0xFE, 0x64, 0x53, 0x69, 0x7A,
}

func padPassword(pwd []byte) []byte {
	padded := make([]byte, 32)
	n := copy(padded, pwd)
	copy(padded[n:], passwordPadding)
	return padded
}

// fileKey computes the RC4/AESV2 file key (ISO 32000-1 algorithm 2).
func fileKey(pwd, owner []byte, p int32, fileID []byte, n, r int, encryptMeta bool) []byte {
	data := append([]byte{}, padPassword(pwd)...)
	data = append(data, owner[:min(len(owner), 32)]...)
	data = binary.LittleEndian.AppendUint32(data, uint32(p))
	data = append(data, fileID...)
	if r >= 4 && !encryptMeta {
		data = append(data, 0xFF, 0xFF, 0xFF, 0xFF)
	}
	sum := md5.Sum(data)
	if r >= 3 {
		for i := 0; i < 50; i++ {
			sum = md5.Sum(sum[:n])
		}
	}
	return append([]byte(nil), sum[:n]...)
}

// checkUser recomputes /U for the candidate key (algorithms 4 and 5).
func checkUser(key, user, fileID []byte, r int) bool {
	if r == 2 {
		expect, _ := rc4Crypt(key, passwordPadding)
		return len(user) >= 32 && bytes.Equal(expect, user[:32])
	}
	sum := md5.Sum(append(append([]byte{}, passwordPadding...), fileID...))
	val := sum[:]
	for i := 0; i < 20; i++ {
		round := make([]byte, len(key))
		for j := range key {
			round[j] = key[j] ^ byte(i)
		}
		val, _ = rc4Crypt(round, val)
	}
	return len(user) >= 16 && bytes.Equal(val, user[:16])
}

// userKeyAES256 validates the empty password against /U and unwraps /UE.
func userKeyAES256(user, ue []byte, r int) ([]byte, error) {
	if len(user) < 48 || len(ue) < 32 {
		return nil, fmt.Errorf("%w: short /U or /UE", ErrUnsupported)
	}
	validationSalt, keySalt := user[32:40], user[40:48]
	if !bytes.Equal(hashAES256(nil, validationSalt, nil, r), user[:32]) {
		return nil, ErrPasswordRequired
	}
	block, err := aes.NewCipher(hashAES256(nil, keySalt, nil, r))
	if err != nil {
		return nil, err
	}
	key := make([]byte, 32)
	cipher.NewCBCDecrypter(block, make([]byte, aes.BlockSize)).CryptBlocks(key, ue[:32])
	return key, nil
}

// hashAES256 is the R5 SHA-256 hash, or for R6 the iterated hash of ISO 32000-2
// algorithm 2.B.
func hashAES256(pwd, salt, udata []byte, r int) []byte {
	first := sha256.Sum256(append(append(append([]byte{}, pwd...), salt...), udata...))
	k := first[:]
	if r < 6 {
		return k
	}
	var e []byte
	for i := 0; i < 64 || int(e[len(e)-1]) > i-32; i++ {
		unit := append(append(append([]byte{}, pwd...), k...), udata...)
		k1 := bytes.Repeat(unit, 64)
		block, _ := aes.NewCipher(k[:16])
		e = make([]byte, len(k1))
		cipher.NewCBCEncrypter(block, k[16:32]).CryptBlocks(e, k1)
		mod := 0
		for _, b := range e[:16] {
			mod += int(b)
		}
		switch mod % 3 {
		case 0:
			s := sha256.Sum256(e)
			k = s[:]
		case 1:
			s := sha512.Sum384(e)
			k = s[:]
		default:
			s := sha512.Sum512(e)
			k = s[:]
		}
	}
	return k[:32]
}

// objectKey derives the per-object key (algorithm 1).
func objectKey(key []byte, ref raw.ObjectRef, aesSalt bool) []byte {
	data := append([]byte{}, key...)
	data = append(data, byte(ref.Num), byte(ref.Num>>8), byte(ref.Num>>16), byte(ref.Gen), byte(ref.Gen>>8))
	if aesSalt {
		data = append(data, 's', 'A', 'l', 'T')
	}
	sum := md5.Sum(data)
	return sum[:min(len(key)+5, 16)]
}

func rc4Crypt(key, data []byte) ([]byte, error) {
	c, err := rc4.NewCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	c.XORKeyStream(out, data)
	return out, nil
}

// aesDecrypt decrypts IV-prefixed CBC data and strips PKCS#5 padding.
func aesDecrypt(key, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(data) < 2*aes.BlockSize || len(data)%aes.BlockSize != 0 {
		return nil, errors.New("aes: ciphertext is not a whole number of blocks")
	}
	out := make([]byte, len(data)-aes.BlockSize)
	cipher.NewCBCDecrypter(block, data[:aes.BlockSize]).CryptBlocks(out, data[aes.BlockSize:])
	pad := int(out[len(out)-1])
	if pad == 0 || pad > aes.BlockSize {
		return nil, errors.New("aes: invalid padding")
	}
	return out[:len(out)-pad], nil
}

func nameVal(d *raw.DictObj, key string) string {
	n, _ := d.Lookup(key).(raw.NameObj)
	return n.Val
}

func intVal(d *raw.DictObj, key string, def int) int {
	if n, ok := d.Lookup(key).(raw.NumberObj); ok {
		return int(n.Int())
	}
	return def
}

func stringVal(d *raw.DictObj, key string) []byte {
	if s, ok := d.Lookup(key).(raw.String); ok {
		return s.Value()
	}
	return nil
}
