package algorithm

import (
	"bytes"
	"crypto/aes"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"

	"github.com/pkg/errors"
	"github.com/qjerry/dbroute/errs"
	"github.com/qjerry/dbroute/util/str"
	"github.com/zeebo/blake3"
)

// EncryptContext where the value comes from
type EncryptContext struct {
	Database string
	Table    string
	Column   string
}

// EncryptAlgorithm encrypts a plain value, nil stays nil
type EncryptAlgorithm interface {
	Encrypt(plain any, ctx EncryptContext) (any, error)
}

// Decryptor reversible encrypt algorithms
type Decryptor interface {
	Decrypt(cipher any, ctx EncryptContext) (any, error)
}

func init() {
	Register(KindEncrypt, "AES", newAESEncrypt)
	Register(KindEncrypt, "MD5", newMD5Encrypt)
	Register(KindEncrypt, "BLAKE3", newBlake3Encrypt)
	Register(KindEncrypt, "CHAR_DIGEST_LIKE", newCharDigestLike)
}

// AESEncryptAlgorithm AES/ECB/PKCS5Padding, the key is the digest of aes-key-value truncated to 16 bytes
type AESEncryptAlgorithm struct {
	key []byte
}

func newAESEncrypt(props Props) (any, error) {
	keyValue, err := props.String("aes-key-value")
	if err != nil {
		return nil, err
	}
	var digest []byte
	switch strings.ToUpper(props.StringOr("digest-algorithm-name", "SHA-1")) {
	case "SHA-1", "SHA1":
		sum := sha1.Sum([]byte(keyValue))
		digest = sum[:]
	case "SHA-256", "SHA256":
		sum := sha256.Sum256([]byte(keyValue))
		digest = sum[:]
	case "MD5":
		sum := md5.Sum([]byte(keyValue))
		digest = sum[:]
	default:
		return nil, errs.NewConfiguration("unsupported digest-algorithm-name `%s`", props["digest-algorithm-name"])
	}
	return &AESEncryptAlgorithm{key: digest[:16]}, nil
}

func (a *AESEncryptAlgorithm) Encrypt(plain any, _ EncryptContext) (any, error) {
	if plain == nil {
		return nil, nil
	}
	block, err := aes.NewCipher(a.key)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	data := pkcs7Pad([]byte(str.ToString(plain)), block.BlockSize())
	out := make([]byte, len(data))
	for i := 0; i < len(data); i += block.BlockSize() {
		block.Encrypt(out[i:i+block.BlockSize()], data[i:i+block.BlockSize()])
	}
	return base64.StdEncoding.EncodeToString(out), nil
}

func (a *AESEncryptAlgorithm) Decrypt(cipher any, _ EncryptContext) (any, error) {
	if cipher == nil {
		return nil, nil
	}
	data, err := base64.StdEncoding.DecodeString(str.ToString(cipher))
	if err != nil {
		return nil, errors.Wrap(err, "decode cipher")
	}
	block, err := aes.NewCipher(a.key)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	size := block.BlockSize()
	if len(data) == 0 || len(data)%size != 0 {
		return nil, errors.Errorf("cipher length %d is not a multiple of %d", len(data), size)
	}
	out := make([]byte, len(data))
	for i := 0; i < len(data); i += size {
		block.Decrypt(out[i:i+size], data[i:i+size])
	}
	plain, err := pkcs7Unpad(out, size)
	if err != nil {
		return nil, err
	}
	return string(plain), nil
}

func pkcs7Pad(data []byte, size int) []byte {
	padding := size - len(data)%size
	return append(data, bytes.Repeat([]byte{byte(padding)}, padding)...)
}

func pkcs7Unpad(data []byte, size int) ([]byte, error) {
	padding := int(data[len(data)-1])
	if padding == 0 || padding > size || padding > len(data) {
		return nil, errors.New("invalid padding")
	}
	for _, b := range data[len(data)-padding:] {
		if int(b) != padding {
			return nil, errors.New("invalid padding")
		}
	}
	return data[:len(data)-padding], nil
}

// MD5EncryptAlgorithm hex(md5(value + salt)), one way, used for assisted query columns
type MD5EncryptAlgorithm struct {
	salt string
}

func newMD5Encrypt(props Props) (any, error) {
	return &MD5EncryptAlgorithm{salt: props.StringOr("salt", "")}, nil
}

func (a *MD5EncryptAlgorithm) Encrypt(plain any, _ EncryptContext) (any, error) {
	if plain == nil {
		return nil, nil
	}
	sum := md5.Sum([]byte(str.ToString(plain) + a.salt))
	return hex.EncodeToString(sum[:]), nil
}

// Blake3EncryptAlgorithm hex(blake3(value + salt)), one way
type Blake3EncryptAlgorithm struct {
	salt string
}

func newBlake3Encrypt(props Props) (any, error) {
	return &Blake3EncryptAlgorithm{salt: props.StringOr("salt", "")}, nil
}

func (a *Blake3EncryptAlgorithm) Encrypt(plain any, _ EncryptContext) (any, error) {
	if plain == nil {
		return nil, nil
	}
	sum := blake3.Sum256([]byte(str.ToString(plain) + a.salt))
	return hex.EncodeToString(sum[:]), nil
}

const (
	maxNumericLetterChar = 255
	defaultDelta         = 1
	defaultMask          = 0b1111_0111_1101
	defaultStart         = 0x4e00
)

// CharDigestLikeEncryptAlgorithm char-wise digest keeping the LIKE wildcards % and _
type CharDigestLikeEncryptAlgorithm struct {
	delta int
	mask  int
	start int
}

func newCharDigestLike(props Props) (any, error) {
	delta, err := props.IntOr("delta", defaultDelta)
	if err != nil {
		return nil, err
	}
	mask, err := props.IntOr("mask", defaultMask)
	if err != nil {
		return nil, err
	}
	start, err := props.IntOr("start", defaultStart)
	if err != nil {
		return nil, err
	}
	return &CharDigestLikeEncryptAlgorithm{delta: delta, mask: mask, start: start}, nil
}

func (a *CharDigestLikeEncryptAlgorithm) Encrypt(plain any, _ EncryptContext) (any, error) {
	if plain == nil {
		return nil, nil
	}
	var sb strings.Builder
	for _, c := range str.ToString(plain) {
		sb.WriteRune(a.maskedChar(c))
	}
	return sb.String(), nil
}

func (a *CharDigestLikeEncryptAlgorithm) maskedChar(c rune) rune {
	switch {
	case c == '%' || c == '_':
		return c
	case c <= maxNumericLetterChar:
		return rune((int(c) + a.delta) & a.mask)
	default:
		return rune(((int(c) + a.delta) & a.mask) + a.start)
	}
}
