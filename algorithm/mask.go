package algorithm

import (
	"crypto/md5"
	"encoding/hex"
	"strings"

	"github.com/qjerry/dbroute/errs"
	"github.com/qjerry/dbroute/util/str"
)

// MaskAlgorithm masks a query result value
type MaskAlgorithm interface {
	Mask(plain any) any
}

func init() {
	Register(KindMask, "MD5", newMD5Mask)
	Register(KindMask, "KEEP_FIRST_N_LAST_M", newKeepFirstNLastM)
	Register(KindMask, "MASK_FIRST_N_LAST_M", newMaskFirstNLastM)
	Register(KindMask, "MASK_AFTER_SPECIAL_CHARS", newMaskAfterSpecialChars)
}

// MD5MaskAlgorithm hex(md5(value + salt))
type MD5MaskAlgorithm struct {
	salt string
}

func newMD5Mask(props Props) (any, error) {
	return &MD5MaskAlgorithm{salt: props.StringOr("salt", "")}, nil
}

func (a *MD5MaskAlgorithm) Mask(plain any) any {
	if plain == nil {
		return nil
	}
	sum := md5.Sum([]byte(str.ToString(plain) + a.salt))
	return hex.EncodeToString(sum[:])
}

type firstNLastM struct {
	first   int
	last    int
	replace rune
}

func newFirstNLastM(props Props) (firstNLastM, error) {
	first, err := props.Int("first-n")
	if err != nil {
		return firstNLastM{}, err
	}
	last, err := props.Int("last-m")
	if err != nil {
		return firstNLastM{}, err
	}
	replace, err := replaceChar(props)
	if err != nil {
		return firstNLastM{}, err
	}
	if first < 0 || last < 0 {
		return firstNLastM{}, errs.NewConfiguration("first-n and last-m must not be negative")
	}
	return firstNLastM{first: first, last: last, replace: replace}, nil
}

func replaceChar(props Props) (rune, error) {
	r := []rune(props.StringOr("replace-char", "*"))
	if len(r) != 1 {
		return 0, errs.NewConfiguration("replace-char must be a single character")
	}
	return r[0], nil
}

// KeepFirstNLastMMaskAlgorithm keeps the first n and last m characters
type KeepFirstNLastMMaskAlgorithm struct {
	firstNLastM
}

func newKeepFirstNLastM(props Props) (any, error) {
	f, err := newFirstNLastM(props)
	if err != nil {
		return nil, err
	}
	return &KeepFirstNLastMMaskAlgorithm{firstNLastM: f}, nil
}

func (a *KeepFirstNLastMMaskAlgorithm) Mask(plain any) any {
	if plain == nil {
		return nil
	}
	runes := []rune(str.ToString(plain))
	if len(runes) <= a.first+a.last {
		return string(runes)
	}
	for i := a.first; i < len(runes)-a.last; i++ {
		runes[i] = a.replace
	}
	return string(runes)
}

// MaskFirstNLastMMaskAlgorithm masks the first n and last m characters
type MaskFirstNLastMMaskAlgorithm struct {
	firstNLastM
}

func newMaskFirstNLastM(props Props) (any, error) {
	f, err := newFirstNLastM(props)
	if err != nil {
		return nil, err
	}
	return &MaskFirstNLastMMaskAlgorithm{firstNLastM: f}, nil
}

func (a *MaskFirstNLastMMaskAlgorithm) Mask(plain any) any {
	if plain == nil {
		return nil
	}
	runes := []rune(str.ToString(plain))
	for i := range runes {
		if i < a.first || i >= len(runes)-a.last {
			runes[i] = a.replace
		}
	}
	return string(runes)
}

// MaskAfterSpecialCharsMaskAlgorithm masks everything after the first special-chars occurrence
type MaskAfterSpecialCharsMaskAlgorithm struct {
	special string
	replace rune
}

func newMaskAfterSpecialChars(props Props) (any, error) {
	special, err := props.String("special-chars")
	if err != nil {
		return nil, err
	}
	replace, err := replaceChar(props)
	if err != nil {
		return nil, err
	}
	return &MaskAfterSpecialCharsMaskAlgorithm{special: special, replace: replace}, nil
}

func (a *MaskAfterSpecialCharsMaskAlgorithm) Mask(plain any) any {
	if plain == nil {
		return nil
	}
	s := str.ToString(plain)
	idx := strings.Index(s, a.special)
	if idx < 0 {
		return s
	}
	keep := idx + len(a.special)
	return s[:keep] + strings.Repeat(string(a.replace), len([]rune(s[keep:])))
}
