// Package validator decides whether extracted text is usable document content or
// provider metadata, advertising, or OCR noise.
package validator

import (
	"strings"
	"unicode/utf8"
)

// Rejection reasons reported by Check.
const (
	ReasonTooShort = "too_short"
	ReasonMetadata = "metadata"
	ReasonSpam     = "spam"
	ReasonLowCJK   = "low_cjk_density"
	ReasonAccepted = ""
)

const defaultMinChars = 50

// Verdict is the outcome of validating one piece of text.
type Verdict struct {
	Valid  bool
	Reason string
}

// Rules holds the fixed fingerprint lists. The zero value rejects nothing but length.
type Rules struct {
	MinChars           int
	MetadataIndicators []string   // two or more present => metadata
	MetadataFieldSets  [][]string // all fields of any one set present => metadata
	SpamKeywords       []string   // more than one present => spam
	MinCJKRatio        float64    // applies only when the text contains CJK ideographs
}

// DefaultRules returns the rule set used in production.
func DefaultRules() Rules {
	return Rules{
		MinChars: defaultMinChars,
		MetadataIndicators: []string{
			"Document generated by Anna",
			"Anna's Archive",
			"DuXiu collection",
			"annas-blog.org",
			"pdg_dir_name",
			"pdg_main_pages",
			"pdf_generation_missing_pages",
			`"filename_decoded"`,
			`"total_pixels"`,
			`"zip_password"`,
		},
		MetadataFieldSets: [][]string{
			{"filesize", "md5", "sha1"},
			{"crc32", "uncompressed_size"},
			{"header_md5", "sha256"},
		},
		SpamKeywords: []string{
			"开户客服微信",
			"扫描二维码",
			"手续费",
			"股票期货",
			"无门槛",
			"加微信",
			"国企证券",
			"万一",
			"开股票账户",
			"开期货账户",
			"账户",
			"加一分",
			"国企期货",
			"期货",
			"书籍下载",
			"点击网站链接",
			"二维码添加微信",
		},
		MinCJKRatio: 0.10,
	}
}

// Validator applies Rules to text. It holds no mutable state and is safe for concurrent use.
type Validator struct {
	rules Rules
}

// New creates a Validator with the given rules.
func New(rules Rules) *Validator {
	return &Validator{rules: rules}
}

// NewDefault creates a Validator with DefaultRules.
func NewDefault() *Validator {
	return New(DefaultRules())
}

// IsValid reports whether text is usable content.
func (v *Validator) IsValid(text string) bool {
	return v.Check(text).Valid
}

// Check applies the rules in order and returns the first rejection, if any.
func (v *Validator) Check(text string) Verdict {
	stripped := strings.TrimSpace(text)
	strippedLen := utf8.RuneCountInString(stripped)
	if strippedLen < v.rules.MinChars {
		return Verdict{Reason: ReasonTooShort}
	}

	if v.isMetadata(text) {
		return Verdict{Reason: ReasonMetadata}
	}

	if countContained(text, v.rules.SpamKeywords) > 1 {
		return Verdict{Reason: ReasonSpam}
	}

	if cjk := countCJK(text); cjk > 0 {
		if float64(cjk)/float64(strippedLen) < v.rules.MinCJKRatio {
			return Verdict{Reason: ReasonLowCJK}
		}
	}

	return Verdict{Valid: true, Reason: ReasonAccepted}
}

func (v *Validator) isMetadata(text string) bool {
	if countContained(text, v.rules.MetadataIndicators) >= 2 {
		return true
	}
	for _, set := range v.rules.MetadataFieldSets {
		if len(set) > 0 && countContained(text, set) == len(set) {
			return true
		}
	}
	return false
}

func countContained(text string, phrases []string) int {
	n := 0
	for _, p := range phrases {
		if strings.Contains(text, p) {
			n++
		}
	}
	return n
}

// countCJK counts CJK Unified Ideographs (U+4E00..U+9FFF).
func countCJK(text string) int {
	n := 0
	for _, r := range text {
		if r >= 0x4E00 && r <= 0x9FFF {
			n++
		}
	}
	return n
}
