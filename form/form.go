// Package form holds the student draft behind a capstone card: the fields a
// student types or pastes, the processed headshot, and the checks a draft must
// pass before it is submitted.
package form

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/ByLCY/capstone/textfit"
)

// Word limits for the two long-form fields.
const (
	BioMin     = 120
	BioMax     = 170
	SummaryMin = 150
	SummaryMax = 170
)

// Length caps for single-line fields, in characters.
const (
	MaxNameLength  = 120
	MaxTitleLength = 200
)

// Programs lists the accepted values of Draft.Program.
var Programs = []string{
	"MHA — Health Administration",
	"MS — Health Informatics",
}

// ErrInvalid is wrapped by every error Validate returns.
var ErrInvalid = errors.New("form: invalid draft")

var (
	gmuPattern   = regexp.MustCompile(`(?i)^\S+@gmu\.edu$`)
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	spaceRun     = regexp.MustCompile(`[ \t]{2,}`)
	spaceNewline = regexp.MustCompile(`\s+\n`)
	nonDigit     = regexp.MustCompile(`\D`)
)

// Draft is one student's submission. Headshot carries the processed JPEG
// and is base64 encoded in JSON.
type Draft struct {
	Email           string `json:"email"`
	FullName        string `json:"full_name"`
	Program         string `json:"program"`
	ProjectTitle    string `json:"project_title"`
	Bio             string `json:"bio"`
	Summary         string `json:"summary"`
	ContactPhone    string `json:"contact_phone"`
	ContactGMU      string `json:"contact_gmu"`
	ContactPersonal string `json:"contact_personal"`
	Headshot        []byte `json:"headshot,omitempty"`
	HeadshotName    string `json:"headshot_name,omitempty"`
}

// NormalizePaste cleans text pasted from word processors: non-breaking
// spaces become spaces, runs of spaces and tabs collapse to one space,
// whitespace before a newline is dropped and the result is NFC.
func NormalizePaste(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	s = spaceRun.ReplaceAllString(s, " ")
	s = spaceNewline.ReplaceAllString(s, "\n")
	return norm.NFC.String(s)
}

// PhoneDigits returns at most the first ten digits of s.
func PhoneDigits(s string) string {
	d := nonDigit.ReplaceAllString(s, "")
	if len(d) > 10 {
		d = d[:10]
	}
	return d
}

// FormatPhone formats the digits of s progressively as 123-456-7890.
func FormatPhone(s string) string {
	d := PhoneDigits(s)
	switch {
	case len(d) <= 3:
		return d
	case len(d) <= 6:
		return d[:3] + "-" + d[3:]
	default:
		return d[:3] + "-" + d[3:6] + "-" + d[6:]
	}
}

// IsGMU reports whether s is an @gmu.edu address.
func IsGMU(s string) bool { return gmuPattern.MatchString(strings.TrimSpace(s)) }

// IsEmail reports whether s looks like an email address.
func IsEmail(s string) bool { return emailPattern.MatchString(strings.TrimSpace(s)) }

// Normalize applies paste clean-up to every text field, formats the phone
// number and caps the long-form fields at their word maximum.
func (d *Draft) Normalize() {
	for _, f := range []*string{&d.Email, &d.FullName, &d.Program, &d.ProjectTitle, &d.ContactGMU, &d.ContactPersonal} {
		*f = strings.TrimSpace(NormalizePaste(*f))
	}
	d.Bio = textfit.CapWords(NormalizePaste(d.Bio), BioMax)
	d.Summary = textfit.CapWords(NormalizePaste(d.Summary), SummaryMax)
	if d.ContactPhone != "" {
		d.ContactPhone = FormatPhone(d.ContactPhone)
	}
}

// FieldError is one failed check.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every failed check of a draft.
type ValidationError []FieldError

func (v ValidationError) Error() string {
	parts := make([]string, 0, len(v))
	for _, fe := range v {
		parts = append(parts, fe.Field+": "+fe.Message)
	}
	return ErrInvalid.Error() + ": " + strings.Join(parts, "; ")
}

func (v ValidationError) Unwrap() error { return ErrInvalid }

// Validate checks a draft is ready to submit. The error, if any, is a
// ValidationError naming every failing field.
func (d Draft) Validate() error {
	var errs ValidationError
	add := func(field, format string, args ...any) {
		errs = append(errs, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	for _, req := range []struct{ field, value string }{
		{"email", d.Email},
		{"full_name", d.FullName},
		{"program", d.Program},
		{"project_title", d.ProjectTitle},
	} {
		if strings.TrimSpace(req.value) == "" {
			add(req.field, "required")
		}
	}
	if d.Email != "" && !IsEmail(d.Email) {
		add("email", "not an email address")
	}
	if d.Program != "" && !knownProgram(d.Program) {
		add("program", "unknown program %q", d.Program)
	}
	if n := utf8.RuneCountInString(d.FullName); n > MaxNameLength {
		add("full_name", "%d characters, at most %d", n, MaxNameLength)
	}
	if n := utf8.RuneCountInString(d.ProjectTitle); n > MaxTitleLength {
		add("project_title", "%d characters, at most %d", n, MaxTitleLength)
	}
	if n := textfit.CountWords(d.Bio); n < BioMin || n > BioMax {
		add("bio", "%d words, must be %d–%d", n, BioMin, BioMax)
	}
	if n := textfit.CountWords(d.Summary); n < SummaryMin || n > SummaryMax {
		add("summary", "%d words, must be %d–%d", n, SummaryMin, SummaryMax)
	}
	if len(d.Headshot) == 0 {
		add("headshot", "required")
	}
	if d.ContactPhone != "" && len(PhoneDigits(d.ContactPhone)) != 10 {
		add("contact_phone", "phone must be 10 digits")
	}
	if d.ContactGMU != "" && !IsGMU(d.ContactGMU) {
		add("contact_gmu", "GMU email must end with @gmu.edu")
	}
	if d.ContactPersonal != "" && !IsEmail(d.ContactPersonal) {
		add("contact_personal", "not an email address")
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

func knownProgram(p string) bool {
	for _, known := range Programs {
		if p == known {
			return true
		}
	}
	return false
}

// Fields returns the text fields keyed by their JSON names, the shape the
// card template binds against.
func (d Draft) Fields() map[string]any {
	return map[string]any{
		"email":            d.Email,
		"full_name":        d.FullName,
		"program":          d.Program,
		"project_title":    d.ProjectTitle,
		"bio":              d.Bio,
		"summary":          d.Summary,
		"contact_phone":    d.ContactPhone,
		"contact_gmu":      d.ContactGMU,
		"contact_personal": d.ContactPersonal,
	}
}

// Decode reads a JSON draft from r.
func Decode(r io.Reader) (Draft, error) {
	var d Draft
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&d); err != nil {
		return Draft{}, fmt.Errorf("解析草稿失败: %w", err)
	}
	return d, nil
}

// Load reads a JSON draft from path.
func Load(path string) (Draft, error) {
	f, err := os.Open(path)
	if err != nil {
		return Draft{}, fmt.Errorf("读取草稿 %s 失败: %w", path, err)
	}
	defer f.Close()
	return Decode(f)
}

// Save writes d to path as indented JSON.
func Save(path string, d Draft) error {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化草稿失败: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("写入草稿 %s 失败: %w", path, err)
	}
	return nil
}
