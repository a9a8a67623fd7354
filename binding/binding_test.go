package binding

import (
	"reflect"
	"testing"
)

func TestInterpolateFieldsAndDefaults(t *testing.T) {
	data := map[string]any{
		"full_name": "Ada Lovelace",
		"program":   "  ",
		"contact":   map[string]string{"phone": "703-555-0100"},
		"tags":      []any{"health", "policy"},
	}
	cases := map[string]string{
		"${full_name}":                          "Ada Lovelace",
		"${ full_name |Full Name}":              "Ada Lovelace",
		"${program|MHA — Health Administration}": "MHA — Health Administration",
		"${missing|Capstone Title}":             "Capstone Title",
		"[${missing}]":                          "[]",
		"Tel ${contact.phone}":                  "Tel 703-555-0100",
		"${tags[1]}":                            "policy",
	}
	for in, want := range cases {
		if got := Interpolate(in, data); got != want {
			t.Fatalf("Interpolate(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestInterpolateNilDataKeepsText(t *testing.T) {
	if got := Interpolate("${bio}", nil); got != "${bio}" {
		t.Fatalf("expected placeholder kept, got %q", got)
	}
}

func TestFields(t *testing.T) {
	got := Fields("${full_name|Full Name} ${bio} ${full_name}")
	want := []string{"full_name", "bio"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Fields = %v, want %v", got, want)
	}
}
