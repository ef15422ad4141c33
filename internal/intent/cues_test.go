package intent

import (
	"reflect"
	"testing"
)

func TestTokenize(t *testing.T) {
	got := Tokenize("Hva skjer, om jeg STRYKER i DAT110?")
	want := []string{"hva", "skjer", "om", "jeg", "stryker", "i", "dat110"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tokenize() = %v, want %v", got, want)
	}
	if got := Tokenize("  ...  "); len(got) != 0 {
		t.Errorf("Tokenize(punctuation) = %v, want empty", got)
	}
}

func TestCueSet_Match(t *testing.T) {
	set := Cues("hva skjer hvis", "frist*", "mat", "  ")

	tests := []struct {
		text string
		want bool
	}{
		{"Hva skjer hvis jeg stryker", true},
		{"hva skjer om jeg stryker", false},
		{"Når er fristene?", true},
		{"Er det mat i kantina", true},
		{"matematikk", false},
		{"hva skjer", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := set.Match(Tokenize(tt.text)); got != tt.want {
			t.Errorf("Match(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
	if len(set) != 3 {
		t.Errorf("blank cue should be dropped, len = %d", len(set))
	}
}
