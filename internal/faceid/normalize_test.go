package faceid

import "testing"

func TestRemoveDiacritics(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Jiří", "Jiri"},
		{"François", "Francois"},
		{"Müller", "Muller"},
		{"plain", "plain"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := RemoveDiacritics(tt.in); got != tt.want {
			t.Errorf("RemoveDiacritics(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizePersonName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Jiří Novák", "jiri novak"},
		{"Anne-Marie  Dubois", "anne marie dubois"},
		{"  Ada   Lovelace ", "ada lovelace"},
		{"MÜLLER", "muller"},
	}

	for _, tt := range tests {
		if got := NormalizePersonName(tt.in); got != tt.want {
			t.Errorf("NormalizePersonName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
