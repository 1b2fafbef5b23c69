package room

import "testing"

func TestIsEmojiOnly(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"😀", true},
		{"🎬🦈", true},
		{"🧙‍♂️⚡", true},
		{"é", true},
		{"", false},
		{"hi", false},
		{"😀 😀", false},
		{"😀a", false},
		{"1️⃣", false},
	}
	for _, tt := range tests {
		if got := IsEmojiOnly(tt.in); got != tt.want {
			t.Errorf("IsEmojiOnly(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
