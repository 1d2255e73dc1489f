package utils

import (
	"testing"
)

func TestTruncate(t *testing.T) {
	if Truncate("hello", 10) != "hello" {
		t.Error("short string unchanged")
	}
	if Truncate("hello world", 5) != "hello..." {
		t.Errorf("got %s", Truncate("hello world", 5))
	}
	if Truncate("x", 0) != "x" {
		t.Error("maxLen 0 returns as-is")
	}
	if got := Truncate("日本語のテキスト", 3); got != "日本語..." {
		t.Errorf("multi-byte: got %s", got)
	}
	if Truncate("abc", 3) != "abc" {
		t.Error("exact length unchanged")
	}
}

func TestTruncateWords(t *testing.T) {
	if got := TruncateWords("one two three four", 2); got != "one two..." {
		t.Errorf("got %q", got)
	}
	if got := TruncateWords("one two", 5); got != "one two" {
		t.Errorf("got %q", got)
	}
}

func TestOneLine(t *testing.T) {
	if got := OneLine("  a\n\nb\t c "); got != "a b c" {
		t.Errorf("got %q", got)
	}
}
