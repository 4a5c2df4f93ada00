package tui

import (
	"strings"
	"testing"
)

func TestViewportScrollAndFollow(t *testing.T) {
	v := NewViewport(40, 3)
	v.SetContentLines([]string{"a", "b", "c", "d", "e"})

	if v.AtBottom() {
		t.Fatal("new viewport should start at the top")
	}
	v.End()
	if !v.AtBottom() {
		t.Fatal("End should reach the bottom")
	}
	if got := strings.Split(v.Render(), "\n")[:3]; strings.Join(got, "") != "cde" {
		t.Fatalf("visible = %q", got)
	}
	v.ScrollUp(10)
	if v.scrollY != 0 {
		t.Fatalf("scrollY = %d, want clamp to 0", v.scrollY)
	}
}

func TestViewportWrapsWideLines(t *testing.T) {
	v := NewViewport(4, 10)
	v.SetWrap(true)
	v.SetContent("abcdefghij")

	if got := v.total(); got != 3 {
		t.Fatalf("wrapped lines = %d, want 3", got)
	}
}

func TestCutUsesCellWidth(t *testing.T) {
	if got := cut("日本語テキスト", 0, 4); got != "日本" {
		t.Fatalf("cut = %q, want 日本", got)
	}
	if got := cut("abcdef", 2, 2); got != "cd" {
		t.Fatalf("cut = %q, want cd", got)
	}
	if got := cut("ab", 5, 2); got != "" {
		t.Fatalf("cut past end = %q", got)
	}
}
