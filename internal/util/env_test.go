package util

import (
	"testing"
	"time"
)

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("KG_NUM", "0.75")
	t.Setenv("KG_BAD_NUM", "abc")
	t.Setenv("KG_BOOL", "true")
	t.Setenv("KG_DUR", "1500ms")
	t.Setenv("KG_EMPTY", "")

	if got := GetEnvNumeric("KG_NUM", 1); got != 0.75 {
		t.Errorf("GetEnvNumeric = %v", got)
	}
	if got := GetEnvNumeric("KG_BAD_NUM", 3); got != 3 {
		t.Errorf("GetEnvNumeric fallback = %v", got)
	}
	if got := GetEnvInt("KG_MISSING", 42); got != 42 {
		t.Errorf("GetEnvInt = %v", got)
	}
	if !GetEnvBool("KG_BOOL", false) {
		t.Errorf("GetEnvBool = false")
	}
	if got := GetEnvDuration("KG_DUR", time.Second); got != 1500*time.Millisecond {
		t.Errorf("GetEnvDuration = %v", got)
	}
	if got := GetEnvString("KG_EMPTY", "fallback"); got != "fallback" {
		t.Errorf("GetEnvString = %q", got)
	}
}
