package logger

import (
	"reflect"
	"testing"
)

type recordedLine struct {
	level   string
	message string
	keyvals []any
}

type recorder struct {
	lines []recordedLine
}

func (r *recorder) add(level, msg string, kv []any) {
	r.lines = append(r.lines, recordedLine{level: level, message: msg, keyvals: kv})
}

func (r *recorder) Log(m string, kv ...any)   { r.add("log", m, kv) }
func (r *recorder) Debug(m string, kv ...any) { r.add("debug", m, kv) }
func (r *recorder) Info(m string, kv ...any)  { r.add("info", m, kv) }
func (r *recorder) Warn(m string, kv ...any)  { r.add("warn", m, kv) }
func (r *recorder) Error(m string, kv ...any) { r.add("error", m, kv) }
func (r *recorder) Fatal(m string, kv ...any) { r.add("fatal", m, kv) }

func TestDispatchToAllInstances(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	Init(a, b)
	t.Cleanup(func() { singleton = nil })

	Log("plain", "k", 1)
	Component("Graph").Warn("slow query", "ms", 120)

	want := []recordedLine{
		{level: "log", message: "plain", keyvals: []any{"k", 1}},
		{level: "warn", message: "[Graph] slow query", keyvals: []any{"ms", 120}},
	}
	for _, r := range []*recorder{a, b} {
		if !reflect.DeepEqual(r.lines, want) {
			t.Fatalf("lines = %#v, want %#v", r.lines, want)
		}
	}
}

func TestUninitializedLoggerIsNoop(t *testing.T) {
	singleton = nil
	Info("dropped")
	Component("Extract").Error("dropped too")
}
