package dynstore

import (
	"bytes"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/dshills/layerconf/internal/logging"
)

func newTestStore(t *testing.T) (*Store, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	l := logging.New(logging.Config{Level: logging.LevelDebug, Output: &buf})
	return New(WithLogger(l)), &buf
}

func TestStore_AddStore_Idempotent(t *testing.T) {
	s, logs := newTestStore(t)

	s.AddStore("app")
	s.AddVariable("app", "width", 800, "Window")
	s.AddStore("app")

	if !strings.Contains(logs.String(), "already exists") {
		t.Error("expected warning for duplicate store")
	}
	if e, ok := s.GetVariable("app", "width"); !ok || e.Value != 800 {
		t.Errorf("duplicate AddStore must not reset contents, got %+v, %v", e, ok)
	}
}

func TestStore_AddVariable_NeverOverwrites(t *testing.T) {
	s, logs := newTestStore(t)
	s.AddStore("app")

	if !s.AddVariable("app", "width", 800, "Window") {
		t.Fatal("first AddVariable should succeed")
	}
	if s.AddVariable("app", "width", 1024, "") {
		t.Error("second AddVariable should be skipped")
	}

	e, _ := s.GetVariable("app", "width")
	if e.Value != 800 || e.Section != "Window" {
		t.Errorf("entry = %+v, want {800 Window}", e)
	}
	if !strings.Contains(logs.String(), "[WARNING]") {
		t.Error("expected a warning")
	}
}

func TestStore_AddVariables(t *testing.T) {
	s, _ := newTestStore(t)
	s.AddStore("app")
	s.AddVariable("app", "b", 1, "")

	added := s.AddVariables("app", map[string]Entry{
		"a": {Value: "x"},
		"b": {Value: 2},
		"c": {Value: true, Section: "Flags"},
	})

	if want := []string{"a", "c"}; !reflect.DeepEqual(added, want) {
		t.Errorf("added = %v, want %v", added, want)
	}
	if e, _ := s.GetVariable("app", "b"); e.Value != 1 {
		t.Errorf("b = %v, want 1", e.Value)
	}
}

func TestStore_SetVariable_NeverCreates(t *testing.T) {
	s, logs := newTestStore(t)
	s.AddStore("app")

	if _, ok := s.SetVariable("app", "missing", 1); ok {
		t.Error("SetVariable on a missing name should report false")
	}
	if keys := s.Keys("app"); len(keys) != 0 {
		t.Errorf("SetVariable created %v", keys)
	}
	if !strings.Contains(logs.String(), "not found") {
		t.Error("expected not-found warning")
	}
}

func TestStore_SetVariable_KeepsSection(t *testing.T) {
	s, _ := newTestStore(t)
	s.AddStore("app")
	s.AddVariable("app", "width", 800, "Window")

	old, ok := s.SetVariable("app", "width", 1024)
	if !ok || old.Value != 800 {
		t.Fatalf("SetVariable() = %+v, %v", old, ok)
	}

	e, _ := s.GetVariable("app", "width")
	if e.Value != 1024 || e.Section != "Window" || !e.FileBacked() {
		t.Errorf("entry = %+v", e)
	}
}

func TestStore_SetVariables(t *testing.T) {
	s, _ := newTestStore(t)
	s.AddStore("app")
	s.AddVariable("app", "a", 1, "")
	s.AddVariable("app", "b", 2, "")

	prev := s.SetVariables("app", map[string]any{"a": 10, "b": 20, "zz": 0})

	if len(prev) != 2 || prev["a"].Value != 1 || prev["b"].Value != 2 {
		t.Errorf("prev = %+v", prev)
	}
	if e, _ := s.GetVariable("app", "b"); e.Value != 20 {
		t.Errorf("b = %v, want 20", e.Value)
	}
}

func TestStore_SoftMisses(t *testing.T) {
	s, _ := newTestStore(t)

	if _, ok := s.GetVariable("nope", "x"); ok {
		t.Error("GetVariable on unknown store should miss")
	}
	if s.AddVariable("nope", "x", 1, "") {
		t.Error("AddVariable on unknown store should be skipped")
	}
	if s.DeleteVariable("nope", "x") {
		t.Error("DeleteVariable on unknown store should report false")
	}
	if keys := s.Keys("nope"); keys != nil {
		t.Errorf("Keys() = %v, want nil", keys)
	}
	s.Clear("nope")
}

func TestStore_DeleteAndClear(t *testing.T) {
	s, _ := newTestStore(t)
	s.AddStore("app")
	s.AddVariables("app", map[string]Entry{"a": {Value: 1}, "b": {Value: 2}, "c": {Value: 3}})

	if !s.DeleteVariable("app", "a") {
		t.Error("DeleteVariable(a) should succeed")
	}
	if removed := s.DeleteVariables("app", "b", "a"); !reflect.DeepEqual(removed, []string{"b"}) {
		t.Errorf("DeleteVariables() = %v, want [b]", removed)
	}
	if keys := s.Keys("app"); !reflect.DeepEqual(keys, []string{"c"}) {
		t.Errorf("Keys() = %v, want [c]", keys)
	}

	s.Clear("app")
	if keys := s.Keys("app"); len(keys) != 0 {
		t.Errorf("Keys() after Clear = %v", keys)
	}
	if !s.HasStore("app") {
		t.Error("Clear must keep the store")
	}
}

func TestStore_Concurrent(t *testing.T) {
	s := New(WithLogger(logging.Discard()))
	s.AddStore("app")
	s.AddVariable("app", "n", 0, "")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.SetVariable("app", "n", i)
			s.GetVariable("app", "n")
		}(i)
	}
	wg.Wait()

	if _, ok := s.GetVariable("app", "n"); !ok {
		t.Error("variable lost under concurrent access")
	}
}
