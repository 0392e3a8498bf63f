package instrument

import (
	"errors"
	"fmt"
	"testing"
)

// fakeDevice stands in for instrument hardware: a register file with
// injectable failures, in the shape drivers wire getters and setters to.
type fakeDevice struct {
	values   map[string]any
	setCalls int
	getErr   error
	setErr   error
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{values: make(map[string]any)}
}

func (d *fakeDevice) getter(key string) Getter {
	return func(index int) (any, error) {
		if d.getErr != nil {
			return nil, d.getErr
		}
		return d.values[fmt.Sprintf("%s/%d", key, index)], nil
	}
}

func (d *fakeDevice) setter(key string) Setter {
	return func(index int, value any) error {
		d.setCalls++
		if d.setErr != nil {
			return d.setErr
		}
		d.values[fmt.Sprintf("%s/%d", key, index)] = value
		return nil
	}
}

func newTestRegistry(t *testing.T, dev *fakeDevice) *Registry {
	t.Helper()
	r := NewRegistry()

	dev.values["freq.center/-1"] = 1.5e9
	dev.values["freq.span/-1"] = 40.0e6
	r.MustRegister(Descriptor{
		Path:  "rf.frequency.center",
		Group: "rf",
		Get:   dev.getter("freq.center"),
		Set:   dev.setter("freq.center"),
	})
	r.MustRegister(Descriptor{
		Path:  "rf.frequency.span",
		Group: "rf",
		Get:   dev.getter("freq.span"),
		Set:   dev.setter("freq.span"),
	})
	r.MustRegister(Descriptor{
		Path:  "identity.instrument_model",
		Group: "identity",
		Get:   func(int) (any, error) { return "8542B", nil },
	})
	return r
}

func TestRegistry_Register(t *testing.T) {
	t.Run("duplicate path rejected", func(t *testing.T) {
		r := newTestRegistry(t, newFakeDevice())
		err := r.Register(Descriptor{
			Path: "rf.frequency.center",
			Get:  func(int) (any, error) { return nil, nil },
		})
		if !errors.Is(err, ErrAttributeExists) {
			t.Errorf("expected ErrAttributeExists, got %v", err)
		}
	})

	t.Run("getter is mandatory", func(t *testing.T) {
		r := NewRegistry()
		err := r.Register(Descriptor{Path: "broken"})
		if err == nil {
			t.Error("expected error for descriptor without getter")
		}
	})

	t.Run("local scalar seeds default", func(t *testing.T) {
		r := NewRegistry()
		r.MustRegister(Descriptor{
			Path:    "operation.range_check",
			Local:   true,
			Default: true,
			Get:     func(int) (any, error) { return nil, nil },
		})
		v, ok := r.Cache().Read(ScalarKey("operation.range_check"))
		if !ok || v.(bool) != true {
			t.Errorf("local default not seeded: got %v valid=%v", v, ok)
		}
	})
}

func TestRegistry_GetSet(t *testing.T) {
	dev := newFakeDevice()
	r := newTestRegistry(t, dev)

	t.Run("get reads through to device", func(t *testing.T) {
		v, err := r.Get("rf.frequency.center")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if v.(float64) != 1.5e9 {
			t.Errorf("expected 1.5e9, got %v", v)
		}
	})

	t.Run("unknown attribute", func(t *testing.T) {
		_, err := r.Get("rf.does_not_exist")
		if !errors.Is(err, ErrUnknownAttribute) {
			t.Errorf("expected ErrUnknownAttribute, got %v", err)
		}
	})

	t.Run("set without setter is read only", func(t *testing.T) {
		err := r.Set("identity.instrument_model", "other")
		if !errors.Is(err, ErrReadOnlyAttribute) {
			t.Errorf("expected ErrReadOnlyAttribute, got %v", err)
		}
	})

	t.Run("set writes device", func(t *testing.T) {
		if err := r.Set("rf.frequency.span", 20.0e6); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		if dev.values["freq.span/-1"].(float64) != 20.0e6 {
			t.Error("device value not updated")
		}
	})

	t.Run("typed getters", func(t *testing.T) {
		f, err := r.GetFloat("rf.frequency.center")
		if err != nil || f != 1.5e9 {
			t.Errorf("GetFloat: %v err=%v", f, err)
		}
		s, err := r.GetString("identity.instrument_model")
		if err != nil || s != "8542B" {
			t.Errorf("GetString: %q err=%v", s, err)
		}
		if _, err := r.GetBool("identity.instrument_model"); !errors.Is(err, ErrProtocol) {
			t.Errorf("expected ErrProtocol on type mismatch, got %v", err)
		}
	})
}

func TestRegistry_Invalidation(t *testing.T) {
	dev := newFakeDevice()
	r := newTestRegistry(t, dev)
	r.Affects("rf.frequency.center", "rf.frequency.span")

	t.Run("successful set invalidates dependents", func(t *testing.T) {
		r.Cache().Write(ScalarKey("rf.frequency.span"), 40.0e6)
		if err := r.Set("rf.frequency.center", 2.0e9); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		if _, ok := r.Cache().Read(ScalarKey("rf.frequency.span")); ok {
			t.Error("dependent still valid after set")
		}
	})

	t.Run("failed set leaves dependents valid", func(t *testing.T) {
		r.Cache().Write(ScalarKey("rf.frequency.span"), 40.0e6)
		dev.setErr = errors.New("device offline")
		defer func() { dev.setErr = nil }()

		if err := r.Set("rf.frequency.center", 3.0e9); err == nil {
			t.Fatal("expected set to fail")
		}
		if _, ok := r.Cache().Read(ScalarKey("rf.frequency.span")); !ok {
			t.Error("dependent invalidated despite failed set")
		}
	})
}

func TestRegistry_Indexed(t *testing.T) {
	dev := newFakeDevice()
	r := NewRegistry()
	if err := r.Collections().Define("channels", []string{"CH1", "CH2", "CH3"}); err != nil {
		t.Fatalf("Define failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		dev.values[fmt.Sprintf("chan.name/%d", i)] = fmt.Sprintf("CH%d", i+1)
	}
	r.MustRegister(Descriptor{
		Path:       "channels[].name",
		Group:      "channels",
		Collection: "channels",
		Get:        dev.getter("chan.name"),
		Set:        dev.setter("chan.name"),
	})

	t.Run("selector addresses one item", func(t *testing.T) {
		v, err := r.GetAt("channels[].name", ByIndex(1))
		if err != nil {
			t.Fatalf("GetAt failed: %v", err)
		}
		if v.(string) != "CH2" {
			t.Errorf("expected CH2, got %v", v)
		}
	})

	t.Run("name selector resolves before access", func(t *testing.T) {
		v, err := r.GetAt("channels[].name", ByName("CH3"))
		if err != nil || v.(string) != "CH3" {
			t.Errorf("expected CH3, got %v err=%v", v, err)
		}
	})

	t.Run("out of range selector", func(t *testing.T) {
		_, err := r.GetAt("channels[].name", ByIndex(5))
		if !errors.Is(err, ErrSelectorRange) {
			t.Errorf("expected ErrSelectorRange, got %v", err)
		}
	})

	t.Run("ambient selection defaults to first", func(t *testing.T) {
		v, err := r.Get("channels[].name")
		if err != nil || v.(string) != "CH1" {
			t.Errorf("expected CH1 via ambient selection, got %v err=%v", v, err)
		}
	})

	t.Run("ambient selection follows select", func(t *testing.T) {
		if err := r.Collections().Select("channels", ByIndex(2)); err != nil {
			t.Fatalf("Select failed: %v", err)
		}
		v, err := r.Get("channels[].name")
		if err != nil || v.(string) != "CH3" {
			t.Errorf("expected CH3 after select, got %v err=%v", v, err)
		}
	})
}

func TestRegistry_Describe(t *testing.T) {
	dev := newFakeDevice()
	r := newTestRegistry(t, dev)

	infos := r.Describe()
	if len(infos) != 3 {
		t.Fatalf("expected 3 attributes, got %d", len(infos))
	}
	wantOrder := []Path{"rf.frequency.center", "rf.frequency.span", "identity.instrument_model"}
	for i, want := range wantOrder {
		if infos[i].Path != want {
			t.Errorf("position %d: expected %s, got %s", i, want, infos[i].Path)
		}
	}
	if infos[2].Writable {
		t.Error("getter-only attribute reported writable")
	}
	if !infos[0].Writable {
		t.Error("read-write attribute reported read only")
	}
}
