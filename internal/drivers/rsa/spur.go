package rsa

import (
	"fmt"
	"math"
	"strconv"

	"github.com/davmor83/labrig-core/internal/instrument"
	"github.com/davmor83/labrig-core/internal/instrument/wire"
)

// traceCount is the number of numbered traces; the Math trace follows
// them.
const traceCount = 4

// rangeNames is the fixed spurious range set, one letter per range.
const rangeNames = "ABCDEFGHIJKLMNOPQRST"

// Command prefixes of the spurious configuration blocks. The indexed
// prefixes receive the 1-based item number.
const (
	spurTracePrefix   = ":TRAC%d:SPUR"
	spurRangePrefix   = ":SPUR:RANG%d"
	spurPrefix        = ":SPUR"
	spurCarrierPrefix = ":SPUR:CARR"
	displaySpurPrefix = ":DISP:SPUR"
)

// fieldKind selects the wire form of one configuration field.
type fieldKind int

const (
	fieldString fieldKind = iota
	fieldInt
	fieldFloat
	fieldBool
)

// configField binds a configuration key to its command suffix and wire
// form.
type configField struct {
	name   string
	kind   fieldKind
	suffix string
}

// configTable describes one configuration block. Declaration order fixes
// the wire traffic order for multi-field reads and writes.
type configTable []configField

func (t configTable) has(name string) bool {
	for _, f := range t {
		if f.name == name {
			return true
		}
	}
	return false
}

func (f configField) decode(resp string) (any, error) {
	switch f.kind {
	case fieldInt:
		v, err := wire.ParseFloat(resp)
		if err != nil {
			return nil, err
		}
		return int(math.Round(v)), nil
	case fieldFloat:
		return wire.ParseFloat(resp)
	case fieldBool:
		return wire.ParseBool(resp)
	default:
		return resp, nil
	}
}

func (f configField) encode(value any) (string, error) {
	switch f.kind {
	case fieldInt:
		switch v := value.(type) {
		case int:
			return strconv.Itoa(v), nil
		case int64:
			return strconv.FormatInt(v, 10), nil
		case float64:
			return strconv.Itoa(int(math.Round(v))), nil
		}
	case fieldFloat:
		if n, err := wire.NumberFrom(value); err == nil && n.Sentinel == "" {
			return strconv.FormatFloat(n.Value, 'g', -1, 64), nil
		}
	case fieldBool:
		if b, ok := value.(bool); ok {
			return wire.FormatBool(b), nil
		}
	default:
		if s, ok := value.(string); ok {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: configuration value %q = %v", instrument.ErrValueNotSupported, f.name, value)
}

var spurSettings = configTable{
	{"list", fieldString, "LIST"},
	{"mode", fieldString, "MODE"},
	{"optimization", fieldString, "OPT"},
	{"points_count", fieldString, "POIN:COUN"},
	{"reference", fieldString, "REF"},
	{"reference_power", fieldFloat, "REF:MAN:POW"},
}

var spurCarrierSettings = configTable{
	{"bandwidth", fieldFloat, "BAND"},
	{"bandwidth_integration", fieldFloat, "BAND:INT"},
	{"bandwidth_resolution", fieldFloat, "BAND:RES"},
	{"bandwidth_resolution_auto", fieldBool, "BAND:RES:AUTO"},
}

var spurTraceSettings = configTable{
	{"count", fieldInt, "COUN"},
	{"count_enabled", fieldBool, "COUN:ENAB"},
	{"enabled", fieldBool, "ENAB"},
	{"frozen", fieldBool, "FRE"},
	{"function", fieldString, "FUNC"},
	{"selected", fieldInt, "SEL"},
}

var spurRangeSettings = configTable{
	{"video_bandwidth", fieldFloat, "BAND:VID"},
	{"video_bandwidth_enabled", fieldBool, "BAND:VID:STAT"},
	{"detection", fieldString, "DET"},
	{"excursion", fieldFloat, "EXC"},
	{"filter_shape", fieldString, "FILT:SHAP"},
	{"filter_shape_bandwidth", fieldFloat, "FILT:SHAP:BAND"},
	{"filter_shape_bandwidth_auto", fieldBool, "FILT:SHAP:BAND:AUTO"},
	{"frequency_start", fieldFloat, "FREQ:STAR"},
	{"frequency_stop", fieldFloat, "FREQ:STOP"},
	{"limit_absolute_start", fieldFloat, "LIM:ABS:STAR"},
	{"limit_absolute_stop", fieldFloat, "LIM:ABS:STOP"},
	{"limit_relative_start", fieldFloat, "LIM:REL:STAR"},
	{"limit_relative_stop", fieldFloat, "LIM:REL:STOP"},
	{"limit_mask", fieldString, "LIM:MASK"},
	{"state", fieldBool, "STAT"},
	{"threshold", fieldFloat, "THR"},
}

var displaySpurSettings = configTable{
	{"marker_show_state", fieldBool, "MARK:SHOW:STAT"},
	{"scale_log_state", fieldBool, "SCAL:LOG:STAT"},
	{"select_number", fieldInt, "SEL:NUMB"},
	{"graticule_grid", fieldBool, "WIND:TRAC:GRAT:GRID:STAT"},
	{"x_start", fieldFloat, "X:STAR"},
	{"x_stop", fieldFloat, "X:STOP"},
	{"y_range", fieldFloat, "Y"},
	{"y_offset", fieldFloat, "Y:OFFS"},
}

func (d *Driver) registerSpurious() error {
	names := make([]string, 0, traceCount+1)
	for i := 0; i < traceCount; i++ {
		names = append(names, fmt.Sprintf("Trace %d", i+1))
	}
	names = append(names, "Math")
	cols := d.core.Collections()
	if err := cols.Define(CollectionTraces, names); err != nil {
		return err
	}
	ranges := make([]string, 0, len(rangeNames))
	for _, r := range rangeNames {
		ranges = append(ranges, string(r))
	}
	if err := cols.Define(CollectionRanges, ranges); err != nil {
		return err
	}

	reg := d.core.Attributes()
	reg.MustRegister(instrument.Descriptor{
		Path:       PathTraceType,
		Group:      "traces",
		Collection: CollectionTraces,
		Doc:        "Accumulation type of the trace. One of: " + fmt.Sprint(traceTypes) + ".",
		Local:      true,
		Default:    TraceTypeClearWrite,
		Get: func(index int) (any, error) {
			v, _ := d.core.Cache().Read(instrument.Key{Path: PathTraceType, Index: index})
			return v, nil
		},
		Set: func(index int, value any) error {
			s, ok := value.(string)
			if !ok || !validTraceType(s) {
				return fmt.Errorf("%w: trace type %v", instrument.ErrValueNotSupported, value)
			}
			d.core.Cache().Write(instrument.Key{Path: PathTraceType, Index: index}, s)
			return nil
		},
	})
	if err := reg.SeedLocalIndexed(PathTraceType); err != nil {
		return err
	}

	d.registerConfig(PathSpuriousConfig, "spurious",
		"Spurious measurement settings.", spurSettings, "",
		func(int) string { return spurPrefix })
	d.registerConfig(PathSpuriousCarrierConfig, "spurious",
		"Carrier settings of the spurious measurement.", spurCarrierSettings, "",
		func(int) string { return spurCarrierPrefix })
	d.registerConfig(PathSpuriousRangeConfig, "spurious",
		"Per-range settings of the spurious measurement.", spurRangeSettings, CollectionRanges,
		func(i int) string { return fmt.Sprintf(spurRangePrefix, i+1) })
	d.registerConfig(PathSpuriousTraceConfig, "spurious",
		"Per-trace settings of the spurious measurement.", spurTraceSettings, CollectionTraces,
		func(i int) string { return fmt.Sprintf(spurTracePrefix, i+1) })
	d.registerConfig(PathDisplaySpuriousConfig, "display",
		"Display settings of the spurious measurement.", displaySpurSettings, "",
		func(int) string { return displaySpurPrefix })
	return nil
}

// registerConfig wires a table-driven configuration block. prefix receives
// the resolved item index for indexed blocks. Blocks are read and written
// live; their fields never enter the value cache.
func (d *Driver) registerConfig(path instrument.Path, group, doc string, table configTable, collection string, prefix func(index int) string) {
	d.core.Attributes().MustRegister(instrument.Descriptor{
		Path:       path,
		Group:      group,
		Collection: collection,
		Doc:        doc,
		Get: func(index int) (any, error) {
			return d.readConfig(table, prefix(index))
		},
		Set: func(index int, value any) error {
			values, ok := value.(map[string]any)
			if !ok {
				return fmt.Errorf("%w: %q wants map[string]any, got %T", instrument.ErrValueNotSupported, path, value)
			}
			return d.writeConfig(table, prefix(index), values)
		},
	})
}

func (d *Driver) readConfig(table configTable, prefix string) (map[string]any, error) {
	out := make(map[string]any, len(table))
	if d.core.Simulated() {
		return out, nil
	}
	for _, f := range table {
		resp, err := d.sess.Queryf("%s:%s?", prefix, f.suffix)
		if err != nil {
			return nil, err
		}
		v, err := f.decode(resp)
		if err != nil {
			return nil, err
		}
		out[f.name] = v
	}
	return out, nil
}

// writeConfig programs the given fields of a configuration block. Every
// key is validated before the first write so an unknown key cannot leave
// the block half-programmed.
func (d *Driver) writeConfig(table configTable, prefix string, values map[string]any) error {
	cmds := make([]string, 0, len(values))
	for _, f := range table {
		v, ok := values[f.name]
		if !ok {
			continue
		}
		token, err := f.encode(v)
		if err != nil {
			return err
		}
		cmds = append(cmds, fmt.Sprintf("%s:%s %s", prefix, f.suffix, token))
	}
	if len(cmds) != len(values) {
		for name := range values {
			if !table.has(name) {
				return fmt.Errorf("%w: configuration key %q", instrument.ErrValueNotSupported, name)
			}
		}
	}
	if d.core.Simulated() {
		return nil
	}
	for _, cmd := range cmds {
		if err := d.sess.Command(cmd); err != nil {
			return err
		}
	}
	return nil
}

// SpuriousPreset switches the instrument into the spurious measurement
// application.
func (d *Driver) SpuriousPreset() error {
	if err := d.core.RequireInitialized(); err != nil {
		return err
	}
	if d.core.Simulated() {
		return nil
	}
	return d.sess.Command("SYST:PRES:APPL SPUR")
}

// TraceCountReset clears the accumulated hold or average data of one
// spurious trace and restarts its counter.
func (d *Driver) TraceCountReset(sel instrument.Selector) error {
	if err := d.core.RequireInitialized(); err != nil {
		return err
	}
	idx, err := d.core.Collections().Resolve(CollectionTraces, sel)
	if err != nil {
		return err
	}
	if d.core.Simulated() {
		return nil
	}
	return d.sess.Commandf("TRAC%d:SPUR:COUN:RES", idx+1)
}
