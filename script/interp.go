package script

import (
	"fmt"
	"os"
	"reflect"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/miken90/gonode/action"
	"github.com/miken90/gonode/device"
	"github.com/miken90/gonode/keys"
	"github.com/miken90/gonode/mapper"
	"github.com/miken90/gonode/supervisor"
	"github.com/miken90/gonode/xerrors"
	"github.com/miken90/gonode/xkb"
)

// Symbols is the gonode package's exported surface, registered into
// yaegi's symbol table via Use so a script can `import "gonode"` and
// call it like any compiled package.
var Symbols = interp.Exports{
	"gonode/gonode": {
		"NewEnv":            reflect.ValueOf(New),
		"Env":               reflect.ValueOf((*Env)(nil)),
		"Capabilities":      reflect.ValueOf(device.Capabilities{}),
		"Trigger":           reflect.ValueOf(mapper.Trigger{}),
		"Target":            reflect.ValueOf(mapper.Target{}),
		"TargetSequence":    reflect.ValueOf(mapper.TargetSequence),
		"TargetCallback":    reflect.ValueOf(mapper.TargetCallback),
		"TargetNop":         reflect.ValueOf(mapper.TargetNop),
		"ClickToClick":      reflect.ValueOf(mapper.ClickToClick),
		"ClickToAction":     reflect.ValueOf(mapper.ClickToAction),
		"ActionToClick":     reflect.ValueOf(mapper.ActionToClick),
		"ActionToSequence":  reflect.ValueOf(mapper.ActionToSequence),
		"ParseKey":          reflect.ValueOf(action.ParseKey),
		"ParseSequence":     reflect.ValueOf(action.ParseSequence),
		"Lookup":            reflect.ValueOf(keys.Lookup),
		"XKB":               reflect.ValueOf(xkb.New),
		"DefaultXKBParams":  reflect.ValueOf(xkb.DefaultParams),
	},
}

// Host embeds a yaegi interpreter preloaded with the standard library
// and the gonode symbol table.
type Host struct {
	interp *interp.Interpreter
	env    *Env
}

// NewHost builds an interpreter bound to a fresh Env under sup.
func NewHost(sup *supervisor.Supervisor) (*Host, error) {
	i := interp.New(interp.Options{})

	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, xerrors.Platform("script.NewHost", fmt.Errorf("loading stdlib symbols: %w", err))
	}

	if err := i.Use(Symbols); err != nil {
		return nil, xerrors.Platform("script.NewHost", fmt.Errorf("loading gonode symbols: %w", err))
	}

	env := New(sup)

	if _, err := i.Eval(`import "gonode"`); err != nil {
		return nil, xerrors.Platform("script.NewHost", fmt.Errorf("preloading gonode: %w", err))
	}

	return &Host{interp: i, env: env}, nil
}

// RunFile evaluates a script file. The script is expected to define a
// `Run(env *gonode.Env)` function; RunFile calls it with this host's
// Env after evaluation.
func (h *Host) RunFile(path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return xerrors.Platform("script.RunFile", fmt.Errorf("reading %s: %w", path, err))
	}

	if _, err := h.interp.Eval(string(src)); err != nil {
		return xerrors.Platform("script.RunFile", fmt.Errorf("evaluating %s: %w", path, err))
	}

	v, err := h.interp.Eval("Run")
	if err != nil {
		return xerrors.Platform("script.RunFile", fmt.Errorf("%s defines no Run function: %w", path, err))
	}

	fn, ok := v.Interface().(func(*Env))
	if !ok {
		return xerrors.Platform("script.RunFile", fmt.Errorf("%s: Run has wrong signature, want func(*gonode.Env)", path))
	}

	fn(h.env)

	return nil
}

// Env returns the host's Env, for a caller that wants to wire things up
// from Go before handing control to the script (or in place of one).
func (h *Host) Env() *Env { return h.env }
