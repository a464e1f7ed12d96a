// Package qmkeypath implements a deferred-accessor value: a KeyPath
// records property/subscript/call components against an as-yet-unknown
// root and resolves them once a concrete root is supplied. Go has no
// dunder-override trickery, so components are recorded through explicit
// builder calls (Prop, Index, Call) rather than operator interception —
// the late-binding semantic is otherwise unchanged.
package qmkeypath

import "fmt"

// ComponentKind tags a KeyPath component. Closed union: switch on Kind,
// never type-assert across packages.
type ComponentKind int

const (
	KindProperty ComponentKind = iota
	KindSubscript
	KindCall
)

// Component is one step of a deferred accessor chain.
type Component struct {
	Kind ComponentKind

	// KindProperty
	Name string

	// KindSubscript
	Key any

	// KindCall
	Args       []any
	Kwargs     map[string]any
	IncludeCtx bool
}

// KeyPath is an un-rooted accessor chain. The zero value (Root()) is the
// identity key-path `_`.
type KeyPath struct {
	components []Component
}

// Root returns the identity key-path.
func Root() KeyPath {
	return KeyPath{}
}

func (kp KeyPath) with(c Component) KeyPath {
	next := make([]Component, len(kp.components)+1)
	copy(next, kp.components)
	next[len(kp.components)] = c
	return KeyPath{components: next}
}

// Prop records a `.prop` access.
func (kp KeyPath) Prop(name string) KeyPath {
	return kp.with(Component{Kind: KindProperty, Name: name})
}

// Index records a `[key]` access.
func (kp KeyPath) Index(key any) KeyPath {
	return kp.with(Component{Kind: KindSubscript, Key: key})
}

// Call records a `(args...)` invocation. When includeCtx is true, the
// resolver passes a Ctx describing the resolution in progress to whatever
// callable is found at this point in the chain.
func (kp KeyPath) Call(args []any, kwargs map[string]any, includeCtx bool) KeyPath {
	return kp.with(Component{Kind: KindCall, Args: args, Kwargs: kwargs, IncludeCtx: includeCtx})
}

// Components exposes the recorded chain for resolvers/serializers.
func (kp KeyPath) Components() []Component { return kp.components }

func (kp KeyPath) String() string {
	s := "_"
	for _, c := range kp.components {
		switch c.Kind {
		case KindProperty:
			s += "." + c.Name
		case KindSubscript:
			s += fmt.Sprintf("[%v]", c.Key)
		case KindCall:
			s += fmt.Sprintf("(%v)", c.Args)
		}
	}
	return s
}

// BoundKeyPath is returned when a function receiving KeyPath arguments is
// invoked with at least one unresolved KeyPath argument: it records the
// callable to invoke, plus the deferred call, instead of evaluating
// eagerly.
type BoundKeyPath struct {
	Root      any
	Call      Component
	RootKnown bool
}

// IterItemKeyPath is the placeholder returned when iteration is forced on
// a KeyPath; it expands to multiple values at its parent's level during
// resolution (ResolveAllNested).
type IterItemKeyPath struct {
	Source KeyPath
}

// Ctx is passed to a callee when a Call component has IncludeCtx set.
type Ctx struct {
	Root             any
	Current          any
	FullKeyPath      KeyPath
	CurrentComponent Component
	RemainingKeyPath KeyPath
}

// Accessor is implemented by a root value that knows how to apply
// property/subscript/call components against itself. Concrete Model/
// ColumnExpression roots implement this to integrate with resolution.
type Accessor interface {
	ApplyProperty(name string) (any, error)
	ApplySubscript(key any) (any, error)
	ApplyCall(args []any, kwargs map[string]any, ctx *Ctx) (any, error)
}

// Resolve applies kp's components against root, starting from root itself
// (or from a BoundKeyPath's own recorded root). If the final value is
// itself a KeyPath, resolution recurses, giving expressions captured
// before a model exists their late-binding semantic.
func Resolve(root any, v any) (any, error) {
	bkp, isBound := v.(BoundKeyPath)
	kp, isPlain := v.(KeyPath)
	if !isBound && !isPlain {
		return v, nil
	}

	var current any = root
	var components []Component
	if isBound {
		current = bkp.Root
		components = []Component{bkp.Call}
	} else {
		components = kp.components
	}

	full := KeyPath{components: components}
	for i, c := range components {
		remaining := KeyPath{components: components[i+1:]}
		next, err := applyComponent(root, current, c, full, remaining)
		if err != nil {
			return nil, err
		}
		current = next
	}

	if _, ok := current.(KeyPath); ok {
		return Resolve(root, current)
	}
	if _, ok := current.(BoundKeyPath); ok {
		return Resolve(root, current)
	}
	return current, nil
}

func applyComponent(outerRoot, current any, c Component, full, remaining KeyPath) (any, error) {
	acc, ok := current.(Accessor)
	if !ok {
		return nil, fmt.Errorf("qmkeypath: root %T does not implement Accessor, cannot apply %v", current, c)
	}
	switch c.Kind {
	case KindProperty:
		return acc.ApplyProperty(c.Name)
	case KindSubscript:
		key, err := Resolve(outerRoot, c.Key)
		if err != nil {
			return nil, err
		}
		return acc.ApplySubscript(key)
	case KindCall:
		args := make([]any, len(c.Args))
		for i, a := range c.Args {
			rv, err := Resolve(outerRoot, a)
			if err != nil {
				return nil, err
			}
			args[i] = rv
		}
		kwargs := make(map[string]any, len(c.Kwargs))
		for k, a := range c.Kwargs {
			rv, err := Resolve(outerRoot, a)
			if err != nil {
				return nil, err
			}
			kwargs[k] = rv
		}
		var ctxPtr *Ctx
		if c.IncludeCtx {
			ctxPtr = &Ctx{Root: outerRoot, Current: current, FullKeyPath: full, CurrentComponent: c, RemainingKeyPath: remaining}
		}
		return acc.ApplyCall(args, kwargs, ctxPtr)
	default:
		return nil, fmt.Errorf("qmkeypath: unknown component kind %d", c.Kind)
	}
}

// ResolveAllNested walks slices and maps, resolving any KeyPath found.
// IterItemKeyPath values expand to multiple entries at their parent's
// level.
func ResolveAllNested(root any, v any) (any, error) {
	switch t := v.(type) {
	case KeyPath, BoundKeyPath:
		return Resolve(root, t)
	case IterItemKeyPath:
		resolved, err := Resolve(root, t.Source)
		if err != nil {
			return nil, err
		}
		return resolved, nil
	case []any:
		out := make([]any, 0, len(t))
		for _, item := range t {
			if iik, ok := item.(IterItemKeyPath); ok {
				resolved, err := Resolve(root, iik.Source)
				if err != nil {
					return nil, err
				}
				if expanded, ok := resolved.([]any); ok {
					out = append(out, expanded...)
					continue
				}
				out = append(out, resolved)
				continue
			}
			rv, err := ResolveAllNested(root, item)
			if err != nil {
				return nil, err
			}
			out = append(out, rv)
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			rv, err := ResolveAllNested(root, item)
			if err != nil {
				return nil, err
			}
			out[k] = rv
		}
		return out, nil
	default:
		return v, nil
	}
}

// DeferKeypathArgs returns a BoundKeyPath recording fn and the call when
// any argument is a KeyPath/BoundKeyPath, instead of evaluating fn.
// Otherwise it returns (nil, false) without calling fn.
func DeferKeypathArgs(fn any, args []any, kwargs map[string]any) (any, bool) {
	for _, a := range args {
		if isDeferred(a) {
			return BoundKeyPath{Root: fn, Call: Component{Kind: KindCall, Args: args, Kwargs: kwargs}}, true
		}
	}
	for _, a := range kwargs {
		if isDeferred(a) {
			return BoundKeyPath{Root: fn, Call: Component{Kind: KindCall, Args: args, Kwargs: kwargs}}, true
		}
	}
	return nil, false
}

func isDeferred(v any) bool {
	switch v.(type) {
	case KeyPath, BoundKeyPath:
		return true
	default:
		return false
	}
}
