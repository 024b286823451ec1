package vm

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/weave/errors"
	"github.com/wippyai/weave/hostlib"
	"github.com/wippyai/weave/intercept"
	"github.com/wippyai/weave/il"
)

// Class is a closed type: a definition together with its generic
// arguments. Each closed instantiation has its own static storage and
// type initializer.
type Class struct {
	inst *Instance
	Def  *il.TypeDef
	Args []*il.TypeRef
	Base *Class
	// Name is the display name, e.g. Tests.InterceptMe`2<int32,string>.
	Name string
	Ref  *il.TypeRef

	key    string
	ifaces []*Class
	slots  map[*il.FieldDef]int
	nslots int

	smu     sync.RWMutex
	statics map[*il.FieldDef]any

	methods sync.Map // *il.MethodDef -> *Method
	vtable  sync.Map // *Method -> *Method
	calls   sync.Map // *il.MethodRef -> *Method

	init typeInit
}

func (c *Class) String() string { return c.Name }

// is reports whether c is the host library type fullName.
func (c *Class) is(fullName string) bool {
	return c.Def.FullName() == fullName && c.Def.Scope() == hostlib.Scope
}

// assignableTo reports whether instances of c are instances of target.
func (c *Class) assignableTo(target *Class) bool {
	for x := c; x != nil; x = x.Base {
		if x == target {
			return true
		}
		for _, i := range x.ifaces {
			if i == target {
				return true
			}
		}
	}
	return false
}

// derivesFrom reports whether c is or inherits the host library type fullName.
func (c *Class) derivesFrom(fullName string) bool {
	for x := c; x != nil; x = x.Base {
		if x.is(fullName) {
			return true
		}
	}
	return false
}

func (c *Class) fieldSlot(name string) (*il.FieldDef, int) {
	for x := c; x != nil; x = x.Base {
		if fd := x.Def.Field(name); fd != nil && !fd.IsStatic() {
			return fd, c.slots[fd]
		}
	}
	return nil, -1
}

// newObject allocates an instance with every field at its zero value.
func (c *Class) newObject() *Object {
	o := &Object{Class: c, fields: make([]any, c.nslots)}
	for x := c; x != nil; x = x.Base {
		for _, fd := range x.Def.Fields {
			if fd.IsStatic() {
				continue
			}
			o.fields[c.slots[fd]] = zero(fd.Type.Subst(x.Args, nil))
		}
	}
	return o
}

// owner returns the class in c's chain that declares def.
func (c *Class) owner(def *il.TypeDef) *Class {
	for x := c; x != nil; x = x.Base {
		if x.Def == def {
			return x
		}
	}
	return nil
}

// staticOwner returns the class holding the storage of the static field fd.
func (c *Class) staticOwner(fd *il.FieldDef) *Class {
	if o := c.owner(fd.DeclaringType); o != nil {
		return o
	}
	return c
}

func (c *Class) static(fd *il.FieldDef) any {
	c.smu.RLock()
	defer c.smu.RUnlock()
	return c.statics[fd]
}

func (c *Class) setStatic(fd *il.FieldDef, v any) {
	c.smu.Lock()
	c.statics[fd] = v
	c.smu.Unlock()
}

// Static returns the value of the named static field without running the
// type initializer.
func (c *Class) Static(name string) (any, bool) {
	fd := c.Def.Field(name)
	if fd == nil || !fd.IsStatic() {
		return nil, false
	}
	return c.static(fd), true
}

// method returns the runtime method for def, which c.Def declares.
func (c *Class) method(def *il.MethodDef) *Method {
	if m, ok := c.methods.Load(def); ok {
		return m.(*Method)
	}
	m := &Method{Class: c, Def: def}
	if def.IsNative() {
		m.native = natives.lookup(def)
	}
	actual, _ := c.methods.LoadOrStore(def, m)
	return actual.(*Method)
}

// Methods returns the methods c declares.
func (c *Class) Methods() []*Method {
	out := make([]*Method, len(c.Def.Methods))
	for i, md := range c.Def.Methods {
		out[i] = c.method(md)
	}
	return out
}

// Lookup returns the methods named name with argc parameters, declared by c
// or inherited, most derived first.
func (c *Class) Lookup(name string, argc int) []*Method {
	var out []*Method
	for x := c; x != nil; x = x.Base {
		for _, md := range x.Def.Methods {
			if md.Name == name && len(md.Params) == argc {
				out = append(out, x.method(md))
			}
		}
	}
	return out
}

// dispatch selects the implementation of target for receivers of class c.
func (c *Class) dispatch(target *Method) (*Method, error) {
	if !target.Def.IsVirtual() {
		return target, nil
	}
	if m, ok := c.vtable.Load(target); ok {
		return m.(*Method), nil
	}
	found := c.findOverride(target.Def)
	if found == nil {
		if target.Def.IsAbstract() {
			return nil, errors.New(errors.PhaseRuntime, errors.KindResolution).
				Type(c.Name).
				Member(target.Def.Name).
				Detail("no implementation of %s", target).
				Build()
		}
		found = target
	}
	if len(target.Args) > 0 {
		return found.instantiate(target.Args), nil
	}
	c.vtable.Store(target, found)
	return found, nil
}

func (c *Class) findOverride(td *il.MethodDef) *Method {
	iface := td.DeclaringType != nil && td.DeclaringType.IsInterface()
	for x := c; x != nil; x = x.Base {
		for _, md := range x.Def.Methods {
			if md == td {
				return x.method(md)
			}
			if !md.IsVirtual() || md.IsStatic() {
				continue
			}
			for _, o := range md.Overrides {
				if d, err := c.inst.res.ResolveMethod(o); err == nil && d == td {
					return x.method(md)
				}
			}
			if md.Name != td.Name || md.Attributes&il.MethodPrivate != 0 || !sameParams(md, td) {
				continue
			}
			if iface || md.Attributes&il.MethodNewSlot == 0 {
				return x.method(md)
			}
		}
	}
	return nil
}

func sameParams(a, b *il.MethodDef) bool {
	if len(a.Params) != len(b.Params) {
		return false
	}
	for i := range a.Params {
		if !a.Params[i].Type.Equal(b.Params[i].Type) {
			return false
		}
	}
	return true
}

// Method is a method of a closed class, with its generic method arguments
// when the definition is generic.
type Method struct {
	Class  *Class
	Def    *il.MethodDef
	Args   []*il.TypeRef
	native nativeFunc

	descOnce sync.Once
	desc     intercept.Method
}

func (m *Method) String() string { return m.Class.Name + "::" + m.Def.Name }

func (m *Method) subst(t *il.TypeRef) *il.TypeRef { return t.Subst(m.Class.Args, m.Args) }

// Params returns the closed parameter types, without the receiver.
func (m *Method) Params() []*il.TypeRef {
	ps := make([]*il.TypeRef, len(m.Def.Params))
	for i, p := range m.Def.Params {
		ps[i] = m.subst(p.Type)
	}
	return ps
}

// Return returns the closed return type.
func (m *Method) Return() *il.TypeRef {
	if m.Def.Return == nil {
		return il.Void()
	}
	return m.subst(m.Def.Return)
}

// Descriptor returns the method as package intercept describes it.
func (m *Method) Descriptor() intercept.Method {
	m.descOnce.Do(func() {
		ps := m.Params()
		names := make([]string, len(ps))
		for i, p := range ps {
			names[i] = displayName(p)
		}
		ret := ""
		if !m.Def.ReturnsVoid() {
			ret = displayName(m.Return())
		}
		m.desc = intercept.NewMethod(m.Class.Name, m.Def.Name, names, ret, m.Def.IsStatic())
	})
	return m.desc
}

func (m *Method) instantiate(args []*il.TypeRef) *Method {
	return &Method{Class: m.Class, Def: m.Def, Args: args, native: m.native}
}

const (
	initNone int32 = iota
	initRunning
	initDone
	initFailed
)

// typeInit is the one-time initialization barrier of a class. The thread
// running the initializer may re-enter the class; other threads wait.
type typeInit struct {
	state atomic.Int32
	mu    sync.Mutex
	owner *thread
	done  chan struct{}
	err   error
}

// ensureInit runs the type initializer of c once.
func (c *Class) ensureInit(th *thread) error {
	if c.init.state.Load() == initDone {
		return nil
	}
	ti := &c.init
	ti.mu.Lock()
	switch ti.state.Load() {
	case initDone:
		ti.mu.Unlock()
		return nil
	case initFailed:
		err := ti.err
		ti.mu.Unlock()
		return err
	case initRunning:
		if ti.owner == th {
			ti.mu.Unlock()
			return nil
		}
		done := ti.done
		ti.mu.Unlock()
		select {
		case <-done:
		case <-th.ctx.Done():
			return cancelled(th.ctx.Err())
		}
		return c.ensureInit(th)
	}
	ti.state.Store(initRunning)
	ti.owner = th
	ti.done = make(chan struct{})
	ti.mu.Unlock()

	err := c.runInit(th)

	ti.mu.Lock()
	if err != nil {
		ti.err = err
		ti.state.Store(initFailed)
	} else {
		ti.state.Store(initDone)
	}
	ti.owner = nil
	close(ti.done)
	ti.mu.Unlock()
	return err
}

func (c *Class) runInit(th *thread) error {
	cctor := c.Def.Method(il.CctorName)
	if cctor == nil || !cctor.IsStatic() {
		return nil
	}
	start := time.Now()
	if _, err := th.invoke(c.method(cctor), nil); err != nil {
		c.inst.log.Debug("type initializer failed", zap.String("type", c.Name), zap.Error(err))
		ex, ok := err.(*Exception)
		if !ok {
			return err
		}
		return th.in.newException(hostlib.TypeInitializationException,
			"The type initializer for '"+c.Name+"' threw an exception.", ex)
	}
	c.inst.log.Debug("type initialized",
		zap.String("type", c.Name),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}
