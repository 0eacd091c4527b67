package remote

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/Binject/debug/pe"

	"github.com/Norgate-AV/passthru/internal/interfaces"
)

// Resolver names accepted by NewSymbolResolver
const (
	ResolverExport = "export"
	ResolverLocal  = "local"
)

// SymbolResolver finds the address of a companion export inside a foreign
// process. release frees anything held for the lookup and is never nil on
// success. A missing export is reported with ErrSymbolNotFound.
type SymbolResolver interface {
	Resolve(process interfaces.Handle, modulePath, symbol string) (addr uintptr, release func(), err error)
}

// NewSymbolResolver returns the resolver registered under name
func NewSymbolResolver(name string, modules interfaces.ModuleAPI) (SymbolResolver, error) {
	switch name {
	case "", ResolverExport:
		return NewExportOffsetResolver(modules), nil
	case ResolverLocal:
		return &LocalAddressResolver{Modules: modules}, nil
	default:
		return nil, fmt.Errorf("unknown symbol resolver %q", name)
	}
}

// ExportTable maps export names to their relative virtual addresses
type ExportTable map[string]uint32

// ReadExports parses the export directory of the PE image at path
func ReadExports(path string) (ExportTable, error) {
	f, err := pe.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image %s: %w", path, err)
	}
	defer f.Close()

	exports, err := f.Exports()
	if err != nil {
		return nil, fmt.Errorf("read exports of %s: %w", path, err)
	}

	table := make(ExportTable, len(exports))
	for _, exp := range exports {
		if exp.Name != "" {
			table[exp.Name] = exp.VirtualAddress
		}
	}

	return table, nil
}

// ExportOffsetResolver computes remoteBase + RVA from the module file on
// disk and the module list of the target process. The module is never
// loaded into the current process.
type ExportOffsetResolver struct {
	Modules interfaces.ModuleAPI
	Exports func(path string) (ExportTable, error)

	mu    sync.Mutex
	cache map[string]ExportTable
}

// NewExportOffsetResolver creates a resolver that reads exports with ReadExports
func NewExportOffsetResolver(modules interfaces.ModuleAPI) *ExportOffsetResolver {
	return &ExportOffsetResolver{Modules: modules, Exports: ReadExports}
}

func (r *ExportOffsetResolver) Resolve(process interfaces.Handle, modulePath, symbol string) (uintptr, func(), error) {
	table, err := r.table(modulePath)
	if err != nil {
		return 0, nil, err
	}

	rva, ok := table[symbol]
	if !ok {
		return 0, nil, fmt.Errorf("%s in %s: %w", symbol, baseName(modulePath), ErrSymbolNotFound)
	}

	base, err := ModuleBase(r.Modules, process, modulePath)
	if err != nil {
		return 0, nil, err
	}

	return base + uintptr(rva), func() {}, nil
}

func (r *ExportOffsetResolver) table(path string) (ExportTable, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.cache[path]; ok {
		return t, nil
	}

	t, err := r.Exports(path)
	if err != nil {
		return nil, err
	}

	if r.cache == nil {
		r.cache = make(map[string]ExportTable)
	}
	r.cache[path] = t

	return t, nil
}

// LocalAddressResolver loads the module into the current process and
// returns the local address of the export. This assumes the module is
// mapped at the same base in the target process.
type LocalAddressResolver struct {
	Modules interfaces.ModuleAPI
}

func (r *LocalAddressResolver) Resolve(_ interfaces.Handle, modulePath, symbol string) (uintptr, func(), error) {
	module, err := r.Modules.LoadLocal(modulePath)
	if err != nil {
		return 0, nil, fmt.Errorf("load %s locally: %w", modulePath, err)
	}

	release := func() { _ = r.Modules.FreeLocal(module) }

	addr, err := r.Modules.ProcAddress(module, symbol)
	if err != nil || addr == 0 {
		release()
		return 0, nil, errors.Join(fmt.Errorf("%s in %s: %w", symbol, baseName(modulePath), ErrSymbolNotFound), err)
	}

	return addr, release, nil
}

// ErrModuleNotResident is returned when the module is absent from the target process
var ErrModuleNotResident = errors.New("module not loaded in target process")

// ModuleBase returns the base address of modulePath in process, matching
// base names case-insensitively.
func ModuleBase(modules interfaces.ModuleAPI, process interfaces.Handle, modulePath string) (uintptr, error) {
	list, err := modules.EnumProcessModules(process)
	if err != nil {
		return 0, fmt.Errorf("enumerate modules: %w", err)
	}

	name := baseName(modulePath)
	for _, m := range list {
		if strings.EqualFold(m.Name, name) {
			return m.Base, nil
		}
	}

	return 0, fmt.Errorf("%s: %w", name, ErrModuleNotResident)
}

// baseName accepts both separators so Windows paths split on any host
func baseName(path string) string {
	if i := strings.LastIndexAny(path, `\/`); i >= 0 {
		return path[i+1:]
	}

	return path
}
