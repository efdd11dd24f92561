// R+ CLI - compiles and runs R+ programs on the bytecode VM
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/rplus-lang/rplus/bytecode"
	"github.com/rplus-lang/rplus/cache"
	"github.com/rplus-lang/rplus/compiler"
	"github.com/rplus-lang/rplus/manifest"
	"github.com/rplus-lang/rplus/vm"

	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("rplus")

func main() {
	verbose := flag.Bool("v", false, "Verbose output")
	interactive := flag.Bool("i", false, "Start interactive REPL")
	compileOnly := flag.Bool("c", false, "Compile only, write bytecode instead of running")
	output := flag.String("o", "", "Bytecode output path (used with -c)")
	disasm := flag.Bool("d", false, "Print disassembly instead of running")
	trace := flag.Bool("trace", false, "Trace instruction execution")
	noCache := flag.Bool("no-cache", false, "Bypass the compiled module cache")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: rplus [options] [file]\n\n")
		fmt.Fprintf(os.Stderr, "Compiles and runs an R+ source file (.rp) or a compiled module (.rpbc).\n")
		fmt.Fprintf(os.Stderr, "Without a file argument, the entry point from rplus.toml is used.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  rplus prog.rp           # Compile and run\n")
		fmt.Fprintf(os.Stderr, "  rplus -c -o prog.rpbc prog.rp\n")
		fmt.Fprintf(os.Stderr, "  rplus -d prog.rp        # Show disassembly\n")
		fmt.Fprintf(os.Stderr, "  rplus -i                # Start REPL\n")
	}
	flag.Parse()

	verbosity := 0
	if *verbose {
		verbosity = 1
	}
	commonlog.Configure(verbosity, nil)

	mf, err := manifest.FindAndLoad(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}

	if *interactive {
		runREPL(newMachine(mf, *trace))
		return
	}

	input := ""
	switch {
	case flag.NArg() > 0:
		input = flag.Arg(0)
	case mf != nil:
		input = mf.EntryPath()
	default:
		flag.Usage()
		os.Exit(2)
	}

	mod, err := loadModule(input, mf, *noCache)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *disasm {
		fmt.Print(mod.Disassemble())
		return
	}

	if *compileOnly {
		out := *output
		if out == "" && mf != nil && mf.Output.Bytecode != "" {
			out = filepath.Join(mf.Dir, mf.Output.Bytecode)
		}
		if out == "" {
			out = strings.TrimSuffix(input, filepath.Ext(input)) + ".rpbc"
		}
		if err := writeModule(mod, out); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	machine := newMachine(mf, *trace)
	if err := machine.LoadModule(mod); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := machine.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fault: %v\n", err)
		if *verbose {
			fmt.Fprintln(os.Stderr, machine.DumpRegisters())
		}
		os.Exit(1)
	}

	result, err := machine.Result()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(result)
}

// loadModule reads a compiled module directly or compiles source,
// consulting the project cache when the manifest enables it.
func loadModule(path string, mf *manifest.Manifest, noCache bool) (*bytecode.Module, error) {
	if filepath.Ext(path) == ".rpbc" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return bytecode.Deserialize(data)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	source := string(data)

	if noCache || mf == nil || !mf.Cache.Enabled {
		return compiler.CompileSource(source)
	}

	c, err := cache.Open(mf.CachePath())
	if err != nil {
		log.Warningf("cache unavailable: %s", err.Error())
		return compiler.CompileSource(source)
	}
	defer c.Close()

	if mod, err := c.Get(source); err == nil {
		log.Debugf("cache hit for %s", path)
		return mod, nil
	} else if !errors.Is(err, cache.ErrMiss) {
		log.Warningf("cache read failed: %s", err.Error())
	}

	mod, err := compiler.CompileSource(source)
	if err != nil {
		return nil, err
	}
	if err := c.Put(source, mod); err != nil {
		log.Warningf("cache write failed: %s", err.Error())
	}
	return mod, nil
}

func writeModule(mod *bytecode.Module, path string) error {
	data, err := mod.Serialize()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	log.Infof("wrote %s (%d bytes)", path, len(data))
	return nil
}

// newMachine builds a machine from the manifest's VM section, falling
// back to defaults for unset fields.
func newMachine(mf *manifest.Manifest, trace bool) *vm.Machine {
	cfg := vm.DefaultConfig()
	if mf != nil {
		if mf.VM.HeapSize > 0 {
			cfg.HeapSize = mf.VM.HeapSize
		}
		if mf.VM.StackSize > 0 {
			cfg.StackSize = mf.VM.StackSize
		}
		if mf.VM.MaxCallDepth > 0 {
			cfg.MaxCallDepth = mf.VM.MaxCallDepth
		}
	}
	m := vm.NewWithConfig(cfg)
	m.Trace = trace
	return m
}
