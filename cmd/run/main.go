// Command run loads an il module into the interpreter and calls its methods.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/wippyai/weave/vm"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(argv []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		modulePath  = fs.String("module", "", "Path to the il module")
		typeName    = fs.String("type", "", "Type declaring the method (Ns.Outer/Inner for nested types)")
		typeArgs    = fs.String("targs", "", "Type arguments for a generic type (int32,string)")
		methodName  = fs.String("method", "", "Method to call")
		callArgs    = fs.String("args", "", "Comma-separated arguments; null for the null reference")
		weave       = fs.Bool("weave", false, "Weave the module in memory before loading it")
		list        = fs.Bool("list", false, "List callable methods and exit")
		disasm      = fs.Bool("disasm", false, "Print the module listing and exit")
		interactive = fs.Bool("i", false, "Interactive mode with TUI")
	)
	if err := fs.Parse(argv); err != nil {
		return 2
	}
	if *modulePath == "" {
		fmt.Fprintln(stderr, "Usage: run -module <file> -type <type> -method <name> [-args a,b] [-targs T,U] [-weave]")
		fmt.Fprintln(stderr, "       run -module <file> -list")
		fmt.Fprintln(stderr, "       run -module <file> -disasm")
		fmt.Fprintln(stderr, "       run -module <file> -i  (interactive mode)")
		return 2
	}

	ctx := context.Background()
	opts := sessionOptions{weave: *weave, log: newLogger(stderr)}
	defer opts.log.Sync()

	if *interactive {
		if err := runInteractive(ctx, *modulePath, opts); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}

	s, err := openSession(ctx, *modulePath, opts)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	switch {
	case *disasm:
		err = s.module.Dump(stdout)
	case *list || *methodName == "":
		err = listMethods(s, stdout, *typeName, *typeArgs)
	default:
		err = callMethod(ctx, s, stdout, *typeName, *typeArgs, *methodName, *callArgs)
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func listMethods(s *session, w io.Writer, typeName, typeArgs string) error {
	targs, err := parseTypeArgs(typeArgs, s.module.Scope)
	if err != nil {
		return err
	}
	entries, err := s.entries(typeName, targs)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Module: %s (%s)\n", s.module.Name, s.module.MVID)
	if s.woven {
		fmt.Fprintln(w, "Woven: yes")
	}
	fmt.Fprintf(w, "\nMethods:\n")
	width := terminalWidth(w)
	var last string
	for _, e := range entries {
		if e.class.Name != last {
			fmt.Fprintf(w, "  %s\n", e.class.Name)
			last = e.class.Name
		}
		fmt.Fprintln(w, truncate("    "+signature(e.method), width))
	}
	return nil
}

func callMethod(ctx context.Context, s *session, w io.Writer, typeName, typeArgs, method, args string) error {
	if typeName == "" {
		return fmt.Errorf("-type is required with -method")
	}
	targs, err := parseTypeArgs(typeArgs, s.module.Scope)
	if err != nil {
		return err
	}
	cls, err := s.inst.Type(typeName, targs...)
	if err != nil {
		return err
	}
	res, err := s.call(ctx, cls, method, splitArgs(args))
	if err != nil {
		return err
	}
	fmt.Fprintln(w, formatResult(res))
	return nil
}

// terminalWidth returns the width of w when it is a terminal, or 0.
func terminalWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return 0
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 0
	}
	return width
}

func truncate(s string, width int) string {
	if width <= 1 || len(s) <= width {
		return s
	}
	return s[:width-1] + "…"
}

func signature(m *vm.Method) string {
	d := m.Descriptor()
	var b strings.Builder
	if d.Static {
		b.WriteString("static ")
	}
	b.WriteString(d.Name)
	b.WriteByte('(')
	for i, p := range d.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p)
		if name := m.Def.Params[i].Name; name != "" {
			b.WriteByte(' ')
			b.WriteString(name)
		}
	}
	b.WriteByte(')')
	if !d.ReturnsVoid() {
		b.WriteString(" : ")
		b.WriteString(d.Return)
	}
	return b.String()
}
