package pipeline

// CommandHandler executes one meta-command with its raw argument string
// (everything after the command name) and reports whether the REPL loop
// should continue.
type CommandHandler func(args string) (cont bool, err error)

// CommandRegistry dispatches the meta-command vocabulary of spec.md §6
// that C7 itself does not recognize as one of its core line shapes
// (#include, #return, #eval, #lazyeval, #batch_eval): #includedir,
// #compilerdefine, #lib, #loadprebuilt, printall, evalall, and exit.
//
// spec.md §1 treats the build-flags command *vocabulary* as an external
// collaborator; this registry is that collaborator, kept inside the
// pipeline package only because this module has no separate CLI front
// end to own it. A real deployment may replace or extend it entirely
// without touching Pipeline.Execute.
type CommandRegistry struct {
	handlers map[string]CommandHandler
}

// NewCommandRegistry returns an empty registry.
func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{handlers: map[string]CommandHandler{}}
}

// Register installs handler for the exact command name (including any
// leading "#").
func (r *CommandRegistry) Register(name string, handler CommandHandler) {
	r.handlers[name] = handler
}

// Dispatch looks up name and invokes its handler with args. ok reports
// whether name was recognized at all.
func (r *CommandRegistry) Dispatch(name, args string) (ok bool, cont bool, err error) {
	h, found := r.handlers[name]
	if !found {
		return false, true, nil
	}
	cont, err = h(args)
	return true, cont, err
}

// DefaultRegistry wires the standard vocabulary of spec.md §6 against p:
// #includedir, #compilerdefine, #lib mutate p's driver configuration;
// printall/evalall/exit are the bare-word commands; #loadprebuilt is the
// supplemented feature of SPEC_FULL.md §4.
func DefaultRegistry(p *Pipeline) *CommandRegistry {
	r := NewCommandRegistry()
	r.Register("#includedir", func(args string) (bool, error) {
		p.Driver.IncludeDirs = append(p.Driver.IncludeDirs, args)
		return true, nil
	})
	r.Register("#compilerdefine", func(args string) (bool, error) {
		p.Driver.Defines = append(p.Driver.Defines, args)
		return true, nil
	})
	r.Register("#lib", func(args string) (bool, error) {
		p.Driver.Libs = append(p.Driver.Libs, args)
		return true, nil
	})
	r.Register("#loadprebuilt", func(args string) (bool, error) {
		return true, p.LoadPrebuilt(args)
	})
	r.Register("printall", func(string) (bool, error) {
		return true, p.Sink.CallAll()
	})
	r.Register("evalall", func(string) (bool, error) {
		return true, p.EvalAll()
	})
	r.Register("exit", func(string) (bool, error) {
		return false, nil
	})
	return r
}

func splitCommand(line string) (name, args string) {
	for i, r := range line {
		if r == ' ' || r == '\t' {
			return line[:i], trimLeftSpace(line[i+1:])
		}
	}
	return line, ""
}

func trimLeftSpace(s string) string {
	for i, r := range s {
		if r != ' ' && r != '\t' {
			return s[i:]
		}
	}
	return ""
}
