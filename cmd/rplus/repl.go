package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/rplus-lang/rplus/compiler"
	"github.com/rplus-lang/rplus/vm"
)

// runREPL reads R+ snippets from stdin and runs each one as a fresh
// program on the machine. A bare expression is wrapped in a return
// statement so its value prints; statements accumulate until braces
// balance.
func runREPL(machine *vm.Machine) {
	fmt.Println("R+ REPL (type 'exit' to quit, ':help' for commands)")
	fmt.Println()

	scanner := bufio.NewScanner(os.Stdin)
	lineBuffer := strings.Builder{}
	depth := 0

	for {
		if lineBuffer.Len() == 0 {
			fmt.Print(">> ")
		} else {
			fmt.Print(".. ")
		}

		if !scanner.Scan() {
			break
		}

		line := scanner.Text()

		if lineBuffer.Len() == 0 && (line == "exit" || line == "quit") {
			break
		}

		if lineBuffer.Len() == 0 && strings.HasPrefix(line, ":") {
			handleREPLCommand(machine, line)
			continue
		}

		if lineBuffer.Len() > 0 {
			lineBuffer.WriteString("\n")
		}
		lineBuffer.WriteString(line)
		depth += strings.Count(line, "{") - strings.Count(line, "}")

		// Keep reading while a block is open
		if depth > 0 {
			continue
		}
		depth = 0

		input := strings.TrimSpace(lineBuffer.String())
		lineBuffer.Reset()

		if input != "" {
			evalAndPrint(machine, input)
		}
	}

	fmt.Println()
}

// handleREPLCommand handles REPL meta-commands
func handleREPLCommand(machine *vm.Machine, cmd string) {
	switch cmd {
	case ":help", ":h", ":?":
		fmt.Println("REPL Commands:")
		fmt.Println("  :help, :h, :?     Show this help")
		fmt.Println("  :regs             Dump machine registers")
		fmt.Println("  :trace            Toggle instruction tracing")
		fmt.Println("  exit, quit        Exit REPL")
	case ":regs":
		fmt.Print(machine.DumpRegisters())
	case ":trace":
		machine.Trace = !machine.Trace
		if machine.Trace {
			fmt.Println("Tracing on")
		} else {
			fmt.Println("Tracing off")
		}
	default:
		fmt.Printf("Unknown command: %s (try :help)\n", cmd)
	}
}

// evalAndPrint compiles and runs one snippet, printing the result or
// the error.
func evalAndPrint(machine *vm.Machine, input string) {
	mod, err := compiler.CompileSource(replProgram(input))
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	if err := machine.LoadModule(mod); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if err := machine.Run(); err != nil {
		fmt.Printf("Fault: %v\n", err)
		return
	}

	result, err := machine.Result()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Println(result)
}

// replProgram turns a snippet into a runnable program. A bare
// expression becomes a return statement; anything already terminated
// as a statement runs as written.
func replProgram(input string) string {
	if strings.HasSuffix(input, ";") || strings.HasSuffix(input, "}") {
		return input
	}
	return "return " + input + ";"
}
