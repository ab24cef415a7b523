package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/snrtools/salc/pkg/cli"
	"github.com/snrtools/salc/pkg/compile"
	"github.com/snrtools/salc/pkg/config"
	"github.com/snrtools/salc/pkg/disasm"
)

func main() {
	app := cli.NewApp("salc")
	app.Synopsis = "[options] <input.sal>"
	app.Description = "Assembler and disassembler for scenario binaries. Assembles scenario assembly into the binary instruction format, or with -d decodes a binary back into reassemblable source."
	app.Repository = "<https://github.com/snrtools/salc>"

	var (
		outFile     string
		disassemble bool
		werror      bool
	)

	fs := app.FlagSet
	fs.String(&outFile, "output", "o", "", "Place the output into <file>.", "file")
	fs.Bool(&disassemble, "disassemble", "d", false, "Decode a scenario binary to source instead of assembling.")
	fs.Bool(&werror, "error", "e", false, "Treat warnings as errors.")

	cfg := config.NewConfig()
	warnFlags, featFlags := cfg.SetupFlagGroups(fs)

	app.Action = func(inputs []string) error {
		if len(inputs) != 1 {
			return fmt.Errorf("expected exactly one input file, got %d", len(inputs))
		}
		input := inputs[0]

		cfg.ProcessFlags(func(fn func(name string)) {
			for _, e := range warnFlags {
				if *e.Enabled {
					fn("W" + e.Name)
				}
				if *e.Disabled {
					fn("Wno-" + e.Name)
				}
			}
			for _, e := range featFlags {
				if *e.Enabled {
					fn("F" + e.Name)
				}
				if *e.Disabled {
					fn("Fno-" + e.Name)
				}
			}
		})

		if disassemble {
			return runDisassemble(input, outFile)
		}
		return runAssemble(input, outFile, cfg, werror)
	}

	if err := app.Run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "salc: %v\n", err)
		os.Exit(1)
	}
}

func runAssemble(input, outFile string, cfg *config.Config, werror bool) error {
	data, err := os.ReadFile(input)
	if err != nil {
		return err
	}
	src := string(data)

	bin, bag := compile.NewPipeline(cfg).Compile(src)
	renderDiagnostics(os.Stderr, input, src, bag)
	if bin == nil || werror && bag.Len() > 0 {
		return fmt.Errorf("no output written")
	}

	if outFile == "" {
		outFile = strings.TrimSuffix(input, ".sal") + ".snr"
	}
	return os.WriteFile(outFile, bin, 0o644)
}

func runDisassemble(input, outFile string) error {
	data, err := os.ReadFile(input)
	if err != nil {
		return err
	}
	text, err := disasm.Disassemble(data)
	if err != nil {
		return err
	}
	if outFile == "" || outFile == "-" {
		_, err = os.Stdout.WriteString(text)
		return err
	}
	return os.WriteFile(outFile, []byte(text), 0o644)
}
