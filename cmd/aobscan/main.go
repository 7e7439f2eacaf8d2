// Command aobscan searches the current process's mapped memory for a byte
// pattern and prints every match with its containing region. It is a
// diagnostic for pattern development: run it under the target's conditions
// and check that a signature hits where it should.
package main

import (
	"fmt"
	"os"
	"unsafe"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
	"github.com/urfave/cli/v2"

	"x86patch"
)

func main() {
	log := logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "aobscan"))

	app := &cli.App{
		Name:  "aobscan",
		Usage: "scan this process's memory for a byte pattern",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "pattern",
				Aliases:  []string{"p"},
				Usage:    "pattern to search for, e.g. \"55 8B ?? EC\"",
				Required: true,
			},
			&cli.BoolFlag{
				Name:  "exec",
				Usage: "only scan executable regions",
			},
			&cli.BoolFlag{
				Name:  "writable",
				Usage: "only scan writable regions",
			},
			&cli.Uint64Flag{
				Name:  "start",
				Usage: "lowest address to scan",
			},
			&cli.Uint64Flag{
				Name:  "end",
				Usage: "scan stops before this address",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "stop after this many matches",
				Value: 10,
			},
			&cli.BoolFlag{
				Name:  "disasm",
				Usage: "disassemble the bytes at each match",
			},
		},
		Action: func(c *cli.Context) error {
			return run(c, log)
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

func run(c *cli.Context, log *logger.Logger) error {
	pat, err := x86patch.ParsePattern(c.String("pattern"))
	if err != nil {
		return err
	}

	var opts []x86patch.ScanOption
	var prot x86patch.Prot
	if c.Bool("exec") {
		prot |= x86patch.ProtExec
	}
	if c.Bool("writable") {
		prot |= x86patch.ProtWrite
	}
	if prot != 0 {
		opts = append(opts, x86patch.WithProtection(prot))
	}
	if c.IsSet("start") || c.IsSet("end") {
		opts = append(opts, x86patch.WithBounds(uintptr(c.Uint64("start")), uintptr(c.Uint64("end"))))
	}

	log.Infoln("scanning for", pat.String())

	matches, err := x86patch.Find(pat, opts...)
	if err != nil {
		return err
	}

	limit := c.Int("limit")
	found := 0
	for addr := range matches {
		printMatch(addr, pat.Len(), c.Bool("disasm"))
		found++
		if limit > 0 && found >= limit {
			log.Infoln("match limit reached")
			break
		}
	}

	log.Infoln("scan complete, found", found, "matches")
	if found == 0 {
		return fmt.Errorf("no matches for %q", pat.String())
	}
	return nil
}

func printMatch(addr uintptr, size int, disasm bool) {
	where := "?"
	if reg, err := x86patch.Query(addr); err == nil {
		where = reg.String()
	}
	fmt.Printf("%#x  in %s\n", addr, where)

	if disasm {
		code := make([]byte, size)
		copy(code, unsafe.Slice((*byte)(unsafe.Pointer(addr)), size))
		if text, err := x86patch.Disassemble(code, addr); err == nil {
			fmt.Println(text)
		}
	}
}
