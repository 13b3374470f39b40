// Command rcdecode prints the fields of result codes.
//
// Usage:
//
//	rcdecode 0xD8E007F7 0x09401BFE
//	echo -127665165 | rcdecode -json
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/result"
)

func main() {
	asJSON := flag.Bool("json", false, "Print one JSON object per code")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		var err error
		if args, err = readWords(os.Stdin); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
	if err := decodeAll(os.Stdout, args, *asJSON); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func readWords(r io.Reader) ([]string, error) {
	var words []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		words = append(words, strings.Fields(sc.Text())...)
	}
	return words, sc.Err()
}

func decodeAll(w io.Writer, args []string, asJSON bool) error {
	for _, arg := range args {
		code, err := result.Parse(arg)
		if err != nil {
			return err
		}
		d := code.Decode()
		if asJSON {
			b, err := sonic.Marshal(d)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%s\n", b)
			continue
		}
		if d.Success {
			fmt.Fprintf(w, "%s success\n", d.Raw)
			continue
		}
		fmt.Fprintf(w, "%s level=%s summary=%s module=%s description=%s\n",
			d.Raw, d.Level, d.Summary, d.Module, d.Description)
	}
	return nil
}
