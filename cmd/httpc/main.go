// Command httpc sends one HTTP/1.1 request and prints the response.
//
//	httpc [-X METHOD] [-H 'Name: value']... [-d BODY] [-i] [-v] [-config FILE] [-timeout D] URL
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"minihttp/application/http"
	"minihttp/application/http/client"
	"minihttp/application/util/domain"
	"minihttp/internal/config"
	"minihttp/internal/logging"
	"minihttp/transport/tcp"

	"github.com/benbjohnson/clock"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

type headerFlags []string

func (h *headerFlags) String() string { return strings.Join(*h, ", ") }

func (h *headerFlags) Set(v string) error {
	*h = append(*h, v)
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("httpc", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		method     = fs.String("X", string(http.MethodGet), "request method")
		body       = fs.String("d", "", "request body")
		include    = fs.Bool("i", false, "print response headers")
		verbose    = fs.Bool("v", false, "log the exchange at debug level")
		configPath = fs.String("config", "", "YAML configuration file")
		timeout    = fs.Duration("timeout", 0, "connect, read and write timeout")
		headers    headerFlags
	)
	fs.Var(&headers, "H", "request header 'Name: value', repeatable")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: httpc [flags] URL")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return exitUsage
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			fmt.Fprintln(stderr, "httpc:", err)
			return exitUsage
		}
	}
	if *timeout > 0 {
		cfg.Timeout = config.TimeoutConfig{Connect: *timeout, Read: *timeout, Write: *timeout}
	}
	if *verbose {
		cfg.Log.Level = "debug"
	}

	logger, closer, err := logging.New(cfg.Log, stderr)
	if err != nil {
		fmt.Fprintln(stderr, "httpc:", err)
		return exitUsage
	}
	defer closer.Close()

	c := client.New(tcp.NewDialer(nil), domain.NewNetLookuper(nil), logger, clock.New(), cfg.ClientOptions())

	req, err := c.NewRequest(http.Method(strings.ToUpper(*method)), fs.Arg(0))
	if err != nil {
		fmt.Fprintln(stderr, "httpc:", err)
		return exitUsage
	}
	for _, h := range headers {
		f, err := http.ParseField([]byte(h))
		if err != nil {
			fmt.Fprintln(stderr, "httpc: -H:", err)
			return exitUsage
		}
		req.AddHeader(f.Name, f.Value)
	}
	if isSet(fs, "d") {
		req.SetBody([]byte(*body))
	}

	res, err := c.Send(ctx, req)
	if err != nil {
		fmt.Fprintln(stderr, "httpc:", err)
		return exitFailure
	}

	printResponse(stdout, res, *include)
	return exitOK
}

func isSet(fs *flag.FlagSet, name string) bool {
	set := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

func printResponse(w io.Writer, res *http.Response, include bool) {
	fmt.Fprintf(w, "%s %d %s\n", res.Version(), res.StatusCode(), res.Status().ReasonPhrase)

	if include {
		for _, f := range res.Headers().Fields() {
			fmt.Fprintf(w, "%s: %s\n", f.Name, f.Value)
		}
		fmt.Fprintln(w)
	}

	text, err := res.Text()
	if err != nil {
		// Unknown charset, print the bytes as they are.
		w.Write(res.Body())
		return
	}
	io.WriteString(w, text)
}
