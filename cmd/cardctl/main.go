// Command cardctl generates an event card from the terminal by talking to a
// running eventcard service.
package main

import (
	"context"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"eventcard/internal/client"
	"eventcard/internal/infra/logging"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("cardctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	url := fs.String("url", "http://localhost:8080", "base URL of the card service")
	name := fs.String("name", "", "full name printed on the card")
	role := fs.String("role", "", "role printed on the card")
	image := fs.String("image", "", "path to the profile image")
	out := fs.String("out", ".", "directory the card is saved to")
	share := fs.Bool("share", false, "copy the card to the terminal clipboard")
	verbose := fs.Bool("v", false, "verbose logging")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	level := "warn"
	if *verbose {
		level = "debug"
	}
	logging.InitConsole(stderr, level)

	if *name == "" || *role == "" || *image == "" {
		fmt.Fprintln(stderr, "cardctl: -name, -role and -image are required")
		fs.Usage()
		return 2
	}
	file, err := readFile(*image)
	if err != nil {
		fmt.Fprintf(stderr, "cardctl: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	term := &terminal{out: stdout, errOut: stderr, dir: *out}
	fc := client.NewFormController(*url, term)
	fc.SetName(*name)
	fc.SetRole(*role)
	fc.SelectFile(file)

	if err := fc.Generate(ctx); err != nil {
		return 1
	}
	if err := fc.Download(); err != nil {
		fmt.Fprintf(stderr, "cardctl: %v\n", err)
		return 1
	}
	if *share {
		fc.Share(ctx)
	}
	return 0
}

func readFile(path string) (*client.File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("image file is empty")
	}
	ct := mime.TypeByExtension(filepath.Ext(path))
	if ct == "" {
		ct = http.DetectContentType(data)
	}
	return &client.File{Name: filepath.Base(path), ContentType: ct, Data: data}, nil
}

// terminal is the command-line client.Platform. It has no native share sheet;
// the clipboard is set through the OSC 52 escape sequence.
type terminal struct {
	out    io.Writer
	errOut io.Writer
	dir    string
}

func (t *terminal) Notify(msg string) {
	fmt.Fprintln(t.errOut, msg)
}

func (t *terminal) Save(filename string, data []byte) error {
	if err := os.MkdirAll(t.dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(t.dir, filepath.Base(filename))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	fmt.Fprintln(t.out, path)
	return nil
}

func (t *terminal) CanShareFiles() bool { return false }

func (t *terminal) ShareFiles(ctx context.Context, req client.ShareRequest) error {
	return errors.New("terminal cannot share files")
}

func (t *terminal) CopyToClipboard(text string) error {
	_, err := fmt.Fprintf(t.out, "\x1b]52;c;%s\a", base64.StdEncoding.EncodeToString([]byte(text)))
	return err
}
