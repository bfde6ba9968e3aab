// Package boxtool is a CLI utility that inspects and rewrites ISO-BMFF files.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"isobmff/pkg/index"
	"isobmff/pkg/log"
	"isobmff/pkg/memfile"
	"isobmff/pkg/mp4"
)

const usage = `inspect and rewrite ISO-BMFF files
usage: boxtool [flags] <command> <args>

commands:
  dump <file>               print the box tree
  rewrite <in> <out>        decode and re-encode every known box
  index <file>              store the segment index of the first sidx
  lookup <file> <seconds>   print the segment containing a time

flags:
`

// Containers that dump descends into without decoding.
var containers = map[mp4.BoxType]struct{}{
	{'d', 'i', 'n', 'f'}: {},
	{'e', 'd', 't', 's'}: {},
	{'m', 'd', 'i', 'a'}: {},
	{'m', 'f', 'r', 'a'}: {},
	{'m', 'i', 'n', 'f'}: {},
	{'m', 'o', 'o', 'f'}: {},
	mp4.TypeMoov:         {},
	{'s', 't', 'b', 'l'}: {},
	{'t', 'r', 'a', 'f'}: {},
	{'t', 'r', 'a', 'k'}: {},
}

// Errors.
var (
	ErrUsage  = errors.New("invalid usage")
	ErrNoSidx = errors.New("no sidx box")
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, ErrUsage) {
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type app struct {
	config *Config
	logger *log.Logger
	out    io.Writer
}

func run(args []string, stdout io.Writer, stderr io.Writer) error {
	fs := flag.NewFlagSet("boxtool", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}
	configPath := fs.String("config", "", "path to YAML config file")
	jsonFlag := fs.Bool("json", false, "print boxes as JSON")
	dbFlag := fs.String("db", "", "path to index database")
	if err := fs.Parse(args); err != nil {
		return ErrUsage
	}

	config, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "json":
			config.JSON = *jsonFlag
		case "db":
			config.IndexDB = *dbFlag
		}
	})

	level, err := log.ParseLevel(config.LogLevel)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	logger := log.NewLogger(&wg)
	logger.Start(ctx)

	logCtx, logCancel := context.WithCancel(ctx)
	logDone := make(chan struct{})
	ready := make(chan struct{})
	go func() {
		logger.LogToWriter(logCtx, stderr, level, ready)
		close(logDone)
	}()
	<-ready
	defer func() {
		logCancel()
		<-logDone
		cancel()
		wg.Wait()
	}()

	a := &app{
		config: config,
		logger: logger,
		out:    stdout,
	}
	return a.command(fs)
}

func (a *app) command(fs *flag.FlagSet) error {
	args := fs.Args()
	if len(args) == 0 {
		fs.Usage()
		return ErrUsage
	}
	cmd, args := args[0], args[1:]

	nArgs := map[string]int{
		"dump":    1,
		"rewrite": 2,
		"index":   1,
		"lookup":  2,
	}
	n, exist := nArgs[cmd]
	if !exist || len(args) != n {
		fs.Usage()
		return ErrUsage
	}

	switch cmd {
	case "dump":
		return a.dump(args[0])
	case "rewrite":
		return a.rewrite(args[0], args[1])
	case "index":
		return a.index(args[0])
	default:
		return a.lookup(args[0], args[1])
	}
}

func (a *app) newDecoder(r io.ReadSeeker) *mp4.Decoder {
	return mp4.NewDecoder(r, mp4.WithSkipHandler(
		func(parent mp4.BoxType, child mp4.Header) {
			a.logger.Debug().Src("mp4").Msgf("%v: skipped unknown child %v", parent, child)
		},
	))
}

// forEach calls fn for every top-level header until the end of the stream.
func forEach(d *mp4.Decoder, fn func(mp4.Header) error) error {
	for {
		h, err := d.ReadHeader()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(h); err != nil {
			return err
		}
	}
}

/**** dump ****/

func (a *app) dump(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	d := a.newDecoder(file)
	return forEach(d, func(h mp4.Header) error {
		return a.visit(d, h, 0)
	})
}

func (a *app) visit(d *mp4.Decoder, h mp4.Header, depth int) error {
	indent := strings.Repeat("  ", depth)

	if mp4.DefaultRegistry.Has(h.Type) {
		b, err := d.DecodeBody(h)
		if err != nil {
			return fmt.Errorf("%v: %w", h, err)
		}
		if !a.config.JSON {
			fmt.Fprintf(a.out, "%s%v %v\n", indent, h, b)
			return nil
		}
		j, err := mp4.ToJSON(b)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "%s%s\n", indent, j)
		return nil
	}

	fmt.Fprintf(a.out, "%s%v\n", indent, h)
	if _, ok := containers[h.Type]; ok {
		return d.Children(h, func(child mp4.Header) error {
			return a.visit(d, child, depth+1)
		})
	}
	return d.Skip(h)
}

/**** rewrite ****/

// rewrite decodes and re-encodes every registered top-level box,
// other boxes are copied verbatim. The output is verified
// by decoding it again before it's written.
func (a *app) rewrite(inPath, outPath string) error {
	src, err := os.Open(inPath)
	if err != nil {
		return err
	}
	defer src.Close()

	buf := &memfile.File{}
	d := a.newDecoder(src)
	err = forEach(d, func(h mp4.Header) error {
		if !mp4.DefaultRegistry.Has(h.Type) {
			if _, err := src.Seek(int64(h.Offset), io.SeekStart); err != nil {
				return err
			}
			_, err := io.CopyN(buf, src, int64(h.Size))
			return err
		}

		b, err := d.DecodeBody(h)
		if err != nil {
			return fmt.Errorf("decode %v: %w", h, err)
		}
		n, err := mp4.Encode(buf, b)
		if err != nil {
			return fmt.Errorf("encode %v: %w", h, err)
		}
		if n != h.Size {
			a.logger.Warn().Src("boxtool").
				Msgf("%v: size changed from %d to %d", h, h.Size, n)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := a.verify(buf.Bytes()); err != nil {
		return fmt.Errorf("verify: %w", err)
	}

	if err := os.WriteFile(outPath, buf.Bytes(), 0o600); err != nil {
		return err
	}
	a.logger.Info().Src("boxtool").Msgf("wrote %d bytes to %v", buf.Len(), outPath)
	return nil
}

func (a *app) verify(b []byte) error {
	d := a.newDecoder(memfile.New(b))
	return forEach(d, func(h mp4.Header) error {
		if !mp4.DefaultRegistry.Has(h.Type) {
			return d.Skip(h)
		}
		_, err := d.DecodeBody(h)
		return err
	})
}

/**** index ****/

func (a *app) index(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	d := a.newDecoder(file)
	var entry *index.Entry
	err = forEach(d, func(h mp4.Header) error {
		if entry != nil || h.Type != mp4.TypeSidx {
			return d.Skip(h)
		}
		b, err := d.DecodeBody(h)
		if err != nil {
			return fmt.Errorf("%v: %w", h, err)
		}
		e := index.NewEntry(b.(*mp4.Sidx), h.End())
		entry = &e
		return nil
	})
	if err != nil {
		return err
	}
	if entry == nil {
		return fmt.Errorf("%v: %w", path, ErrNoSidx)
	}

	db, err := index.Open(a.config.IndexDB)
	if err != nil {
		return err
	}
	defer db.Close()

	name := filepath.Base(path)
	if err := db.Put(name, *entry); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%v: indexed %d segments\n", name, len(entry.Segments))
	return nil
}

/**** lookup ****/

func (a *app) lookup(path string, seconds string) error {
	s, err := strconv.ParseFloat(seconds, 64)
	if err != nil || s < 0 {
		return fmt.Errorf("invalid time: %v", seconds)
	}
	t := time.Duration(s * float64(time.Second))

	db, err := index.Open(a.config.IndexDB)
	if err != nil {
		return err
	}
	defer db.Close()

	seg, err := db.Lookup(filepath.Base(path), t)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "offset=%d size=%d start=%d duration=%d index=%v sap=%v\n",
		seg.Offset, seg.Size, seg.Start, seg.Duration, seg.Index, seg.StartsWithSAP)
	return nil
}
