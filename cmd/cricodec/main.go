/*
DESCRIPTION
  cricodec is a command-line tool for inspecting, extracting from, and
  building CRIWARE container files (CPK, ACB/AWB, USM).

AUTHOR
  Trek Hopton <trek@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package cricodec is the command-line front end for this module's
// container/codec packages: "info" summarises a file, "extract" unpacks
// one to a directory, and "build" assembles a USM from raw track inputs.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ausocean/cricodec/container/acb"
	"github.com/ausocean/cricodec/container/afs2"
	"github.com/ausocean/cricodec/container/cpk"
	"github.com/ausocean/cricodec/container/usm"
	"github.com/ausocean/cricodec/container/utf"
	"github.com/ausocean/utils/logging"
)

const version = "v0.1.0"

// Logging configuration, following this module's teacher's own
// lumberjack-backed file logger.
const (
	logPath      = "/var/log/cricodec/cricodec.log"
	logMaxSize   = 100 // MB
	logMaxBackup = 5
	logMaxAge    = 28 // days
	logVerbosity = logging.Info
	logSuppress  = true
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	fileLog := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    logMaxSize,
		MaxBackups: logMaxBackup,
		MaxAge:     logMaxAge,
	}
	log := logging.New(logVerbosity, io.MultiWriter(fileLog, os.Stderr), logSuppress)

	cmd := os.Args[1]
	args := os.Args[2:]
	var err error
	switch cmd {
	case "info":
		err = runInfo(log, args)
	case "extract":
		err = runExtract(log, args)
	case "build":
		err = runBuild(log, args)
	case "version":
		fmt.Println(version)
		return
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Error("cricodec failed", "command", cmd, "error", err.Error())
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: cricodec <info|extract|build|version> [flags]")
}

// runInfo identifies the container magic at the start of file and prints a
// short summary of its contents.
func runInfo(log logging.Logger, args []string) error {
	fs := flag.NewFlagSet("info", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("info: expected exactly one file argument")
	}

	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}

	switch magicOf(data) {
	case "CPK ":
		a, err := cpk.Parse(data)
		if err != nil {
			return err
		}
		log.Info("CPK archive", "mode", a.Mode, "align", a.Align, "files", len(a.Files))
		for _, f := range a.Files {
			fmt.Printf("%6d  %8d  %s\n", f.ID, len(f.Data), filepath.Join(f.Dir, f.Name))
		}
	case "CRID":
		d, err := usm.Demux(data, nil)
		if err != nil {
			return err
		}
		log.Info("USM container", "streams", len(d.Streams), "metadata_packets", len(d.Metadata))
		for _, s := range d.Streams {
			fmt.Printf("%s/%d  %d bytes\n", s.Magic, s.Channel, len(s.Data))
		}
	case "AFS2":
		b, err := afs2.Parse(data)
		if err != nil {
			return err
		}
		log.Info("AFS2 bank", "version", b.Version, "align", b.Align, "entries", len(b.Entries))
		for _, e := range b.Entries {
			fmt.Printf("%6d  %8d bytes\n", e.ID, len(e.Data))
		}
	case "@UTF":
		t, err := utf.Parse(data)
		if err != nil {
			return err
		}
		log.Info("@UTF table", "name", t.Name, "columns", len(t.Columns), "rows", len(t.Rows))
	default:
		return fmt.Errorf("info: unrecognised container magic %q", magicOf(data))
	}
	return nil
}

// runExtract unpacks a CPK or USM file to outDir. ACB extraction needs its
// sibling AWB, resolved relative to the ACB's own path.
func runExtract(log logging.Logger, args []string) error {
	fs := flag.NewFlagSet("extract", flag.ExitOnError)
	outDir := fs.String("out", ".", "output directory")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("extract: expected exactly one file argument")
	}
	path := fs.Arg(0)

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		return err
	}

	switch magicOf(data) {
	case "CPK ":
		a, err := cpk.Parse(data)
		if err != nil {
			return err
		}
		for _, f := range a.Files {
			name := f.Name
			if name == "" {
				name = strconv.Itoa(f.ID)
			}
			dest := filepath.Join(*outDir, f.Dir, name)
			if err := writeFile(dest, f.Data); err != nil {
				return err
			}
			log.Info("extracted", "file", dest, "size", len(f.Data))
		}
	case "CRID":
		d, err := usm.Demux(data, nil)
		if err != nil {
			return err
		}
		for _, s := range d.Streams {
			dest := filepath.Join(*outDir, fmt.Sprintf("%s_%d.bin", strings.Trim(s.Magic, "@"), s.Channel))
			if err := writeFile(dest, s.Data); err != nil {
				return err
			}
			log.Info("extracted", "file", dest, "size", len(s.Data))
		}
	default:
		ext := strings.ToLower(filepath.Ext(path))
		if ext == ".acb" {
			return extractACB(log, path, data, *outDir)
		}
		return fmt.Errorf("extract: unrecognised container magic %q", magicOf(data))
	}
	return nil
}

func extractACB(log logging.Logger, path string, data []byte, outDir string) error {
	base := strings.TrimSuffix(path, filepath.Ext(path))
	a, err := acb.Resolve(data, func(name string) ([]byte, error) {
		return os.ReadFile(filepath.Join(filepath.Dir(path), name))
	})
	if err != nil {
		return err
	}
	for _, f := range a.Files {
		dest := filepath.Join(outDir, f.Name)
		if err := writeFile(dest, f.Data); err != nil {
			return err
		}
		log.Info("extracted", "file", dest, "size", len(f.Data), "encode_type", f.EncodeType)
	}
	if len(a.Skipped) > 0 {
		log.Warning("some cues were not resolved", "cues", strings.Join(a.Skipped, ","), "source", base)
	}
	return nil
}

// runBuild assembles a USM from a video IVF file and zero or more raw
// audio block files, each name prefixed "adx:" or "hca:" to select its
// codec (e.g. -audio adx:voice.adx).
func runBuild(log logging.Logger, args []string) error {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	out := fs.String("out", "out.usm", "output USM path")
	videoPath := fs.String("video", "", "IVF/VP9 video file")
	var audioFlags multiFlag
	fs.Var(&audioFlags, "audio", "codec:path audio input, repeatable")
	keyHex := fs.String("key", "", "hex-encoded 8-byte cipher key")
	fs.Parse(args)

	var opts usm.Options
	if *videoPath != "" {
		data, err := os.ReadFile(*videoPath)
		if err != nil {
			return err
		}
		opts.Video = &usm.VideoInput{Channel: 0, IVF: data}
	}

	for i, spec := range audioFlags {
		codec, path, ok := strings.Cut(spec, ":")
		if !ok {
			return fmt.Errorf("build: -audio %q must be codec:path", spec)
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		input := usm.AudioInput{Channel: uint8(i + 1), Frames: [][]byte{raw}}
		switch codec {
		case "adx":
			input.Codec = usm.AudioCodecADX
		case "hca":
			input.Codec = usm.AudioCodecHCA
			input.Header = raw
		default:
			return fmt.Errorf("build: unknown audio codec %q", codec)
		}
		opts.Audio = append(opts.Audio, input)
	}

	if *keyHex != "" {
		key, err := strconv.ParseUint(*keyHex, 16, 64)
		if err != nil {
			return fmt.Errorf("build: invalid -key: %w", err)
		}
		opts.Key = usm.NewKey(key)
	}

	data, err := usm.Mux(opts)
	if err != nil {
		return err
	}
	if err := writeFile(*out, data); err != nil {
		return err
	}
	log.Info("built USM", "file", *out, "size", len(data))
	return nil
}

func magicOf(b []byte) string {
	if len(b) < 4 {
		return ""
	}
	return string(b[:4])
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// multiFlag collects repeated -audio flag occurrences.
type multiFlag []string

func (m *multiFlag) String() string { return strings.Join(*m, ",") }
func (m *multiFlag) Set(v string) error {
	*m = append(*m, v)
	return nil
}
