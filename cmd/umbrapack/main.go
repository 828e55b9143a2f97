// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"time"

	"github.com/devblok/umbra/core"
	"github.com/devblok/umbra/utility/spvpack"
	log "github.com/sirupsen/logrus"
)

func init() {
	if u, err := user.Current(); err == nil {
		currentUserName = u.Username
	}
}

var currentUserName = "unknown"

var (
	author   = flag.String("author", "", "Set the author of the package when compressing, defaults to the current user")
	version  = flag.Int64("version", 1, "Archive version number to create it with")
	extract  = flag.String("e", "", "Extract the given archive into the -d directory")
	compress = flag.String("c", "", "Compress the compiled shaders in the given folder")
	list     = flag.String("l", "", "List the shaders in the given archive")
	dstFile  = flag.String("f", "shaders.spvpack", "Destination file")
	dstDir   = flag.String("d", ".", "Destination directory when extracting")
	force    = flag.Bool("force", false, "Overwrite the destination file")
)

var errOperations = errors.New("only one operation at a time")

func main() {
	flag.Parse()

	var ops int
	for _, op := range []string{*extract, *compress, *list} {
		if op != "" {
			ops++
		}
	}
	if ops > 1 {
		log.Fatal(errOperations)
	}

	var err error
	switch {
	case *compress != "":
		err = compressShaders(*compress, *dstFile)
	case *extract != "":
		err = extractShaders(*extract, *dstDir)
	case *list != "":
		err = listShaders(*list)
	default:
		flag.PrintDefaults()
	}
	if err != nil {
		log.WithError(err).Fatal("umbrapack failed")
	}
}

func compressShaders(dir, dst string) error {
	if _, err := os.Stat(dst); err == nil && !*force {
		return errors.New("destination file exists, will not overwrite")
	}

	files, err := core.ShaderFilesInDirectory(dir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no compiled shaders in %s", dir)
	}

	name := *author
	if name == "" {
		name = currentUserName
	}
	builder := spvpack.NewBuilder(spvpack.Header{
		Author:      name,
		DateCreated: time.Now().Unix(),
		Version:     *version,
	})

	for _, path := range files {
		if err := addFile(builder, path); err != nil {
			return err
		}
		log.WithField("shader", filepath.Base(path)).Debug("added")
	}

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	written, err := builder.WriteTo(out)
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"file":    dst,
		"shaders": builder.Len(),
		"bytes":   written,
	}).Info("shader pack written")
	return out.Sync()
}

// addFile stores a shader by its base name, which is the name the
// renderer looks it up by
func addFile(builder *spvpack.Builder, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return builder.Add(filepath.Base(path), f)
}

func extractShaders(src, dir string) error {
	ar, err := spvpack.OpenFile(src)
	if err != nil {
		return err
	}
	defer ar.Close()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for _, name := range ar.Names() {
		code, err := ar.Find(name)
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(dir, filepath.Base(name)), code, 0o644); err != nil {
			return err
		}
	}
	return nil
}

func listShaders(src string) error {
	ar, err := spvpack.OpenFile(src)
	if err != nil {
		return err
	}
	defer ar.Close()

	header := ar.Header()
	fmt.Printf("author: %s\nversion: %d\ncreated: %s\n", header.Author, header.Version, time.Unix(header.DateCreated, 0).Format(time.RFC3339))
	for _, e := range header.Index {
		fmt.Printf("%-32s %8d %8d\n", e.Name, e.Size, e.CompressedSize)
	}
	return nil
}
