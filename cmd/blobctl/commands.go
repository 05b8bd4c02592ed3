package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/theirix/simple-file-repository/cmd/flags"
	"github.com/theirix/simple-file-repository/interfaces"
	"github.com/theirix/simple-file-repository/photo"
	"github.com/theirix/simple-file-repository/storage"
	"github.com/urfave/cli/v2"
)

var flagDatabase = &cli.StringFlag{
	Name:    "database",
	Aliases: []string{"d"},
	Usage:   "database name from the config",
}

var flagOutput = &cli.StringFlag{
	Name:    "output",
	Aliases: []string{"o"},
	Usage:   "write content to this file instead of stdout",
}

var flagSilent = &cli.BoolFlag{
	Name:  "silent",
	Usage: "do not fail if the blob does not exist",
}

var errUsage = errors.New("usage error")

func newApp(stdout, stderr io.Writer) *cli.App {
	return &cli.App{
		Name:      "blobctl",
		Usage:     "Operate on blob storage databases",
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: append([]cli.Flag{
			flags.ConfigFlag,
			flagDatabase,
			flags.LogServiceFlagFn("blobctl"),
		}, flags.LogFlags...),
		Commands: []*cli.Command{
			{
				Name:      "store",
				Usage:     "store a file (or stdin with -) and print its id",
				ArgsUsage: "FILE",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "content-type", Usage: "content type stored with remote blobs"},
					&cli.StringFlag{Name: "cache-control", Usage: "cache control stored with remote blobs"},
					&cli.StringSliceFlag{Name: "tag", Usage: "key=value tag, may be repeated"},
					&cli.StringFlag{Name: "id", Usage: "store under this id instead of a fresh one"},
				},
				Action: withStorage(storeAction),
			},
			{
				Name:      "get",
				Usage:     "print blob content",
				ArgsUsage: "ID",
				Flags:     []cli.Flag{flagOutput},
				Action:    withStorage(getAction),
			},
			{
				Name:      "exists",
				Usage:     "print whether a blob exists",
				ArgsUsage: "ID",
				Action: withStorage(func(cCtx *cli.Context, s *photo.PhotoStorage) error {
					id, err := idArg(cCtx)
					if err != nil {
						return err
					}
					ok, err := s.Exists(cCtx.Context, id)
					if err != nil {
						return err
					}
					fmt.Fprintln(cCtx.App.Writer, ok)
					return nil
				}),
			},
			{
				Name:      "delete",
				Usage:     "delete a blob",
				ArgsUsage: "ID",
				Flags:     []cli.Flag{flagSilent},
				Action: withStorage(func(cCtx *cli.Context, s *photo.PhotoStorage) error {
					id, err := idArg(cCtx)
					if err != nil {
						return err
					}
					if cCtx.Bool(flagSilent.Name) {
						return storage.DeleteSilent(cCtx.Context, s, id)
					}
					return s.Delete(cCtx.Context, id)
				}),
			},
			{
				Name:      "path",
				Usage:     "print the file path or a pre-signed URL",
				ArgsUsage: "ID",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{Name: "param", Usage: "Name=Value URL parameter, e.g. ResponseContentType=image/png"},
				},
				Action: withStorage(pathAction),
			},
			{
				Name:      "mimetype",
				Usage:     "print the mime type of a blob",
				ArgsUsage: "ID",
				Action: withStorage(func(cCtx *cli.Context, s *photo.PhotoStorage) error {
					id, err := idArg(cCtx)
					if err != nil {
						return err
					}
					mimeType, err := s.GetMimeType(cCtx.Context, id)
					if err != nil {
						return err
					}
					fmt.Fprintln(cCtx.App.Writer, mimeType)
					return nil
				}),
			},
			{
				Name:  "list",
				Usage: "print every blob id",
				Action: withStorage(func(cCtx *cli.Context, s *photo.PhotoStorage) error {
					ids, err := s.List(cCtx.Context)
					if err != nil {
						return err
					}
					for _, id := range ids {
						fmt.Fprintln(cCtx.App.Writer, id)
					}
					return nil
				}),
			},
			{
				Name:  "count",
				Usage: "print the number of blobs",
				Action: withStorage(func(cCtx *cli.Context, s *photo.PhotoStorage) error {
					count, err := s.Count(cCtx.Context)
					if err != nil {
						return err
					}
					fmt.Fprintln(cCtx.App.Writer, count)
					return nil
				}),
			},
			{
				Name:      "thumbnail",
				Usage:     "store a thumbnail of an image and print its id",
				ArgsUsage: "ID",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "mime", Required: true, Usage: "thumbnail mime type, e.g. image/jpeg"},
					&cli.IntFlag{Name: "size", Value: photo.DefaultThumbSize, Usage: "thumbnail width and height"},
				},
				Action: withStorage(func(cCtx *cli.Context, s *photo.PhotoStorage) error {
					id, err := idArg(cCtx)
					if err != nil {
						return err
					}
					thumbID, err := s.GenerateThumbnail(cCtx.Context, id, cCtx.String("mime"), cCtx.Int("size"))
					if err != nil {
						return err
					}
					fmt.Fprintln(cCtx.App.Writer, thumbID)
					return nil
				}),
			},
			{
				Name:   "clean",
				Usage:  "remove every blob of the database, or of all local databases without --database",
				Action: cleanAction,
			},
		},
	}
}

// withStorage binds the registry from the config and passes the selected database to fn.
func withStorage(fn func(cCtx *cli.Context, s *photo.PhotoStorage) error) cli.ActionFunc {
	return func(cCtx *cli.Context) error {
		database := cCtx.String(flagDatabase.Name)
		if database == "" {
			return fmt.Errorf("%w: --database is required", errUsage)
		}
		logger := flags.SetupLogger(cCtx)
		reg, err := flags.LoadRegistry(cCtx, logger)
		if err != nil {
			return err
		}
		defer reg.Unbind()

		s, err := reg.Get(database)
		if err != nil {
			return err
		}
		return fn(cCtx, s)
	}
}

func idArg(cCtx *cli.Context) (interfaces.BlobID, error) {
	if cCtx.NArg() != 1 {
		return interfaces.BlobID{}, fmt.Errorf("%w: expected exactly one ID argument", errUsage)
	}
	return interfaces.ParseBlobID(cCtx.Args().First())
}

func storeAction(cCtx *cli.Context, s *photo.PhotoStorage) error {
	if cCtx.NArg() != 1 {
		return fmt.Errorf("%w: expected a FILE argument", errUsage)
	}

	var content []byte
	var err error
	if name := cCtx.Args().First(); name == "-" {
		content, err = io.ReadAll(cCtx.App.Reader)
	} else {
		content, err = os.ReadFile(name)
	}
	if err != nil {
		return err
	}

	opts := interfaces.StoreOptions{ContentType: cCtx.String("content-type")}
	if cCtx.IsSet("cache-control") {
		cacheControl := cCtx.String("cache-control")
		opts.CacheControl = &cacheControl
	}
	if raw := cCtx.String("id"); raw != "" {
		override, err := interfaces.ParseBlobID(raw)
		if err != nil {
			return err
		}
		opts.OverrideID = &override
	}
	if tags := cCtx.StringSlice("tag"); len(tags) > 0 {
		opts.Tags, err = parsePairs(tags)
		if err != nil {
			return err
		}
	}

	id, err := s.Store(cCtx.Context, content, opts)
	if err != nil {
		return err
	}
	fmt.Fprintln(cCtx.App.Writer, id)
	return nil
}

func getAction(cCtx *cli.Context, s *photo.PhotoStorage) error {
	id, err := idArg(cCtx)
	if err != nil {
		return err
	}
	content, err := s.Get(cCtx.Context, id)
	if err != nil {
		return err
	}
	if output := cCtx.String(flagOutput.Name); output != "" {
		return os.WriteFile(output, content, 0o644)
	}
	_, err = cCtx.App.Writer.Write(content)
	return err
}

func pathAction(cCtx *cli.Context, s *photo.PhotoStorage) error {
	id, err := idArg(cCtx)
	if err != nil {
		return err
	}
	var params interfaces.URLParams
	if raw := cCtx.StringSlice("param"); len(raw) > 0 {
		pairs, err := parsePairs(raw)
		if err != nil {
			return err
		}
		params = interfaces.URLParams(pairs)
	}
	path, err := s.GetPath(cCtx.Context, id, params)
	if err != nil {
		return err
	}
	fmt.Fprintln(cCtx.App.Writer, path)
	return nil
}

func cleanAction(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)
	reg, err := flags.LoadRegistry(cCtx, logger)
	if err != nil {
		return err
	}
	defer reg.Unbind()

	ctx := cCtx.Context
	database := cCtx.String(flagDatabase.Name)
	if database == "" {
		return reg.Clean(ctx)
	}
	s, err := reg.Get(database)
	if err != nil {
		return err
	}
	return s.Clean(ctx)
}

func parsePairs(raw []string) (map[string]string, error) {
	pairs := make(map[string]string, len(raw))
	for _, pair := range raw {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("%w: expected key=value, got %q", errUsage, pair)
		}
		pairs[k] = v
	}
	return pairs, nil
}
