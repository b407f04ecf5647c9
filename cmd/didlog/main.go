package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/haileyok/didlog/didlog"
	"github.com/haileyok/didlog/identity"
	"github.com/haileyok/didlog/keys"
	"github.com/haileyok/didlog/method"
	"github.com/haileyok/didlog/pop"
	"github.com/haileyok/didlog/publish"
	"github.com/haileyok/didlog/server"
	"github.com/haileyok/didlog/store"
	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v2"
)

var Version = "dev"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "didlog",
		Usage: "Create, update and host did:tdw / did:webvh logs",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "verbose",
				EnvVars: []string{"DIDLOG_VERBOSE"},
			},
		},
		Commands: []*cli.Command{
			runCreate,
			runUpdate,
			runDeactivate,
			runPopCreate,
			runPopVerify,
			runResolve,
			runServe,
		},
		ErrWriter: os.Stderr,
		Version:   Version,
	}
}

func newLogger(cmd *cli.Context) *slog.Logger {
	level := slog.LevelWarn
	if cmd.Bool("verbose") {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

var signingKeyFlag = &cli.StringFlag{
	Name:     "signing-key",
	Required: true,
	Usage:    "PEM or JWK file holding the Ed25519 update key",
	EnvVars:  []string{"DIDLOG_SIGNING_KEY"},
}

var documentKeyFlags = []cli.Flag{
	&cli.StringSliceFlag{
		Name:  "authentication-key",
		Usage: "name,file of a public key for the authentication relationship",
	},
	&cli.StringSliceFlag{
		Name:  "assertion-key",
		Usage: "name,file of a public key for the assertionMethod relationship",
	},
	&cli.StringSliceFlag{
		Name:  "update-key",
		Usage: "file holding an additional update key",
	},
	&cli.StringSliceFlag{
		Name:  "next-key",
		Usage: "file holding a key to pre-commit to via nextKeyHashes",
	},
}

var outputFlags = []cli.Flag{
	&cli.StringFlag{
		Name:  "out",
		Usage: "write the log here instead of standard output",
	},
	&cli.BoolFlag{
		Name:  "force",
		Usage: "overwrite existing output files",
	},
	&cli.StringFlag{
		Name:    "publish-dir",
		Usage:   "also store the entry in this web root",
		EnvVars: []string{"DIDLOG_PUBLISH_DIR"},
	},
	&cli.StringFlag{
		Name:    "db-name",
		Usage:   "also store the entry in this sqlite database",
		EnvVars: []string{"DIDLOG_DB_NAME"},
	},
	&cli.StringFlag{
		Name:    "publish-url",
		Usage:   "also send the entry to this didlog server",
		EnvVars: []string{"DIDLOG_PUBLISH_URL"},
	},
}

func flags(groups ...[]cli.Flag) []cli.Flag {
	var out []cli.Flag
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

var runCreate = &cli.Command{
	Name:  "create",
	Usage: "Create a new DID log",
	Flags: flags([]cli.Flag{
		&cli.StringFlag{
			Name:     "url",
			Required: true,
			Usage:    "where the log will be served, e.g. example.com/people/alice",
		},
		signingKeyFlag,
		&cli.StringFlag{
			Name:    "method",
			Value:   "tdw",
			Usage:   "tdw or webvh",
			EnvVars: []string{"DIDLOG_METHOD"},
		},
		&cli.BoolFlag{
			Name: "portable",
		},
	}, documentKeyFlags, outputFlags),
	Action: func(cmd *cli.Context) error {
		v, err := method.ParseVersion(cmd.String("method"))
		if err != nil {
			return err
		}

		loc, err := method.ParseLocator(cmd.String("url"))
		if err != nil {
			return err
		}

		p, err := keys.LoadSigningKey(cmd.String("signing-key"))
		if err != nil {
			return err
		}

		dk, err := loadDocumentKeys(cmd)
		if err != nil {
			return err
		}

		eng := didlog.New(didlog.Config{Version: v, Logger: newLogger(cmd)})

		res, err := eng.Create(cmd.Context, &didlog.CreateArgs{
			Locator:       loc,
			Provider:      p,
			AuthKeys:      dk.auth,
			AssertionKeys: dk.assertion,
			UpdateKeys:    dk.update,
			NextKeys:      dk.next,
			Portable:      cmd.Bool("portable"),
		})
		if err != nil {
			return err
		}

		if err := persist(cmd, loc.StorePath(), res, true); err != nil {
			return err
		}

		fmt.Fprintln(os.Stderr, res.DID)

		return writeOutput(cmd, res.Log)
	},
}

var logFileFlag = &cli.StringFlag{
	Name:     "log-file",
	Required: true,
	Usage:    "the did.jsonl to append to",
}

var inPlaceFlag = &cli.BoolFlag{
	Name:  "in-place",
	Usage: "write the appended log back to --log-file",
}

var runUpdate = &cli.Command{
	Name:  "update",
	Usage: "Append a new version to a DID log",
	Flags: flags([]cli.Flag{logFileFlag, inPlaceFlag, signingKeyFlag}, documentKeyFlags, outputFlags),
	Action: func(cmd *cli.Context) error {
		if err := checkInPlace(cmd); err != nil {
			return err
		}

		prior, err := os.ReadFile(cmd.String("log-file"))
		if err != nil {
			return err
		}

		p, err := keys.LoadSigningKey(cmd.String("signing-key"))
		if err != nil {
			return err
		}

		dk, err := loadDocumentKeys(cmd)
		if err != nil {
			return err
		}

		eng := didlog.New(didlog.Config{Logger: newLogger(cmd)})

		res, err := eng.Update(cmd.Context, &didlog.UpdateArgs{
			Log:           string(prior),
			Provider:      p,
			AuthKeys:      dk.auth,
			AssertionKeys: dk.assertion,
			UpdateKeys:    dk.update,
			NextKeys:      dk.next,
		})
		if err != nil {
			return err
		}

		if err := persistAppend(cmd, res); err != nil {
			return err
		}

		return writeAppended(cmd, res.Log)
	},
}

var runDeactivate = &cli.Command{
	Name:  "deactivate",
	Usage: "Permanently deactivate a DID",
	Flags: flags([]cli.Flag{logFileFlag, inPlaceFlag, signingKeyFlag}, outputFlags),
	Action: func(cmd *cli.Context) error {
		if err := checkInPlace(cmd); err != nil {
			return err
		}

		prior, err := os.ReadFile(cmd.String("log-file"))
		if err != nil {
			return err
		}

		p, err := keys.LoadSigningKey(cmd.String("signing-key"))
		if err != nil {
			return err
		}

		eng := didlog.New(didlog.Config{Logger: newLogger(cmd)})

		res, err := eng.Deactivate(cmd.Context, &didlog.DeactivateArgs{
			Log:      string(prior),
			Provider: p,
		})
		if err != nil {
			return err
		}

		if err := persistAppend(cmd, res); err != nil {
			return err
		}

		return writeAppended(cmd, res.Log)
	},
}

var runPopCreate = &cli.Command{
	Name:  "pop-create",
	Usage: "Sign a proof-of-possession token for a nonce",
	Flags: []cli.Flag{
		signingKeyFlag,
		&cli.StringFlag{
			Name:     "nonce",
			Required: true,
		},
		&cli.DurationFlag{
			Name:  "ttl",
			Value: 5 * time.Minute,
		},
	},
	Action: func(cmd *cli.Context) error {
		p, err := keys.LoadSigningKey(cmd.String("signing-key"))
		if err != nil {
			return err
		}

		tok, err := pop.Create(cmd.Context, p, cmd.String("nonce"), cmd.Duration("ttl"))
		if err != nil {
			return err
		}

		fmt.Println(tok)

		return nil
	},
}

var logSourceFlags = []cli.Flag{
	&cli.StringFlag{
		Name:  "log-file",
		Usage: "read the log from this file",
	},
	&cli.StringFlag{
		Name:  "did",
		Usage: "fetch the log of this DID over https",
	},
}

var runPopVerify = &cli.Command{
	Name:  "pop-verify",
	Usage: "Check a proof-of-possession token against a DID log",
	Flags: flags([]cli.Flag{
		&cli.StringFlag{
			Name:     "token",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "nonce",
			Required: true,
		},
	}, logSourceFlags),
	Action: func(cmd *cli.Context) error {
		log, err := loadLogSource(cmd)
		if err != nil {
			return err
		}

		if err := pop.Verify(cmd.String("token"), cmd.String("nonce"), log); err != nil {
			return err
		}

		fmt.Println("valid")

		return nil
	},
}

var runResolve = &cli.Command{
	Name:  "resolve",
	Usage: "Print the current DID document of a log",
	Flags: logSourceFlags,
	Action: func(cmd *cli.Context) error {
		var doc json.RawMessage

		if did := cmd.String("did"); did != "" {
			res, err := identity.ResolveDID(cmd.Context, nil, did)
			if err != nil {
				return err
			}
			doc = res.Document
		} else {
			log, err := loadLogSource(cmd)
			if err != nil {
				return err
			}

			doc, err = didlog.ChainResolver{}.Resolve(cmd.Context, log)
			if err != nil {
				return err
			}
		}

		var pretty any
		if err := json.Unmarshal(doc, &pretty); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(pretty)
	},
}

var runServe = &cli.Command{
	Name:  "serve",
	Usage: "Serve DID logs and proof-of-possession checks over HTTP",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "addr",
			Value:   ":8080",
			EnvVars: []string{"DIDLOG_ADDR"},
		},
		&cli.StringFlag{
			Name:    "log-dir",
			Usage:   "serve logs from this web root",
			EnvVars: []string{"DIDLOG_LOG_DIR"},
		},
		&cli.StringFlag{
			Name:    "db-name",
			Usage:   "serve logs from this sqlite database",
			EnvVars: []string{"DIDLOG_DB_NAME"},
		},
		&cli.StringFlag{
			Name:    "hostname",
			EnvVars: []string{"DIDLOG_HOSTNAME"},
		},
		&cli.BoolFlag{
			Name:    "allow-publish",
			Usage:   "accept new entries over POST",
			EnvVars: []string{"DIDLOG_ALLOW_PUBLISH"},
		},
		&cli.DurationFlag{
			Name:    "nonce-ttl",
			Value:   5 * time.Minute,
			EnvVars: []string{"DIDLOG_NONCE_TTL"},
		},
	},
	Action: func(cmd *cli.Context) error {
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{}))

		st, err := openStore(cmd.String("log-dir"), cmd.String("db-name"), logger)
		if err != nil {
			return err
		}
		if st == nil {
			return fmt.Errorf("one of --log-dir or --db-name is required")
		}

		s, err := server.New(&server.Args{
			Addr:         cmd.String("addr"),
			Store:        st,
			Logger:       logger,
			Version:      Version,
			Hostname:     cmd.String("hostname"),
			AllowPublish: cmd.Bool("allow-publish"),
			NonceTTL:     cmd.Duration("nonce-ttl"),
		})
		if err != nil {
			return fmt.Errorf("error creating server: %w", err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context, os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := s.Serve(ctx); err != nil {
			return fmt.Errorf("error starting server: %w", err)
		}

		return nil
	},
}

type documentKeys struct {
	auth      []*keys.VerificationKey
	assertion []*keys.VerificationKey
	update    []string
	next      []string
}

func loadDocumentKeys(cmd *cli.Context) (*documentKeys, error) {
	var dk documentKeys

	for _, spec := range cmd.StringSlice("authentication-key") {
		k, err := keys.ParseVerificationKeySpec(spec)
		if err != nil {
			return nil, err
		}
		dk.auth = append(dk.auth, k)
	}

	for _, spec := range cmd.StringSlice("assertion-key") {
		k, err := keys.ParseVerificationKeySpec(spec)
		if err != nil {
			return nil, err
		}
		dk.assertion = append(dk.assertion, k)
	}

	for _, fn := range cmd.StringSlice("update-key") {
		mk, err := keys.LoadMultikey(fn)
		if err != nil {
			return nil, err
		}
		dk.update = append(dk.update, mk)
	}

	for _, fn := range cmd.StringSlice("next-key") {
		mk, err := keys.LoadMultikey(fn)
		if err != nil {
			return nil, err
		}
		dk.next = append(dk.next, mk)
	}

	return &dk, nil
}

func loadLogSource(cmd *cli.Context) (string, error) {
	if fn := cmd.String("log-file"); fn != "" {
		b, err := os.ReadFile(fn)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}

	if did := cmd.String("did"); did != "" {
		return identity.FetchLog(cmd.Context, nil, did)
	}

	return "", fmt.Errorf("one of --log-file or --did is required")
}

func checkInPlace(cmd *cli.Context) error {
	if cmd.Bool("in-place") && cmd.String("out") != "" {
		return fmt.Errorf("--in-place and --out are mutually exclusive")
	}
	return nil
}

// writeAppended replaces --log-file when --in-place is set and otherwise
// behaves like writeOutput.
func writeAppended(cmd *cli.Context, log string) error {
	if !cmd.Bool("in-place") {
		return writeOutput(cmd, log)
	}

	fn := cmd.String("log-file")
	tmp, err := os.CreateTemp(filepath.Dir(fn), ".did.jsonl-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(log); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), fn)
}

func writeOutput(cmd *cli.Context, log string) error {
	out := cmd.String("out")
	if out == "" {
		_, err := fmt.Fprint(os.Stdout, log)
		return err
	}

	flag := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if cmd.Bool("force") {
		flag = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}

	f, err := os.OpenFile(out, flag, 0o644)
	if errors.Is(err, os.ErrExist) {
		return fmt.Errorf("%s exists, use --force to overwrite it", out)
	}
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteString(log); err != nil {
		return err
	}

	return f.Sync()
}

func openStore(dir, dbName string, logger *slog.Logger) (store.Store, error) {
	switch {
	case dir != "" && dbName != "":
		return nil, fmt.Errorf("--log-dir/--publish-dir and --db-name are mutually exclusive")
	case dir != "":
		return store.NewFileStore(&store.FileStoreArgs{Root: dir, Logger: logger})
	case dbName != "":
		return store.NewSQLStore(&store.SQLStoreArgs{DbName: dbName, Logger: logger})
	default:
		return nil, nil
	}
}

func persist(cmd *cli.Context, path string, res *didlog.Result, genesis bool) error {
	ctx := cmd.Context

	st, err := openStore(cmd.String("publish-dir"), cmd.String("db-name"), newLogger(cmd))
	if err != nil {
		return err
	}

	if st != nil {
		if genesis {
			err = st.Create(ctx, path, res.DID, res.Line)
		} else {
			err = st.Append(ctx, path, res.Line)
		}
		if err != nil {
			return fmt.Errorf("storing entry: %w", err)
		}
	}

	if u := cmd.String("publish-url"); u != "" {
		c, err := publish.NewClient(&publish.ClientArgs{Service: u})
		if err != nil {
			return err
		}

		if _, err := c.SendEntry(ctx, path, res.Line); err != nil {
			return fmt.Errorf("publishing entry: %w", err)
		}
	}

	return nil
}

func persistAppend(cmd *cli.Context, res *didlog.Result) error {
	loc, _, err := method.LocatorOfDID(res.DID)
	if err != nil {
		return err
	}
	return persist(cmd, loc.StorePath(), res, false)
}
