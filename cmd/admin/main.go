package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/haileyok/didlog/keys"
	"github.com/haileyok/didlog/store"
	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v2"
)

func main() {
	app := cli.App{
		Name: "admin",
		Commands: cli.Commands{
			runCreateSigningKey,
			runCreateJwk,
			runShowKey,
			runListLogs,
		},
		ErrWriter: os.Stderr,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

var runCreateSigningKey = &cli.Command{
	Name:  "create-signing-key",
	Usage: "creates an Ed25519 update key as PKCS#8 PEM",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "out",
			Required: true,
			Usage:    "output file for your signing key, the public key goes to <out>.pub",
		},
		&cli.BoolFlag{
			Name:  "force",
			Usage: "overwrite an existing key",
		},
	},
	Action: func(cmd *cli.Context) error {
		p, err := keys.GenerateEd25519Provider()
		if err != nil {
			return err
		}

		if err := keys.WriteSigningKey(cmd.String("out"), p, cmd.Bool("force")); err != nil {
			return err
		}

		fmt.Println(p.VerificationKeyMultibase())

		return nil
	},
}

var runCreateJwk = &cli.Command{
	Name:  "create-jwk",
	Usage: "creates an Ed25519 update key as a private jwk",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "out",
			Required: true,
			Usage:    "output file for your jwk",
		},
		&cli.StringFlag{
			Name:  "kid",
			Usage: "key id, defaults to the current unix time",
		},
		&cli.BoolFlag{
			Name:  "force",
			Usage: "overwrite an existing key",
		},
	},
	Action: func(cmd *cli.Context) error {
		p, err := keys.GenerateEd25519Provider()
		if err != nil {
			return err
		}

		kid := cmd.String("kid")
		if kid == "" {
			kid = strconv.FormatInt(time.Now().Unix(), 10)
		}

		if err := keys.WriteJWK(cmd.String("out"), p, kid, cmd.Bool("force")); err != nil {
			return err
		}

		fmt.Println(p.VerificationKeyMultibase())

		return nil
	},
}

var runShowKey = &cli.Command{
	Name:  "show-key",
	Usage: "prints the multikey and did:key of a key file",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "key",
			Required: true,
		},
	},
	Action: func(cmd *cli.Context) error {
		mk, err := keys.LoadMultikey(cmd.String("key"))
		if err != nil {
			return err
		}

		fmt.Printf("multikey: %s\ndid:key:  %s\n", mk, keys.DIDKey(mk))

		return nil
	},
}

var runListLogs = &cli.Command{
	Name:  "list-logs",
	Usage: "lists the logs kept in a sqlite store, or prints the log of one did",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "db-name",
			Value:   "didlog.db",
			EnvVars: []string{"DIDLOG_DB_NAME"},
		},
		&cli.StringFlag{
			Name:  "did",
			Usage: "print this did's log instead of the listing",
		},
	},
	Action: func(cmd *cli.Context) error {
		st, err := store.NewSQLStore(&store.SQLStoreArgs{DbName: cmd.String("db-name")})
		if err != nil {
			return err
		}

		if did := cmd.String("did"); did != "" {
			path, err := st.LookupDID(cmd.Context, did)
			if err != nil {
				return fmt.Errorf("looking up %s: %w", did, err)
			}

			log, err := st.Load(cmd.Context, path)
			if err != nil {
				return err
			}

			fmt.Print(log)
			return nil
		}

		logs, err := st.List(cmd.Context)
		if err != nil {
			return err
		}

		for _, l := range logs {
			path := l.Path
			if path == "" {
				path = ".well-known"
			}
			fmt.Printf("%s\t%s\t%d entries\t%s\n", l.Did, path, l.Entries, l.LastVersionID)
		}

		return nil
	},
}
