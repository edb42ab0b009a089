package main

import (
	"context"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	"geoattend/internal/course"
	"geoattend/internal/identity"
	"geoattend/internal/store"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	identities *identity.Service
	ids        identity.Store
	courses    course.Store
	migrate    func(ctx context.Context) error // nil without a database
	out        io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate                                  - apply the database schema")
	fmt.Fprintln(cli.out, "  create-lecturer -username U -name NAME   - add a lecturer; the password is prompted next")
	fmt.Fprintln(cli.out, "  import-students -file roster.csv         - add or rename students from index_number,name rows")
	fmt.Fprintln(cli.out, "  seed                                     - insert demo accounts and courses")
}

func (cli *commandLine) run(ctx context.Context, args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	createLecturerCmd := flag.NewFlagSet("create-lecturer", flag.ContinueOnError)
	createLecturerUname := createLecturerCmd.String("username", "", "The lecturer's login name.")
	createLecturerName := createLecturerCmd.String("name", "", "The lecturer's display name.")

	importCmd := flag.NewFlagSet("import-students", flag.ContinueOnError)
	importFile := importCmd.String("file", "", "CSV file with index_number,name rows. A header row is optional.")

	switch args[1] {
	case "migrate":
		if cli.migrate == nil {
			return errors.New("migrate needs STORE_BACKEND=postgres")
		}
		if err := cli.migrate(ctx); err != nil {
			return err
		}
		fmt.Fprintln(cli.out, "schema applied")
		return nil

	case "create-lecturer":
		if err := createLecturerCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *createLecturerUname == "" || *createLecturerName == "" {
			createLecturerCmd.Usage()
			return errHelp
		}
		fmt.Fprint(cli.out, "Enter password:")
		pwd, err := readPasswordFunc(int(syscall.Stdin))
		fmt.Fprintln(cli.out)
		if err != nil {
			return err
		}
		if len(pwd) == 0 {
			createLecturerCmd.Usage()
			return errHelp
		}
		lec, err := cli.identities.CreateLecturer(ctx, *createLecturerUname, *createLecturerName, string(pwd))
		if err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "lecturer %s created with id %d\n", lec.Username, lec.ID)
		return nil

	case "import-students":
		if err := importCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *importFile == "" {
			importCmd.Usage()
			return errHelp
		}
		f, err := os.Open(*importFile)
		if err != nil {
			return err
		}
		defer f.Close()
		rows, err := readRoster(f)
		if err != nil {
			return err
		}
		res := cli.identities.ImportStudents(ctx, rows)
		fmt.Fprintf(cli.out, "added %d, updated %d, skipped %d\n", res.Added, res.Updated, res.Skipped)
		for _, e := range res.Errors {
			fmt.Fprintln(cli.out, "  "+e)
		}
		return nil

	case "seed":
		if err := store.Seed(ctx, cli.ids, cli.courses); err != nil {
			return err
		}
		fmt.Fprintln(cli.out, "seed complete")
		return nil

	default:
		cli.printUsage()
		return errHelp
	}
}

// readRoster parses index_number,name rows, skipping a header row.
func readRoster(r io.Reader) ([]identity.StudentImport, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read roster: %w", err)
	}

	rows := make([]identity.StudentImport, 0, len(records))
	for i, rec := range records {
		if i == 0 && len(rec) > 0 && strings.EqualFold(strings.TrimSpace(rec[0]), "index_number") {
			continue
		}
		if len(rec) < 2 {
			return nil, fmt.Errorf("roster line %d: want index_number,name", i+1)
		}
		rows = append(rows, identity.StudentImport{IndexNumber: rec[0], Name: rec[1]})
	}
	return rows, nil
}
