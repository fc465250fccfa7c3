package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/DukeRupert/stateless/internal/domain"
	"github.com/DukeRupert/stateless/internal/repository"
	"github.com/DukeRupert/stateless/internal/service"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// userFile is the layout of a user import file:
//
//	users:
//	  - username: alice
//	    password: correct horse battery
//	    authorities: [ROLE_ADMIN, ROLE_USER]
//	  - username: bob
//	    password: hunter2hunter2
//	    enabled: false
type userFile struct {
	Users []domain.UserSeed `yaml:"users"`
}

func usersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage user accounts",
	}

	cmd.AddCommand(usersImportCmd())

	return cmd
}

func usersImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Create or update users from a YAML file",
		Long: `Create or update users from a YAML file. Passwords are hashed
with bcrypt before they are stored; existing users with the same
username are overwritten.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			seeds, err := parseUserFile(f)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}

			a, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer a.db.Close()

			users := service.NewUserService(repository.New(a.db), a.logger)
			n, err := users.ImportUsers(cmd.Context(), seeds)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "imported %d users\n", n)
			return nil
		},
	}
}

// parseUserFile decodes an import file. Unknown keys are rejected so that
// typos such as "authority:" do not silently drop data.
func parseUserFile(r io.Reader) ([]domain.UserSeed, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var file userFile
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("file is empty")
		}
		return nil, err
	}

	if len(file.Users) == 0 {
		return nil, errors.New("no users listed")
	}
	return file.Users, nil
}
