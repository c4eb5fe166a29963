package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Protocol-Lattice/go-companion/src/conversation/store"
	"github.com/Protocol-Lattice/go-companion/src/providers/profile"
)

func newProfileCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage stored personality profiles",
	}
	cmd.AddCommand(newProfileImportCmd(c))
	return cmd
}

func newProfileImportCmd(c *cli) *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Store a personality profile JSON file in MongoDB for an owner",
		Example: `  companion profile import profile.json --owner telegram:12345
  companion profile import profile.json --owner cli`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if owner == "" {
				return errors.New("--owner is required")
			}
			uri := c.cfg.Profile.MongoURI
			if uri == "" {
				uri = c.cfg.Store.MongoURI
			}
			if uri == "" {
				return errors.New("profile import needs profile.mongo_uri or store.mongo_uri")
			}

			p, err := profile.ReadFile(args[0])
			if err != nil {
				return err
			}
			client, err := store.ConnectMongo(cmd.Context(), uri)
			if err != nil {
				return fmt.Errorf("connect mongo: %w", err)
			}
			defer func() { _ = client.Disconnect(cmd.Context()) }()

			ms := profile.NewMongoStore(client, c.cfg.Profile.MongoDatabase, c.cfg.Profile.Collection)
			if err := ms.Put(cmd.Context(), owner, p); err != nil {
				return fmt.Errorf("store profile: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n",
				valueStyle.Render("stored"),
				dimStyle.Render(fmt.Sprintf("%d metrics for", len(p.Metrics))),
				personaStyle.Render(owner))
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "Owner id the profile belongs to (telegram:<chat id> or cli)")
	return cmd
}
