package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Protocol-Lattice/go-companion/src/persona"
)

func newPersonasCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "personas",
		Short: "List the persona catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := persona.Load(cmd.Context(), persona.Source{
				Kind:        c.cfg.Personas.Source,
				Path:        c.cfg.Personas.Path,
				Table:       c.cfg.Personas.Table,
				SupabaseURL: c.cfg.Personas.SupabaseURL,
				SupabaseKey: c.cfg.Personas.SupabaseKey,
			})
			if err != nil {
				return err
			}
			printPersonas(cmd.OutOrStdout(), catalog.All())
			return nil
		},
	}
}

func printPersonas(out io.Writer, personas []persona.Persona) {
	fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("%d personas", len(personas))))
	for _, p := range personas {
		fmt.Fprintf(out, "\n%s %s %s\n",
			personaStyle.Render(p.Name),
			dimStyle.Render(p.Model),
			valueStyle.Render("t="+strconv.FormatFloat(p.Temperature, 'f', -1, 64)))
		if p.UsageGuidance != "" {
			fmt.Fprintln(out, replyStyle.Render(p.UsageGuidance))
		}
	}
}
