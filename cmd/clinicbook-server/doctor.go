package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/clinicbook/clinicbook/internal/domain/availability"
	"github.com/clinicbook/clinicbook/internal/domain/doctor"
)

func doctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Manage the doctor directory (postgres)",
	}

	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Register a doctor",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			specialty, _ := cmd.Flags().GetString("specialization")
			rawID, _ := cmd.Flags().GetString("id")

			d := &doctor.Doctor{Name: name, Specialization: specialty}
			if rawID != "" {
				id, err := uuid.Parse(rawID)
				if err != nil {
					return fmt.Errorf("--id: %w", err)
				}
				d.ID = id
			}

			ctx := cmd.Context()
			pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			svc := doctor.NewService(doctor.NewRepoPG(pool), nil, availability.NewPGStore(pool))
			if err := svc.Register(ctx, d); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered %s (%s) with id %s\n", d.Name, d.Specialization, d.ID)
			return nil
		},
	}
	addCmd.Flags().String("name", "", "Doctor's display name")
	addCmd.Flags().String("specialization", "", "Specialization, e.g. Cardiology")
	addCmd.Flags().String("id", "", "Fixed id (defaults to a new uuid)")
	addCmd.MarkFlagRequired("name")
	addCmd.MarkFlagRequired("specialization")
	cmd.AddCommand(addCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List registered doctors",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			ds, err := doctor.NewService(doctor.NewRepoPG(pool), nil, nil).List(ctx)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tSPECIALIZATION")
			for _, d := range ds {
				fmt.Fprintf(w, "%s\t%s\t%s\n", d.ID, d.Name, d.Specialization)
			}
			return w.Flush()
		},
	})

	return cmd
}
