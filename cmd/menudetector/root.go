package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for the detector.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "menudetector",
		Short: "Extract menu items and prices from photos of restaurant menus",
		Long: `OCR Menu Detector reads a photograph of a restaurant menu, recognizes
the text, and extracts structured menu items: names, prices, currencies,
and categories. Item names can be translated on the fly.

Run "menudetector serve" to start the HTTP service with the built-in web
page, or "menudetector scan" for one-shot scans from the command line.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewScanCmd())
	cmd.AddCommand(NewDoctorCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
