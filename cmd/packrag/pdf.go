package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"packrag/internal/pdf"
)

var (
	renderZoom float64
	renderOut  string
)

var pagesCmd = &cobra.Command{
	Use:   "pages [pdf]",
	Short: "Print the page count of a PDF",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := pdf.New().PageCount(context.Background(), args[0])
		if err != nil {
			return withInstallHint(err)
		}
		cmd.Println(n)
		return nil
	},
}

var renderCmd = &cobra.Command{
	Use:   "render [pdf] [page]",
	Short: "Render one PDF page as PNG",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		page, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid page %q: %w", args[1], err)
		}
		png, err := pdf.New().RenderPNG(context.Background(), args[0], page, renderZoom)
		if err != nil {
			return withInstallHint(err)
		}
		if err := os.WriteFile(renderOut, png, 0o644); err != nil {
			return err
		}
		cmd.Printf("Wrote %s\n", renderOut)
		return nil
	},
}

func init() {
	renderCmd.Flags().Float64Var(&renderZoom, "zoom", 2, "scale over 72 dpi")
	renderCmd.Flags().StringVarP(&renderOut, "out", "o", "page.png", "output PNG path")
	rootCmd.AddCommand(pagesCmd, renderCmd)
}

func withInstallHint(err error) error {
	if errors.Is(err, pdf.ErrPDFToolNotFound) {
		return fmt.Errorf("%w\n%s", err, pdf.InstallInstructions())
	}
	return err
}
