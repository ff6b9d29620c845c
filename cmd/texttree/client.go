package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/nainya/texttree/internal/server"
)

const requestTimeout = 10 * time.Second

var (
	showID      string
	showOutline bool

	showCmd = &cobra.Command{
		Use:   "show",
		Short: "Print the current document, or one element with --id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(cmd, func(ctx context.Context, c *server.Client) error {
				el, err := c.Root(ctx)
				if showID != "" {
					el, err = c.Element(ctx, showID)
				}
				if err != nil {
					return err
				}
				if showOutline {
					return outline(ctx, c, cmd.OutOrStdout(), el, 0)
				}
				fmt.Fprintln(cmd.OutOrStdout(), el.Text)
				return nil
			})
		},
	}

	editCmd = &cobra.Command{
		Use:   "edit <element-id> <text>",
		Short: "Replace the text of an element",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c *server.Client) error {
				res, err := c.UpdateElement(ctx, args[0], strings.Join(args[1:], " "))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "version %d root %s replaced by %s\n",
					res.Version, res.RootID, strings.Join(res.Replacements, ", "))
				return nil
			})
		},
	}

	historyCmd = &cobra.Command{
		Use:   "history",
		Short: "List all versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(cmd, func(ctx context.Context, c *server.Client) error {
				info, err := c.VersionInfo(ctx)
				if err != nil {
					return err
				}
				return printHistory(cmd.OutOrStdout(), info)
			})
		},
	}

	switchCmd = &cobra.Command{
		Use:   "switch <version>",
		Short: "Make an earlier or later version current",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("version must be a number: %w", err)
			}
			return withClient(cmd, func(ctx context.Context, c *server.Client) error {
				res, err := c.SwitchVersion(ctx, n)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "current version %d root %s\n", res.Version, res.RootID)
				return nil
			})
		},
	}
)

func init() {
	showCmd.Flags().StringVar(&showID, "id", "", "element to print instead of the document")
	showCmd.Flags().BoolVar(&showOutline, "outline", false, "print the element tree with ids")
}

func withClient(cmd *cobra.Command, fn func(context.Context, *server.Client) error) error {
	conn, err := grpc.NewClient(serverAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("connect %s: %w", serverAddr, err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
	defer cancel()
	return fn(ctx, server.NewClient(conn))
}

func outline(ctx context.Context, c *server.Client, w io.Writer, el server.ElementInfo, depth int) error {
	line := fmt.Sprintf("%s%s %s", strings.Repeat("  ", depth), el.Kind, el.ID)
	if el.Kind == "word" {
		line += fmt.Sprintf(" %q", el.Contents)
	}
	fmt.Fprintln(w, line)
	for _, id := range el.Children {
		child, err := c.Element(ctx, id)
		if err != nil {
			return err
		}
		if err := outline(ctx, c, w, child, depth+1); err != nil {
			return err
		}
	}
	return nil
}

func printHistory(w io.Writer, info server.VersionInfo) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tROOT\tCREATED\t")
	for _, v := range info.Versions {
		marker := ""
		if v.Number == info.Current {
			marker = "*"
		}
		fmt.Fprintf(tw, "%d%s\t%s\t%s\t\n", v.Number, marker, v.RootID, v.CreatedAt.Format(time.RFC3339))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "current %d of %d (format %s)\n", info.Current, info.Latest, info.FormatVersion)
	return nil
}
