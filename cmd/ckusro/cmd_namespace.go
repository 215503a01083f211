package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tett23/ckusro/pkg/namespace"
	"github.com/tett23/ckusro/pkg/object"
)

func newNamespaceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "ns",
		Aliases: []string{"namespace"},
		Short:   "Manage domain@user:repository namespaces",
	}
	cmd.AddCommand(newNamespaceParseCmd())
	cmd.AddCommand(newNamespaceAddCmd())
	cmd.AddCommand(newNamespaceRemoveCmd())
	cmd.AddCommand(newNamespaceShowCmd())
	cmd.AddCommand(newNamespaceListCmd())
	cmd.AddCommand(newNamespaceLogCmd())
	return cmd
}

func newNamespaceParseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "parse <fragment>",
		Short: "Split a path fragment into its components",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := namespace.ParseFragment(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "domain\t%s\n", f.Domain)
			fmt.Fprintf(out, "user\t%s\n", f.User)
			fmt.Fprintf(out, "repository\t%s\n", f.Repository)
			return nil
		},
	}
}

func newNamespaceAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <fragment> <object-id>",
		Short: "Register a fragment as pointing at an object",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := object.ParseHash(args[1])
			if err != nil {
				return err
			}
			r, err := openRepo(cmd)
			if err != nil {
				return err
			}
			ref, err := r.RegisterFragment(cmd.Context(), args[0], id)
			if err != nil {
				return err
			}
			f, err := ref.Ref().Fragment()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", ref.Ref().ObjectID(), f)
			return nil
		},
	}
}

func newNamespaceRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rm <fragment>",
		Aliases: []string{"remove"},
		Short:   "Unregister a fragment",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo(cmd)
			if err != nil {
				return err
			}
			return r.Unregister(cmd.Context(), args[0])
		},
	}
}

type chainLevel struct {
	Kind   string `json:"kind" yaml:"kind"`
	Name   string `json:"name" yaml:"name"`
	Object string `json:"object" yaml:"object"`
}

type chainView struct {
	Fragment string       `json:"fragment" yaml:"fragment"`
	Chain    []chainLevel `json:"chain" yaml:"chain"`
}

// newChainView walks a repository ref up to its domain through the typed
// parent accessors, so a corrupt chain is reported rather than printed.
func newChainView(repo namespace.RepositoryRef) (*chainView, error) {
	user, err := repo.Parent()
	if err != nil {
		return nil, err
	}
	domain, err := user.Parent()
	if err != nil {
		return nil, err
	}
	f, err := repo.Ref().Fragment()
	if err != nil {
		return nil, err
	}

	view := &chainView{Fragment: f.String()}
	for _, ref := range []*namespace.Ref{domain.Ref(), user.Ref(), repo.Ref()} {
		view.Chain = append(view.Chain, chainLevel{
			Kind:   ref.Kind().String(),
			Name:   ref.Namespace().Name(),
			Object: ref.ObjectID().String(),
		})
	}
	return view, nil
}

func newNamespaceShowCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "show <fragment>",
		Short: "Show the domain, user and repository refs of a fragment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo(cmd)
			if err != nil {
				return err
			}
			ref, err := r.Resolve(args[0])
			if err != nil {
				return err
			}
			view, err := newChainView(ref)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch strings.ToLower(format) {
			case "text", "":
				fmt.Fprintln(out, view.Fragment)
				for _, l := range view.Chain {
					fmt.Fprintf(out, "  %-10s %s %s\n", l.Kind, l.Object, l.Name)
				}
			case "yaml":
				data, err := yaml.Marshal(view)
				if err != nil {
					return fmt.Errorf("show: yaml: %w", err)
				}
				_, err = out.Write(data)
				return err
			case "json":
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(view)
			default:
				return fmt.Errorf("show: unknown format %q (want text, yaml or json)", format)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "o", "text", "output format: text, yaml or json")
	return cmd
}

func newNamespaceListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered namespaces as a tree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo(cmd)
			if err != nil {
				return err
			}
			m, err := r.Namespaces()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, path := range m.Paths() {
				ref, _ := m.LookupPath(path)
				if ref.Kind() != namespace.KindDomain {
					continue
				}
				fmt.Fprintf(out, "%s\n", ref.Namespace().Name())
				for _, user := range m.Children(path) {
					fmt.Fprintf(out, "  %s%s\n", namespace.UserSeparator, user.Namespace().Name())
					userPath := path + namespace.UserSeparator + user.Namespace().Name()
					for _, repo := range m.Children(userPath) {
						fmt.Fprintf(out, "    %s%s %s\n", namespace.RepositorySeparator, repo.Namespace().Name(), repo.ObjectID())
					}
				}
			}
			return nil
		},
	}
}

func newNamespaceLogCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show namespace registration history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo(cmd)
			if err != nil {
				return err
			}
			entries, err := r.ReadReflog(limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, e := range entries {
				sha := e.NewID.String()[:8]
				if e.NewID == object.ZeroHash {
					sha = "deleted "
				}
				ts := time.Unix(e.Timestamp, 0).UTC().Format(time.RFC3339)
				fmt.Fprintf(out, "%s %s %s\n", sha, ts, e.Fragment)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum entries to show")
	return cmd
}
