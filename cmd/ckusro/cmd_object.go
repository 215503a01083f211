package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/tett23/ckusro/pkg/object"
)

func newHashObjectCmd() *cobra.Command {
	var (
		write    bool
		kindName string
	)

	cmd := &cobra.Command{
		Use:   "hash-object <file|->",
		Short: "Compute an object id, optionally writing the object",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := object.ParseKind(kindName)
			if err != nil {
				return err
			}

			var content []byte
			if args[0] == "-" {
				content, err = io.ReadAll(cmd.InOrStdin())
			} else {
				content, err = os.ReadFile(args[0])
			}
			if err != nil {
				return fmt.Errorf("hash-object: %w", err)
			}

			h := object.HashObject(kind, content)
			if write {
				r, err := openRepo(cmd)
				if err != nil {
					return err
				}
				if h, err = r.Store.Write(kind, content); err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), h)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&write, "write", "w", false, "write the object into the store")
	cmd.Flags().StringVarP(&kindName, "type", "t", string(object.KindBlob), "object kind (blob, tree, commit, tag)")
	return cmd
}

func newCatFileCmd() *cobra.Command {
	var (
		showKind bool
		showSize bool
		file     string
	)

	cmd := &cobra.Command{
		Use:   "cat-file [-t|-s] (<id> | --file <path>)",
		Short: "Decode a loose object and print its kind, size or content",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if showKind && showSize {
				return errors.New("cat-file: -t and -s are mutually exclusive")
			}

			var obj *object.GitObject
			switch {
			case file != "" && len(args) == 0:
				raw, err := os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("cat-file: %w", err)
				}
				if obj, err = object.Decode(raw); err != nil {
					return fmt.Errorf("cat-file %s: %w", file, err)
				}
			case file == "" && len(args) == 1:
				h, err := object.ParseHash(args[0])
				if err != nil {
					return fmt.Errorf("cat-file: %w", err)
				}
				r, err := openRepo(cmd)
				if err != nil {
					return err
				}
				if obj, err = r.Store.Read(h); err != nil {
					return err
				}
			default:
				return errors.New("cat-file: need exactly one of <id> or --file")
			}

			out := cmd.OutOrStdout()
			switch {
			case showKind:
				fmt.Fprintln(out, obj.Kind)
			case showSize:
				fmt.Fprintln(out, obj.Length)
			default:
				_, err := out.Write(obj.Content)
				return err
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&showKind, "type", "t", false, "print the object kind")
	cmd.Flags().BoolVarP(&showSize, "size", "s", false, "print the object size")
	cmd.Flags().StringVar(&file, "file", "", "decode a compressed loose object file instead of reading from the store")
	return cmd
}
