package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/irgordon/karidc/api/internal/adapters/document"
	"github.com/irgordon/karidc/api/internal/core/domain"
	"github.com/irgordon/karidc/api/internal/core/update"
)

// options holds the flags shared by every subcommand.
type options struct {
	domainFile string
	hostFiles  []string
	builder    document.Builder
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "karidc",
		Short:         "Inspect and validate karidc model documents",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.domainFile, "domain", "d", "", "domain document (yaml, json or jsonc)")
	root.PersistentFlags().StringSliceVarP(&opts.hostFiles, "host", "H", nil, "host document, repeatable")

	root.AddCommand(
		newFingerprintCmd(opts),
		newDiffCmd(opts),
		newFlattenCmd(opts),
		newValidateCmd(opts),
	)
	return root
}

// ===========================================================================
// Loading
// ===========================================================================

func (o *options) loadDomain() (*domain.Domain, error) {
	if o.domainFile == "" {
		return nil, errors.New("--domain is required")
	}
	return o.builder.ReadDomainFile(o.domainFile)
}

func (o *options) loadHosts() ([]*domain.Host, error) {
	hosts := make([]*domain.Host, 0, len(o.hostFiles))
	seen := make(map[string]string)
	for _, path := range o.hostFiles {
		h, err := o.builder.ReadHostFile(path)
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[h.Name()]; dup {
			return nil, fmt.Errorf("host %q is declared by both %s and %s", h.Name(), prev, path)
		}
		seen[h.Name()] = path
		hosts = append(hosts, h)
	}
	return hosts, nil
}

// ===========================================================================
// fingerprint
// ===========================================================================

func newFingerprintCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "fingerprint",
		Short: "Print the fingerprint of the domain and of every host",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := opts.loadDomain()
			if err != nil {
				return err
			}
			hosts, err := opts.loadHosts()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "domain\t%016x\n", d.Fingerprint())
			for _, h := range hosts {
				fmt.Fprintf(out, "host/%s\t%016x\n", h.Name(), h.Fingerprint())
			}
			return nil
		},
	}
}

// ===========================================================================
// diff
// ===========================================================================

func newDiffCmd(opts *options) *cobra.Command {
	var hostMode bool
	cmd := &cobra.Command{
		Use:   "diff <from> <to>",
		Short: "List the updates that turn one document into another",
		Long: `diff compares two domain documents, or two host documents with --hosts,
and prints the updates the controller would apply, one per line.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var lines []string
			if hostMode {
				from, err := opts.builder.ReadHostFile(args[0])
				if err != nil {
					return err
				}
				to, err := opts.builder.ReadHostFile(args[1])
				if err != nil {
					return err
				}
				for _, u := range update.HostDifference(from, to) {
					lines = append(lines, u.String())
				}
			} else {
				from, err := opts.builder.ReadDomainFile(args[0])
				if err != nil {
					return err
				}
				to, err := opts.builder.ReadDomainFile(args[1])
				if err != nil {
					return err
				}
				for _, u := range update.DomainDifference(from, to) {
					lines = append(lines, u.String())
				}
			}

			out := cmd.OutOrStdout()
			if len(lines) == 0 {
				fmt.Fprintln(out, "no differences")
				return nil
			}
			for _, l := range lines {
				fmt.Fprintln(out, l)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&hostMode, "hosts", false, "compare host documents instead of domain documents")
	return cmd
}

// ===========================================================================
// flatten
// ===========================================================================

func newFlattenCmd(opts *options) *cobra.Command {
	var (
		server string
		format string
	)
	cmd := &cobra.Command{
		Use:   "flatten",
		Short: "Print the flattened model of one server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f := document.Format(strings.ToLower(format))
			if f != document.YAML && f != document.JSON {
				return fmt.Errorf("unsupported --format %q (use yaml or json)", format)
			}
			d, err := opts.loadDomain()
			if err != nil {
				return err
			}
			hosts, err := opts.loadHosts()
			if err != nil {
				return err
			}
			h, err := hostOf(hosts, server)
			if err != nil {
				return err
			}
			m, err := domain.NewServerModel(d, h, server)
			if err != nil {
				return err
			}
			data, err := document.MarshalServerModel(m, f)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	cmd.Flags().StringVarP(&server, "server", "s", "", "server to flatten")
	cmd.Flags().StringVarP(&format, "format", "o", "yaml", "output format: yaml or json")
	_ = cmd.MarkFlagRequired("server")
	return cmd
}

// hostOf finds the host declaring server.
func hostOf(hosts []*domain.Host, server string) (*domain.Host, error) {
	for _, h := range hosts {
		if _, ok := h.Server(server); ok {
			return h, nil
		}
	}
	return nil, fmt.Errorf("server %q: %w", server, domain.ErrNotFound)
}

// ===========================================================================
// validate
// ===========================================================================

func newValidateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Flatten every declared server and report the ones that do not resolve",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := opts.loadDomain()
			if err != nil {
				return err
			}
			hosts, err := opts.loadHosts()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			owners := make(map[string]string)
			var total, failed int
			for _, h := range hosts {
				for _, name := range h.ServerNames() {
					total++
					if owner, dup := owners[name]; dup {
						fmt.Fprintf(out, "FAIL %s/%s: server name already used on host %s\n", h.Name(), name, owner)
						failed++
						continue
					}
					owners[name] = h.Name()

					m, err := domain.NewServerModel(d, h, name)
					if err != nil {
						fmt.Fprintf(out, "FAIL %s/%s: %v\n", h.Name(), name, err)
						failed++
						continue
					}
					fmt.Fprintf(out, "ok   %s/%s\t%016x\n", h.Name(), name, m.Fingerprint())
				}
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d servers do not resolve", failed, total)
			}
			fmt.Fprintf(out, "%d servers resolve\n", total)
			return nil
		},
	}
}
