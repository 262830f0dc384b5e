/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Seednode/partydisplay/catalog"
	"github.com/Seednode/partydisplay/roster"
)

// openStore loads the catalog and the persisted party the same way the
// server does. A running server picks up changes through its watcher.
func openStore(cfg *Config) *roster.Store {
	c := catalog.Load(cfg.sources(), cfg.logger.Named("catalog"))

	return roster.Open(c, roster.NewFileStore(cfg.partyFile, c, cfg.logger.Named("party")), cfg.logger.Named("party"))
}

// readParty loads the persisted party without writing anything. A missing
// file reads as an empty party.
func readParty(cfg *Config) (roster.Roster, error) {
	c := catalog.Load(cfg.sources(), cfg.logger.Named("catalog"))

	r, err := roster.NewFileStore(cfg.partyFile, c, cfg.logger.Named("party")).Load()
	if errors.Is(err, fs.ErrNotExist) {
		return roster.Roster{}, nil
	}

	return r, err
}

// slotArg reads a slot as shown to people, numbered from 1.
func slotArg(arg string) (int, error) {
	n, err := strconv.Atoi(arg)
	if err != nil || !roster.ValidSlot(n-1) {
		return 0, fmt.Errorf("%w: %q (want 1-%d)", roster.ErrInvalidSlot, arg, roster.Size)
	}

	return n - 1, nil
}

func printParty(w io.Writer, r roster.Roster) {
	for i, id := range r {
		if id == "" {
			id = "(empty)"
		}

		fmt.Fprintf(w, "%d. %s\n", i+1, id)
	}
}

func partyRunE(cfg *Config, fn func(s *roster.Store, args []string) (roster.Roster, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		r, err := fn(openStore(cfg), args)
		if err != nil {
			return err
		}

		printParty(cmd.OutOrStdout(), r)

		return nil
	}
}

func newPartyCmd(cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "party",
		Short: "Show or edit the persisted party.",
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the party.",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := readParty(cfg)
			if err != nil {
				return err
			}

			printParty(cmd.OutOrStdout(), r)

			return nil
		},
	}

	setCmd := &cobra.Command{
		Use:   "set SLOT NAME",
		Short: "Put a character into a slot.",
		Args:  cobra.ExactArgs(2),
		RunE: partyRunE(cfg, func(s *roster.Store, args []string) (roster.Roster, error) {
			slot, err := slotArg(args[0])
			if err != nil {
				return roster.Roster{}, err
			}

			e, err := s.Catalog().Find(args[1])
			if err != nil {
				return roster.Roster{}, fmt.Errorf("%w: %s", roster.ErrUnknownEntity, args[1])
			}

			return s.Assign(slot, e.ID())
		}),
	}

	clearCmd := &cobra.Command{
		Use:   "clear SLOT",
		Short: "Empty a slot.",
		Args:  cobra.ExactArgs(1),
		RunE: partyRunE(cfg, func(s *roster.Store, args []string) (roster.Roster, error) {
			slot, err := slotArg(args[0])
			if err != nil {
				return roster.Roster{}, err
			}

			return s.Clear(slot)
		}),
	}

	moveCmd := &cobra.Command{
		Use:   "move FROM TO",
		Short: "Move a character to another slot, swapping with whoever is there.",
		Args:  cobra.ExactArgs(2),
		RunE: partyRunE(cfg, func(s *roster.Store, args []string) (roster.Roster, error) {
			from, err := slotArg(args[0])
			if err != nil {
				return roster.Roster{}, err
			}
			to, err := slotArg(args[1])
			if err != nil {
				return roster.Roster{}, err
			}

			return s.Move(from, to)
		}),
	}

	randomCmd := &cobra.Command{
		Use:   "random",
		Short: "Fill the party with random characters.",
		Args:  cobra.ExactArgs(0),
		RunE: partyRunE(cfg, func(s *roster.Store, _ []string) (roster.Roster, error) {
			return s.Randomize(newRand())
		}),
	}

	resetCmd := &cobra.Command{
		Use:   "reset",
		Short: "Empty every slot.",
		Args:  cobra.ExactArgs(0),
		RunE: partyRunE(cfg, func(s *roster.Store, _ []string) (roster.Roster, error) {
			return s.Reset()
		}),
	}

	cmd.AddCommand(showCmd, setCmd, clearCmd, moveCmd, randomCmd, resetCmd)

	return cmd
}
