package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/fentz26/meetbot/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent bot runs from the local journal",
	RunE:  runRunsList,
}

var eventsCmd = &cobra.Command{
	Use:   "events [run-id]",
	Short: "Show the events a run reported",
	Args:  cobra.ExactArgs(1),
	RunE:  runEventsList,
}

var transitionsCmd = &cobra.Command{
	Use:   "transitions [run-id]",
	Short: "Show the audited state transitions of a run",
	Args:  cobra.ExactArgs(1),
	RunE:  runTransitionsList,
}

var (
	runsLimit  int
	outputJSON bool
)

func init() {
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "Maximum number of runs to show")
	for _, c := range []*cobra.Command{runsCmd, eventsCmd, transitionsCmd} {
		c.Flags().BoolVar(&outputJSON, "json", false, "Output JSON")
	}
}

func openStore(cmd *cobra.Command) (*store.Store, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return store.New(cfg.StorePath)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runRunsList(cmd *cobra.Command, args []string) error {
	st, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.ListRuns(runsLimit)
	if err != nil {
		return err
	}
	if outputJSON {
		return printJSON(runs)
	}
	if len(runs) == 0 {
		fmt.Println("No runs found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tBOT\tPLATFORM\tSTATE\tSTARTED\tRESULT")
	for _, r := range runs {
		result := r.Recording
		if r.Error != "" {
			result = r.Error
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\n",
			r.ID, r.BotID, r.Platform, r.State, r.StartedAt.Local().Format(time.DateTime), result)
	}
	return w.Flush()
}

func runEventsList(cmd *cobra.Command, args []string) error {
	st, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	if _, err := st.GetRun(args[0]); err != nil {
		return err
	}
	events, err := st.ListEvents(args[0])
	if err != nil {
		return err
	}
	if outputJSON {
		return printJSON(events)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tEVENT\tSUB_CODE\tDESCRIPTION")
	for _, e := range events {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			e.EventTime.Local().Format(time.TimeOnly), e.EventType, e.SubCode, e.Description)
	}
	return w.Flush()
}

func runTransitionsList(cmd *cobra.Command, args []string) error {
	st, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	if _, err := st.GetRun(args[0]); err != nil {
		return err
	}
	transitions, err := st.ListTransitions(args[0])
	if err != nil {
		return err
	}
	if outputJSON {
		return printJSON(transitions)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tFROM\tTO\tINPUTS\tDETAILS")
	for _, t := range transitions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.12s\t%s\n",
			t.Timestamp.Local().Format(time.TimeOnly), t.From, t.To, t.InputsHash, t.Details)
	}
	return w.Flush()
}
