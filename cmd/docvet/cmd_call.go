package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"docvet/internal/client"
	"docvet/internal/server"
	"docvet/internal/types"
)

var callTimeout time.Duration

var callCmd = &cobra.Command{
	Use:   "call METHOD [PARAMS-JSON]",
	Short: "Dispatch one method against the local database and print the result",
	Long: `Builds a server over the configured database, dispatches a single method,
and prints the result object as indented JSON.

Example:
  docvet call validate_file '{"file_path": "docs/intro.md"}'

The exit code follows the error taxonomy: 2 invalid params, 3 not found,
4 timeout, 5 validation failed, 1 anything else.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runCall,
}

func init() {
	callCmd.Flags().DurationVar(&callTimeout, "timeout", 5*time.Minute, "Overall call timeout")
	rootCmd.AddCommand(callCmd)
}

func runCall(cmd *cobra.Command, args []string) error {
	params := map[string]any{}
	if len(args) == 2 {
		if err := json.Unmarshal([]byte(args[1]), &params); err != nil {
			return types.NewInvalidParams("Params must be a JSON object: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	s, err := server.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	result, err := client.New(s.Dispatcher(nil), cfg).Call(ctx, args[0], params)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
