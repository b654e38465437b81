package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/iudanet/offsync/internal/models"
)

func (c *Cli) newEnqueueCommand() *cobra.Command {
	var (
		action   string
		target   string
		payload  string
		priority int
	)

	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Record a mutation for later delivery",
		Long: `Record a mutation in the local log and print its id.

The payload is a JSON document, or @path to read it from a file.
Delete mutations need no payload.`,
		Example: `  offsync enqueue --action create --target notes/1 --payload '{"title":"hi"}'
  offsync enqueue --action update --target notes/1 --payload @note.json --priority -1
  offsync enqueue --action delete --target notes/1`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := models.ParseAction(action)
			if err != nil {
				return err
			}

			body, err := readPayload(payload)
			if err != nil {
				return err
			}

			return c.withApp(cmd.Context(), func(app *App) error {
				id, err := app.status.Enqueue(cmd.Context(), a, target, body, priority)
				if err != nil {
					return fmt.Errorf("failed to enqueue mutation: %w", err)
				}
				c.io.Println(id)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&action, "action", "", "create, update or delete")
	cmd.Flags().StringVar(&target, "target", "", "logical path of the remote resource")
	cmd.Flags().StringVar(&payload, "payload", "", "JSON payload or @file")
	cmd.Flags().IntVar(&priority, "priority", 0, "lower values are delivered first")
	_ = cmd.MarkFlagRequired("action")
	_ = cmd.MarkFlagRequired("target")

	return cmd
}

// readPayload разбирает значение --payload: JSON или @путь к файлу
func readPayload(value string) (json.RawMessage, error) {
	if value == "" {
		return nil, nil
	}

	data := []byte(value)
	if path, ok := strings.CutPrefix(value, "@"); ok {
		// #nosec G304 -- путь к файлу задает пользователь
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read payload file: %w", err)
		}
		data = content
	}

	if !json.Valid(data) {
		return nil, errors.New("payload is not valid JSON")
	}
	return json.RawMessage(data), nil
}
